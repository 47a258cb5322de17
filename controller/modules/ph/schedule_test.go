package ph

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	rr, err := ParseSchedule("")
	assert.NoError(t, err)
	assert.Nil(t, rr)

	_, err = ParseSchedule("FREQ=SOMETIMES")
	assert.Error(t, err)

	rr, err = ParseSchedule("FREQ=HOURLY;INTERVAL=4")
	require.NoError(t, err)
	next := rr.After(time.Now(), false)
	assert.WithinDuration(t, time.Now().Add(4*time.Hour), next, 2*time.Second)
}

func TestStartSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, StartSchedule(ctx, "FREQ=SECONDLY;INTERVAL=1", func() { calls.Add(1) }))
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 10*time.Millisecond)

	assert.Error(t, StartSchedule(ctx, "INTERVAL=x", func() {}))
	assert.NoError(t, StartSchedule(ctx, "", func() {}))
}
