package ph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAverager(t *testing.T) {
	a := NewAverager(3)
	assert.Nil(t, a.DrainMean())
	assert.False(t, a.IsFull())

	for _, v := range []float64{2, 4, 6} {
		a.Push(v)
	}
	require.True(t, a.IsFull())
	m := a.DrainMean()
	require.NotNil(t, m)
	assert.Equal(t, 4.0, *m)
	assert.Equal(t, 0, a.Len())
	assert.Nil(t, a.DrainMean())
}

func TestAveragerRollsOver(t *testing.T) {
	a := NewAverager(2)
	a.Push(1)
	a.Push(2)
	a.Push(10)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 6.0, *a.DrainMean())
}

func TestMeanOrNone(t *testing.T) {
	assert.Nil(t, MeanOrNone(nil))
	assert.Nil(t, MeanOrNone([]float64{}))
	assert.Equal(t, 0.3333, *MeanOrNone([]float64{0, 0, 1}))
	assert.Equal(t, 1, NewAverager(0).Window())
}
