package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	values map[string]float64
	err    error
}

func (r *recorder) Publish(module, name string, v float64) error {
	if r.err != nil {
		return r.err
	}
	r.values[module+"/"+name] = v
	return nil
}

func TestEmitMetric(t *testing.T) {
	tm := New(Config{Prometheus: true}).(*telemetry)
	tm.EmitMetric("ph", "ph", 8.1)
	tm.EmitMetric("ph", "ph", 8.2)

	assert.Equal(t, 8.2, testutil.ToFloat64(tm.gauges.WithLabelValues("ph", "ph")))
}

func TestReport(t *testing.T) {
	ok := &recorder{values: map[string]float64{}}
	bad := &recorder{values: map[string]float64{}, err: errors.New("offline")}
	tm := New(Config{}, ok, bad).(*telemetry)

	tm.Report("ph", "temperature", 25.5)

	assert.Equal(t, 25.5, ok.values["ph/temperature"])
	assert.Empty(t, bad.values)
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.reports.WithLabelValues("*telemetry.recorder", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.reports.WithLabelValues("*telemetry.recorder", "error")))
}

func TestHandler(t *testing.T) {
	tm := New(Config{Prometheus: true})
	tm.EmitMetric("ph", "tds_raw", 0.42)

	rec := httptest.NewRecorder()
	tm.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `reef_ph_metric{module="ph",name="tds_raw"} 0.42`)
}
