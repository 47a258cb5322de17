package daemon

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefrhythm/reef-ph/controller/sensor"
	"github.com/reefrhythm/reef-ph/controller/settings"
)

func testSettings(t *testing.T) *settings.Settings {
	s := settings.Default()
	s.Database = filepath.Join(t.TempDir(), "reef-ph.db")
	s.Address = "127.0.0.1:0"
	return s
}

func TestBuildSource(t *testing.T) {
	src, closer, err := BuildSource(settings.SensorConfig{Driver: settings.DriverMock})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &sensor.Mock{}, src)

	src, closer, err = BuildSource(settings.SensorConfig{Driver: settings.DriverSerial, Port: "/dev/null-port"})
	require.NoError(t, err)
	assert.IsType(t, &sensor.Serial{}, src)
	assert.NoError(t, closer.Close())
	assert.ErrorIs(t, src.Setup(sensor.ChannelPH), sensor.ErrNotReady)

	_, _, err = BuildSource(settings.SensorConfig{Driver: "gpio"})
	assert.Error(t, err)
}

func TestBuildSourceADS1115(t *testing.T) {
	cfg := settings.Default().Sensor
	cfg.Driver = settings.DriverADS1115
	src, closer, err := BuildSource(cfg)
	if err != nil {
		// no i2c bus on this host
		assert.Contains(t, err.Error(), "i2c")
		return
	}
	require.NotNil(t, closer)
	defer closer.Close()
	assert.IsType(t, sensor.Router{}, src)
}

func TestRouter(t *testing.T) {
	d, err := New(testSettings(t), nil)
	require.NoError(t, err)
	defer d.Close()
	r := d.Router()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/ph/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/ph/calibration",
		strings.NewReader(`{"a":{"adc":1.55,"ph":7},"b":{"adc":2.03,"ph":4}}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewRejectsBadConfig(t *testing.T) {
	s := testSettings(t)
	s.PH.TDSFormula = "v +"
	_, err := New(s, sensor.NewMock(nil))
	assert.Error(t, err)

	s = testSettings(t)
	s.Database = filepath.Join(t.TempDir(), "missing", "dir", "reef-ph.db")
	_, err = New(s, nil)
	assert.Error(t, err)
}

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestRun(t *testing.T) {
	s := testSettings(t)
	s.Address = freeAddr(t)
	d, err := New(s, nil)
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Address + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
