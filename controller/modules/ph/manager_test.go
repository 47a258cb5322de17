package ph

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefrhythm/reef-ph/controller"
	"github.com/reefrhythm/reef-ph/controller/sensor"
	"github.com/reefrhythm/reef-ph/controller/storage"
	"github.com/reefrhythm/reef-ph/controller/telemetry"
)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "ph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestController(t *testing.T, store storage.Store, src sensor.Source) *Controller {
	t.Helper()
	if src == nil {
		src = sensor.NewMock(nil)
	}
	m, err := New(DefaultConfig(), src, controller.New(store, nil))
	require.NoError(t, err)
	require.NoError(t, m.Setup())
	return m
}

// failingStore rejects every Replace.
type failingStore struct {
	storage.Store
}

func (failingStore) Replace(string, map[string]interface{}) error {
	return errors.New("disk full")
}

func storedPoints(t *testing.T, store storage.Store) map[string]CalibrationPoint {
	t.Helper()
	m := &Controller{store: store}
	points, err := m.loadPoints()
	require.NoError(t, err)
	return points
}

func TestUpload(t *testing.T) {
	store := newStore(t)
	m := newTestController(t, store, nil)
	assert.Nil(t, m.State().Curve())

	require.NoError(t, m.Upload(threePoints()))
	c := m.State().Curve()
	require.NotNil(t, c)
	assert.InDelta(t, 5.5, c.Lookup(0.5), 1e-9)
	assert.Equal(t, threePoints(), m.Points())
	assert.Equal(t, threePoints(), storedPoints(t, store))
	assert.Equal(t, "now", m.Status().Calibrated)
	assert.Len(t, m.Logs(), 1)
}

func TestUploadTooFewPointsKeepsCurve(t *testing.T) {
	store := newStore(t)
	m := newTestController(t, store, nil)
	require.NoError(t, m.Upload(threePoints()))
	before := m.State().Curve()

	for _, points := range []map[string]CalibrationPoint{nil, {"a": {Raw: 1, Physical: 7}}} {
		err := m.Upload(points)
		assert.ErrorIs(t, err, ErrInsufficientPoints)
		assert.Same(t, before, m.State().Curve())
		assert.Equal(t, threePoints(), storedPoints(t, store))
		assert.Equal(t, threePoints(), m.Points())
	}
}

func TestUploadInvalidKeepsCurve(t *testing.T) {
	store := newStore(t)
	m := newTestController(t, store, nil)
	err := m.Upload(map[string]CalibrationPoint{
		"a": {Raw: 0, Physical: 4},
		"b": {Raw: 1, Physical: 7},
		"c": {Raw: 0.5, Physical: 10},
	})
	assert.ErrorIs(t, err, ErrNonMonotonic)
	assert.Nil(t, m.State().Curve())
	assert.Empty(t, storedPoints(t, store))
}

func TestUploadPersistenceFailure(t *testing.T) {
	store := newStore(t)
	m, err := New(DefaultConfig(), sensor.NewMock(nil), controller.New(failingStore{store}, nil))
	require.NoError(t, err)

	err = m.Upload(threePoints())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Nil(t, m.State().Curve())
	assert.Empty(t, m.Points())
	assert.Empty(t, m.Status().Calibrated)
}

func TestSetupRestoresCalibration(t *testing.T) {
	store := newStore(t)
	require.NoError(t, newTestController(t, store, nil).Upload(threePoints()))

	m := newTestController(t, store, nil)
	require.NotNil(t, m.State().Curve())
	assert.InDelta(t, 5.5, m.State().Curve().Lookup(0.5), 1e-9)
	assert.Equal(t, 3, m.Status().Points)
	assert.NotEmpty(t, m.Status().Calibrated)
}

func TestSetupIgnoresBrokenCalibration(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.CreateBucket(CalibrationBucket))
	require.NoError(t, store.Replace(CalibrationBucket, map[string]interface{}{
		"a": CalibrationPoint{Raw: 1, Physical: 4},
		"b": CalibrationPoint{Raw: 1, Physical: 7},
	}))
	m := newTestController(t, store, nil)
	assert.Nil(t, m.State().Curve())
	assert.Len(t, m.Points(), 2)
}

func TestAddPoint(t *testing.T) {
	store := newStore(t)
	m := newTestController(t, store, nil)

	_, err := m.AddPoint(7, nil)
	assert.ErrorIs(t, err, sensor.ErrNotReady)

	m.State().setSmoothed(sensor.ChannelPH, 1.0)
	first, err := m.AddPoint(7, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.Nil(t, m.State().Curve())
	assert.Empty(t, storedPoints(t, store))

	raw := 0.0
	second, err := m.AddPoint(4, &raw)
	require.NoError(t, err)
	require.NotNil(t, m.State().Curve())
	assert.Equal(t, map[string]CalibrationPoint{
		first:  {Raw: 1, Physical: 7},
		second: {Raw: 0, Physical: 4},
	}, storedPoints(t, store))

	assert.ErrorIs(t, m.DeletePoint(first), ErrInsufficientPoints)
	assert.Len(t, m.Points(), 2)
	assert.Error(t, m.DeletePoint("missing"))
}

func TestDeletePoint(t *testing.T) {
	store := newStore(t)
	m := newTestController(t, store, nil)
	require.NoError(t, m.Upload(threePoints()))
	require.NoError(t, m.DeletePoint("10"))
	assert.Len(t, storedPoints(t, store), 2)
	assert.InDelta(t, 5.5, m.State().Curve().Lookup(0.5), 1e-9)

	assert.ErrorIs(t, m.DeletePoint("10"), ErrPointNotFound)
	assert.Len(t, storedPoints(t, store), 2)
}

func TestCalibrationSwapIsAtomic(t *testing.T) {
	m := newTestController(t, newStore(t), nil)
	two := map[string]CalibrationPoint{"4": {Raw: 0, Physical: 4}, "7": {Raw: 1, Physical: 7}}
	res := DefaultConfig().Resolution

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			set := two
			if i%2 == 0 {
				set = threePoints()
			}
			assert.NoError(t, m.Upload(set))
		}
	}()
	for {
		select {
		case <-done:
			return
		default:
		}
		cal := m.State().Calibration()
		if cal.Curve == nil {
			assert.Empty(t, cal.Points)
			continue
		}
		assert.Len(t, cal.Curve.Segment, (len(cal.Points)-1)*res+1)
	}
}

func TestControllerLifecycle(t *testing.T) {
	store := newStore(t)
	tm := telemetry.New(telemetry.Config{Prometheus: true})
	cfg := DefaultConfig()
	cfg.Tick = time.Millisecond
	cfg.EstimatorTick = time.Millisecond
	cfg.SlowWindow = 2
	cfg.Channels = map[sensor.Channel]ChannelConfig{
		sensor.ChannelPH:  {Window: 2, Scale: 1},
		sensor.ChannelTDS: {Window: 2, Scale: 1},
	}
	src := sensor.NewMock(map[sensor.Channel][]float64{
		sensor.ChannelPH:  {1},
		sensor.ChannelTDS: {0.4},
	})
	m, err := New(cfg, src, controller.New(store, tm))
	require.NoError(t, err)
	require.NoError(t, m.Setup())
	require.NoError(t, m.Upload(threePoints()))

	m.Start()
	assert.Eventually(t, func() bool { return m.State().Reading() != nil }, 2*time.Second, time.Millisecond)
	m.Stop()
	m.Stop()

	live := m.Live()
	assert.Equal(t, 7.0, *live.PH)
	assert.Equal(t, 1.0, *live.PHRaw)
	assert.NotNil(t, live.TDS)
	assert.Nil(t, live.Temperature)

	st := m.Status()
	assert.True(t, st.Curve)
	assert.True(t, st.Estimating)
	assert.Equal(t, PhaseStopped, st.Channels[sensor.ChannelPH].Phase)
	assert.NotContains(t, st.Channels, sensor.ChannelTemperature)
}

func TestNewRequiresPHChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels = map[sensor.Channel]ChannelConfig{sensor.ChannelTDS: {}}
	_, err := New(cfg, sensor.NewMock(nil), controller.New(newStore(t), nil))
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.TDSFormula = "v *"
	_, err = New(cfg, sensor.NewMock(nil), controller.New(newStore(t), nil))
	assert.Error(t, err)
}

func TestGetEntity(t *testing.T) {
	m := newTestController(t, newStore(t), nil)
	e, err := m.GetEntity(string(sensor.ChannelPH))
	require.NoError(t, err)
	assert.Equal(t, "ph_raw", e.EName())
	_, err = m.GetEntity("orp")
	assert.Error(t, err)
}
