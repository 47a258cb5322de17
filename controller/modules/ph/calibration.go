package ph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reefrhythm/reef-ph/controller/sensor"
)

const metaKey = "calibration"

type calibrationMeta struct {
	ID      string `json:"id"`
	Updated int64  `json:"ts"`
	Count   int    `json:"count"`
}

// Points returns a copy of the calibration points in force.
func (m *Controller) Points() map[string]CalibrationPoint {
	cur := m.state.Calibration().Points
	out := make(map[string]CalibrationPoint, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// Upload replaces the calibration points. The new curve is built first, the
// points are persisted next, and only then is the curve swapped in. Any
// failure leaves the previous curve and points in force.
func (m *Controller) Upload(points map[string]CalibrationPoint) error {
	m.calMu.Lock()
	defer m.calMu.Unlock()
	return m.upload(points)
}

func (m *Controller) upload(points map[string]CalibrationPoint) error {
	if len(points) < 2 {
		m.appendLog(fmt.Sprintf("Calibration rejected: %d point(s) supplied", len(points)))
		return ErrInsufficientPoints
	}
	curve, err := BuildCurve(points, m.cfg.Resolution, m.cfg.PhysicalMin, m.cfg.PhysicalMax)
	if err != nil {
		m.appendLog("Calibration rejected: " + err.Error())
		return err
	}

	owned := make(map[string]CalibrationPoint, len(points))
	items := make(map[string]interface{}, len(points))
	for k, p := range points {
		owned[k] = p
		items[k] = p
	}
	if err := m.store.Replace(CalibrationBucket, items); err != nil {
		m.c.LogError("ph", "save calibration: "+err.Error())
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	now := time.Now()
	m.pending = make(map[string]CalibrationPoint)
	m.state.setCalibration(&Calibration{Points: owned, Curve: curve, Updated: now})

	meta := calibrationMeta{ID: metaKey, Updated: now.Unix(), Count: len(owned)}
	if err := m.store.Replace(Bucket, map[string]interface{}{metaKey: meta}); err != nil {
		m.c.LogError("ph", "save calibration metadata: "+err.Error())
	}
	m.appendLog(fmt.Sprintf("Calibration updated (%d points)", len(owned)))
	m.log.Infof("calibration updated with %d points", len(owned))
	return nil
}

// AddPoint records a point for a known physical value. With a nil raw value
// the current first-stage pH reading is used. While fewer than two points
// exist the point is held in memory only. It returns the new point id.
func (m *Controller) AddPoint(physical float64, raw *float64) (string, error) {
	if raw == nil {
		raw = m.state.Smoothed(sensor.ChannelPH)
		if raw == nil {
			return "", fmt.Errorf("%w: %s", sensor.ErrNotReady, sensor.ChannelPH)
		}
	}
	m.calMu.Lock()
	defer m.calMu.Unlock()

	id := uuid.NewString()
	p := CalibrationPoint{Raw: *raw, Physical: physical}
	points := m.Points()
	for k, v := range m.pending {
		points[k] = v
	}
	points[id] = p
	if len(points) < 2 {
		m.pending[id] = p
		m.appendLog(fmt.Sprintf("Calibration point pH %.2f (adc %.4f) waiting for a second point", physical, *raw))
		return id, nil
	}
	if err := m.upload(points); err != nil {
		return "", err
	}
	return id, nil
}

// DeletePoint removes one point. Removing below two points is rejected.
func (m *Controller) DeletePoint(id string) error {
	m.calMu.Lock()
	defer m.calMu.Unlock()

	points := m.Points()
	if _, ok := points[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPointNotFound, id)
	}
	delete(points, id)
	return m.upload(points)
}

func (m *Controller) loadPoints() (map[string]CalibrationPoint, error) {
	points := make(map[string]CalibrationPoint)
	err := m.store.List(CalibrationBucket, func(k string, v []byte) error {
		var p CalibrationPoint
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("calibration point %s: %w", k, err)
		}
		points[k] = p
		return nil
	})
	return points, err
}
