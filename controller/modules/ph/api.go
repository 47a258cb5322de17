package ph

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reefrhythm/reef-ph/controller/sensor"
)

// LoadAPI registers all REST and stream endpoints.
func (m *Controller) LoadAPI(r *mux.Router) {
	sr := r.PathPrefix("/api/ph").Subrouter()
	sr.HandleFunc("/calibration", m.getCalibration).Methods("GET")
	sr.HandleFunc("/calibration", m.uploadCalibration).Methods("POST")
	sr.HandleFunc("/calibration/point", m.addPoint).Methods("POST")
	sr.HandleFunc("/calibration/{id}", m.deletePoint).Methods("DELETE")
	sr.HandleFunc("/readings", m.getReading).Methods("GET")
	sr.HandleFunc("/readings/stream", m.streamReadings).Methods("GET")
	sr.HandleFunc("/curve", m.getCurve).Methods("GET")
	sr.HandleFunc("/curve/stream", m.streamCurve).Methods("GET")
	sr.HandleFunc("/status", m.getStatus).Methods("GET")
	sr.HandleFunc("/log", m.logList).Methods("GET")
}

// errorStatus maps module errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInsufficientPoints),
		errors.Is(err, ErrNonMonotonic),
		errors.Is(err, ErrOutOfDomain):
		return http.StatusBadRequest
	case errors.Is(err, ErrPointNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCurveUnavailable),
		errors.Is(err, sensor.ErrNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (m *Controller) getCalibration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, m.Points())
}

func (m *Controller) uploadCalibration(w http.ResponseWriter, r *http.Request) {
	var points map[string]CalibrationPoint
	if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := m.Upload(points); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Controller) addPoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Physical *float64 `json:"ph"`
		Raw      *float64 `json:"adc"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Physical == nil {
		http.Error(w, "ph is required", http.StatusBadRequest)
		return
	}
	id, err := m.AddPoint(*req.Physical, req.Raw)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (m *Controller) deletePoint(w http.ResponseWriter, r *http.Request) {
	if err := m.DeletePoint(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Controller) getReading(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, m.Live())
}

func (m *Controller) getCurve(w http.ResponseWriter, r *http.Request) {
	v, err := m.Curve()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, v)
}

func (m *Controller) streamReadings(w http.ResponseWriter, r *http.Request) {
	serveStream(m, "readings", w, r, func() (Reading, bool) {
		return m.Live(), true
	})
}

func (m *Controller) streamCurve(w http.ResponseWriter, r *http.Request) {
	serveStream(m, "curve", w, r, func() (CurveView, bool) {
		v, err := m.Curve()
		return v, err == nil
	})
}

func (m *Controller) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, m.Status())
}

func (m *Controller) logList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, m.Logs())
}
