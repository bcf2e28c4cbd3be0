package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-myq/internal/bridge"
	"github.com/nerrad567/gray-logic-myq/internal/registry"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{ref}", s.handleGetDevice)
		})

		r.Post("/sync", s.handleSync)
		r.Put("/poll-interval", s.handleSetPollInterval)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// StatusResponse is the bridge status payload.
type StatusResponse struct {
	MQTTConnected  bool      `json:"mqtt_connected"`
	Session        string    `json:"session"`
	SessionMessage string    `json:"session_message,omitempty"`
	DevicesManaged int       `json:"devices_managed"`
	LastUpdated    time.Time `json:"last_updated"`
	PollIntervalMS int64     `json:"poll_interval_ms"`
	Logins         uint64    `json:"logins"`
	Relogins       uint64    `json:"relogins"`
	Fetches        uint64    `json:"fetches"`
	Moves          uint64    `json:"moves"`
	Errors         uint64    `json:"errors"`
}

// handleStatus returns current bridge metrics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	m := s.bridge.GetMetrics()

	writeJSON(w, http.StatusOK, StatusResponse{
		MQTTConnected:  m.Connected,
		Session:        m.Session,
		SessionMessage: m.SessionMessage,
		DevicesManaged: m.DevicesManaged,
		LastUpdated:    m.LastUpdated,
		PollIntervalMS: m.PollInterval.Milliseconds(),
		Logins:         m.Stats.LoginsTotal,
		Relogins:       m.Stats.ReloginsTotal,
		Fetches:        m.Stats.FetchesTotal,
		Moves:          m.Stats.MovesTotal,
		Errors:         m.Stats.ErrorsTotal,
	})
}

// handleListDevices returns all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one registered device by ref.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	dev, err := s.registry.Get(r.Context(), ref)
	if errors.Is(err, registry.ErrNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get device", "error", err, "ref", ref)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleSync forces an immediate catalog sync.
func (s *Server) handleSync(w http.ResponseWriter, _ *http.Request) {
	s.bridge.TriggerSync("api")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "sync requested",
	})
}

// PollIntervalRequest is the body for PUT /poll-interval.
type PollIntervalRequest struct {
	IntervalMS int `json:"interval_ms"`
}

// handleSetPollInterval changes the catalog poll interval at runtime.
func (s *Server) handleSetPollInterval(w http.ResponseWriter, r *http.Request) {
	var req PollIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	interval := time.Duration(req.IntervalMS) * time.Millisecond
	if err := s.bridge.SetPollInterval(interval); err != nil {
		if errors.Is(err, bridge.ErrIntervalTooShort) {
			writeBadRequest(w, "interval below minimum, previous interval kept")
			return
		}
		writeInternalError(w, "failed to set poll interval")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"interval_ms": req.IntervalMS,
	})
}
