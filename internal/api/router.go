package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// defaultWSPath is used when the WebSocket path is not configured.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(accessLog(s.logger))
	r.Use(recoverPanics(s.logger))
	r.Use(newCORS(s.cfg.CORS).handler)
	r.Use(limitBody(maxRequestBodySize))

	// Dashboard routes
	r.Get("/data", s.handleData)
	r.Post("/fan_toggle", s.handleFanToggle)
	r.Post("/set_fan_output", s.handleSetFanOutput)

	// Operational routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth reports 200 while the bus is connected and 503 otherwise.
// The HTTP side keeps serving either way.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := mqtt.StateDisconnected
	if s.mqtt != nil {
		state = s.mqtt.State()
	}

	status, code := "ok", http.StatusOK
	if state != mqtt.StateConnected {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"mqtt":    state.String(),
	})
}
