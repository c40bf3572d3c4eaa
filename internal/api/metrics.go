package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/fanbridge/internal/bridges/fan"
	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string              `json:"timestamp"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Runtime       RuntimeMetrics      `json:"runtime"`
	WebSocket     WSMetrics           `json:"websocket"`
	MQTT          *mqtt.Stats         `json:"mqtt,omitempty"`
	Commands      fan.DispatcherStats `json:"commands"`
	Telemetry     *fan.InboundStats   `json:"telemetry,omitempty"`
	State         map[string]any      `json:"state"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleMetrics returns runtime, bus, command, and telemetry counters.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Commands: s.dispatcher.Stats(),
		State:    statePayload(s.state.Snapshot()),
	}

	if s.mqtt != nil {
		stats := s.mqtt.Stats()
		metrics.MQTT = &stats
	}

	if s.inbound != nil {
		stats := s.inbound.Stats()
		metrics.Telemetry = &stats
	}

	writeJSON(w, http.StatusOK, metrics)
}
