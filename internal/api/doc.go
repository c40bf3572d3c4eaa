// Package api implements the HTTP and WebSocket surface of the fan bridge.
//
// This package provides:
//   - Dashboard endpoints: GET /data, POST /fan_toggle, POST /set_fan_output
//   - Operational endpoints: GET /api/v1/health, GET /api/v1/metrics
//   - WebSocket hub pushing "fan.state" events on every state change
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Handlers are thin: reads go to the state reader, commands go to the
// dispatcher, and the server never talks to the bus directly. State
// changes reach WebSocket clients through Server.NotifyState, which is
// registered as the store's change observer.
//
// # Graceful Degradation
//
// The server keeps answering while the bus is down. Commands still update
// local state and report "delivery":"send_failed"; only /api/v1/health
// turns 503.
package api
