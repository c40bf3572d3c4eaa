package mqtt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of client counters for the metrics endpoint.
type Stats struct {
	State           ConnectionState `json:"state"`
	ClientID        string          `json:"client_id"`
	Subscriptions   int             `json:"subscriptions"`
	ConnectAttempts int64           `json:"connect_attempts"`
	Reconnects      int64           `json:"reconnects"`
	Published       int64           `json:"published"`
	PublishFailures int64           `json:"publish_failures"`
	Received        int64           `json:"received"`
	LastError       string          `json:"last_error,omitempty"`
	LastErrorAt     *time.Time      `json:"last_error_at,omitempty"`
}

type clientStats struct {
	connectAttempts atomic.Int64
	reconnects      atomic.Int64
	published       atomic.Int64
	publishFailures atomic.Int64
	received        atomic.Int64

	mu          sync.Mutex
	lastError   string
	lastErrorAt time.Time
}

func (s *clientStats) recordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastError = err.Error()
	s.lastErrorAt = time.Now()
	s.mu.Unlock()
}

// Stats returns the client's counters and current state.
func (c *Client) Stats() Stats {
	st := Stats{
		State:           c.State(),
		ClientID:        c.clientID,
		Subscriptions:   c.SubscriptionCount(),
		ConnectAttempts: c.stats.connectAttempts.Load(),
		Reconnects:      c.stats.reconnects.Load(),
		Published:       c.stats.published.Load(),
		PublishFailures: c.stats.publishFailures.Load(),
		Received:        c.stats.received.Load(),
	}

	c.stats.mu.Lock()
	if c.stats.lastError != "" {
		at := c.stats.lastErrorAt
		st.LastError = c.stats.lastError
		st.LastErrorAt = &at
	}
	c.stats.mu.Unlock()

	return st
}
