package fan

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// inboundQoS is used for every inbound subscription.
const inboundQoS = 1

// Logger is the logging interface used by the bridge.
// Satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func orNop(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}

// Subscriber registers handlers for inbound topics.
// Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// signalKind selects the payload decoder for a topic.
type signalKind int

const (
	kindNumeric signalKind = iota
	kindEnum
)

type binding struct {
	signal Signal
	kind   signalKind
}

// Bridge decodes inbound bus messages and applies them to the Store.
//
// HandleMessage runs on the MQTT delivery goroutine. It does no I/O and
// never waits on anything but the Store's lock.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	store    *Store
	bindings map[string]binding
	order    []string
	logger   Logger

	stats inboundStats
}

// InboundStats counts inbound messages by outcome.
type InboundStats struct {
	Received        int64      `json:"received"`
	Applied         int64      `json:"applied"`
	Ignored         int64      `json:"ignored"`
	Empty           int64      `json:"empty"`
	DecodeErrors    int64      `json:"decode_errors"`
	UnknownTopic    int64      `json:"unknown_topic"`
	LastDecodeError string     `json:"last_decode_error,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
}

type inboundStats struct {
	received     atomic.Int64
	applied      atomic.Int64
	ignored      atomic.Int64
	empty        atomic.Int64
	decodeErrors atomic.Int64
	unknown      atomic.Int64

	mu          sync.Mutex
	lastDecode  string
	lastMessage time.Time
}

// NewBridge binds each configured inbound topic to its signal.
// Topics left empty in cfg are not bound.
func NewBridge(store *Store, topics config.TopicsConfig, logger Logger) *Bridge {
	b := &Bridge{
		store:    store,
		bindings: make(map[string]binding),
		logger:   orNop(logger),
	}

	b.bind(topics.Temperature, SignalTemperature, kindNumeric)
	b.bind(topics.Humidity, SignalHumidity, kindNumeric)
	b.bind(topics.ObservedOutput, SignalObservedOutput, kindNumeric)
	b.bind(topics.StatusReadback, SignalPower, kindEnum)

	return b
}

func (b *Bridge) bind(topic string, signal Signal, kind signalKind) {
	if topic == "" {
		return
	}
	if _, exists := b.bindings[topic]; !exists {
		b.order = append(b.order, topic)
	}
	b.bindings[topic] = binding{signal: signal, kind: kind}
}

// InboundTopics returns the bound topics in configuration order.
func (b *Bridge) InboundTopics() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Subscribe registers HandleMessage for every inbound topic at QoS 1.
// The subscriber is expected to restore these after every reconnect.
func (b *Bridge) Subscribe(sub Subscriber) error {
	for _, topic := range b.order {
		if err := sub.Subscribe(topic, inboundQoS, b.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// HandleMessage decodes one inbound message and applies it to the Store.
//
// Empty payloads and undecodable payloads are logged and discarded; the
// Store is left untouched. The returned error is informational only.
//
// Returns:
//   - error: ErrEmptyPayload, ErrDecode, ErrUnknownTopic, or nil
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	b.stats.received.Add(1)
	b.stats.mu.Lock()
	b.stats.lastMessage = time.Now()
	b.stats.mu.Unlock()

	bind, ok := b.bindings[topic]
	if !ok {
		b.stats.unknown.Add(1)
		b.logger.Debug("message on unbound topic", "topic", topic)
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	text := strings.TrimSpace(string(payload))
	if text == "" {
		b.stats.empty.Add(1)
		b.logger.Debug("empty payload ignored", "topic", topic)
		return ErrEmptyPayload
	}

	reading, err := decode(bind, text)
	if err != nil {
		b.stats.decodeErrors.Add(1)
		b.stats.mu.Lock()
		b.stats.lastDecode = err.Error()
		b.stats.mu.Unlock()
		b.logger.Warn("discarding undecodable payload",
			"topic", topic,
			"signal", bind.signal.String(),
			"error", err,
		)
		return err
	}

	if !b.store.ApplyTelemetry(reading) {
		b.stats.ignored.Add(1)
		b.logger.Debug("reading not applied", "topic", topic, "signal", bind.signal.String())
		return nil
	}

	b.stats.applied.Add(1)
	return nil
}

// decode turns a trimmed, non-empty payload into a Reading.
func decode(bind binding, text string) (Reading, error) {
	switch bind.kind {
	case kindEnum:
		p, err := ParsePowerStatus(text)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return PowerReading(p), nil

	default:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || !finite(v) {
			return Reading{}, fmt.Errorf("%w: %q is not a finite number", ErrDecode, text)
		}
		return Reading{Signal: bind.signal, Value: v}, nil
	}
}

// Stats returns inbound message counters.
func (b *Bridge) Stats() InboundStats {
	st := InboundStats{
		Received:     b.stats.received.Load(),
		Applied:      b.stats.applied.Load(),
		Ignored:      b.stats.ignored.Load(),
		Empty:        b.stats.empty.Load(),
		DecodeErrors: b.stats.decodeErrors.Load(),
		UnknownTopic: b.stats.unknown.Load(),
	}

	b.stats.mu.Lock()
	st.LastDecodeError = b.stats.lastDecode
	if !b.stats.lastMessage.IsZero() {
		at := b.stats.lastMessage
		st.LastMessageAt = &at
	}
	b.stats.mu.Unlock()

	return st
}
