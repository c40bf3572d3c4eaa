package fan

import (
	"math"
	"sync"

	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// mockPublish records a single Publish call.
type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// MockMQTTClient implements Publisher and Subscriber for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions map[string]byte
	handlers      map[string]mqtt.MessageHandler
	publishErr    error
	subscribeErr  error
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		subscriptions: make(map[string]byte),
		handlers:      make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	return m.publishErr
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions[topic] = qos
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) SetPublishErr(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

// SimulateMessage delivers a message through the registered handler.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) error {
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return h(topic, payload)
}

func (m *MockMQTTClient) Published() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// testTopics returns the default topic bindings with the status readback enabled.
func testTopics() config.TopicsConfig {
	return config.TopicsConfig{
		Temperature:    "sensors/temp",
		Humidity:       "sensors/dht11/humidity",
		ObservedOutput: "fan/read",
		StatusReadback: "fan/status/read",
		StatusCommand:  "fan/status",
		OutputCommand:  "fan/output",
	}
}

// sameState compares two snapshots, treating unset (NaN) readings as equal.
func sameState(a, b DeviceState) bool {
	eq := func(x, y float64) bool {
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	}
	return a.Power == b.Power &&
		a.CommandedOutput == b.CommandedOutput &&
		a.ObservedOutput == b.ObservedOutput &&
		eq(a.Temperature, b.Temperature) &&
		eq(a.Humidity, b.Humidity) &&
		a.HumidityEnabled == b.HumidityEnabled &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}
