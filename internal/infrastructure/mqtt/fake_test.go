package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
)

// fakeToken implements pahomqtt.Token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

// pendingToken never completes.
func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakePublish struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// fakePaho is an in-memory stand-in for the paho client.
type fakePaho struct {
	mu sync.Mutex

	opts *pahomqtt.ClientOptions

	// connectErrs is consumed one entry per Connect call; when empty, Connect succeeds.
	connectErrs  []error
	connectCalls int
	connected    bool
	disconnects  int

	subscribes   []string
	handlers     map[string]pahomqtt.MessageHandler
	subscribeErr error
	onSubscribe  func(topic string)

	published   []fakePublish
	publishErr  error
	publishHang bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	var err error
	if len(f.connectErrs) > 0 {
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	f.connected = err == nil
	return doneToken(err)
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := payload.([]byte)
	f.published = append(f.published, fakePublish{Topic: topic, QoS: qos, Retained: retained, Payload: data})
	if f.publishHang {
		return pendingToken()
	}
	return doneToken(f.publishErr)
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	hook := f.onSubscribe
	f.subscribes = append(f.subscribes, topic)
	f.handlers[topic] = callback
	err := f.subscribeErr
	f.mu.Unlock()

	if hook != nil {
		hook(topic)
	}
	return doneToken(err)
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// drop simulates the transport going away underneath paho.
func (f *fakePaho) drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

// deliver invokes the handler registered for topic, as paho's router would.
func (f *fakePaho) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(nil, fakeMessage{topic: topic, payload: payload})
	return true
}

func (f *fakePaho) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

func (f *fakePaho) publishes() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakePublish, len(f.published))
	copy(out, f.published)
	return out
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Debug(string, ...any) {}
func (l *mockLogger) Info(string, ...any)  {}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// testConfig returns a valid MQTT configuration for unit tests.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "fanbridge-test",
		},
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 3,
			MaxDelay:     30,
		},
		Timeouts: config.MQTTTimeoutConfig{
			Connect: 1,
			Publish: 1,
		},
		StatusTopic: "fanbridge/status",
	}
}

// newTestClient builds a Client backed by fake. Waits between reconnect
// attempts are recorded and skipped.
func newTestClient(t *testing.T, fake *fakePaho, opts ...Option) (*Client, *delayRecorder) {
	t.Helper()

	opts = append(opts, withPahoFactory(func(o *pahomqtt.ClientOptions) pahoClient {
		fake.opts = o
		return fake
	}))
	c, err := New(testConfig(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.publishTimeout = 50 * time.Millisecond
	c.connectTimeout = 50 * time.Millisecond

	rec := &delayRecorder{}
	c.after = rec.after
	return c, rec
}

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (r *delayRecorder) snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

// startRun runs the supervisor until the test ends. The returned channel
// is closed when Run returns.
func startRun(t *testing.T, c *Client) (cancel func(), done <-chan struct{}) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		if err := c.Run(ctx); err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	}()
	t.Cleanup(func() {
		cancelFn()
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
		}
	})
	return cancelFn, ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
