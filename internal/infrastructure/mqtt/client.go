package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with the bridge's connection lifecycle.
//
// It owns reconnection: Run drives a supervisor loop that connects, restores
// every tracked subscription, reports CONNECTED, and after a loss retries on
// an exponential schedule that never waits less than three seconds.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client   pahoClient
	cfg      config.MQTTConfig
	clientID string

	publishTimeout time.Duration
	connectTimeout time.Duration

	// subscriptions tracks subscriptions for re-subscription on reconnect.
	// subMu is held while the state moves to CONNECTED so a concurrent
	// Subscribe is either restored or issued directly, never lost.
	subscriptions map[string]subscription
	subMu         sync.Mutex

	state   ConnectionState
	stateMu sync.RWMutex

	// lost receives connection-lost notifications from paho.
	lost chan error

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	stats clientStats

	logger Logger

	// after is the timer used between attempts; replaced in tests.
	after func(time.Duration) <-chan time.Time

	newPaho func(*pahomqtt.ClientOptions) pahoClient
}

// pahoClient is the subset of pahomqtt.Client the adapter uses.
type pahoClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	IsConnected() bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
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

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's delivery goroutine in arrival order and must not
// block.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for connection events and handler failures.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// withPahoFactory replaces the paho client constructor.
func withPahoFactory(factory func(*pahomqtt.ClientOptions) pahoClient) Option {
	return func(c *Client) {
		c.newPaho = factory
	}
}

// New builds a Client from config without connecting. Call Run to start
// the connection supervisor.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - opts: Optional settings such as WithLogger
//
// Returns:
//   - *Client: Client in the DISCONNECTED state
//   - error: If the configuration cannot produce a client
func New(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	if cfg.Broker.Host == "" {
		return nil, fmt.Errorf("%w: broker host is required", ErrConnectionFailed)
	}

	c := &Client{
		cfg:            cfg,
		clientID:       resolveClientID(cfg),
		publishTimeout: secondsOr(cfg.Timeouts.Publish, defaultPublishTimeout),
		connectTimeout: secondsOr(cfg.Timeouts.Connect, defaultConnectTimeout),
		subscriptions:  make(map[string]subscription),
		state:          StateDisconnected,
		lost:           make(chan error, 1),
		done:           make(chan struct{}),
		logger:         nopLogger{},
		after:          time.After,
		newPaho: func(o *pahomqtt.ClientOptions) pahoClient {
			return pahomqtt.NewClient(o)
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	pahoOpts := buildClientOptions(cfg, c.clientID)
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	c.client = c.newPaho(pahoOpts)

	return c, nil
}

// handleConnectionLost records the loss and wakes the supervisor.
func (c *Client) handleConnectionLost(err error) {
	if c.closed.Load() {
		return
	}
	c.setState(StateReconnecting)
	c.stats.recordError(err)
	select {
	case c.lost <- err:
	default:
	}
}

// Run connects to the broker and keeps the connection alive until ctx is
// cancelled or Close is called. Connection failures are retried forever.
//
// Returns:
//   - error: Always nil; failures are logged and retried
func (c *Client) Run(ctx context.Context) error {
	b := newReconnectBackOff(c.cfg.Reconnect)

	for {
		if c.stopped(ctx) {
			return nil
		}

		err := c.connectOnce(ctx)
		if err == nil {
			b.Reset()
			c.logger.Info("MQTT connected",
				"client_id", c.clientID,
				"subscriptions", c.SubscriptionCount(),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-c.done:
				return nil
			case lostErr := <-c.lost:
				c.stats.reconnects.Add(1)
				c.logger.Warn("MQTT connection lost", "error", lostErr)
			}
		} else {
			if c.stopped(ctx) {
				return nil
			}
			c.stats.recordError(err)
			c.setState(StateReconnecting)
			c.logger.Warn("MQTT connection attempt failed", "error", err)
		}

		delay := clampDelay(b.NextBackOff())
		c.logger.Debug("MQTT reconnect scheduled", "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-c.after(delay):
		}
	}
}

func (c *Client) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || c.closed.Load()
}

// connectOnce performs one connection attempt and, on success, restores
// subscriptions and publishes the online status.
func (c *Client) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting)
	c.stats.connectAttempts.Add(1)

	// Drain a stale loss notification from the previous session.
	select {
	case <-c.lost:
	default:
	}

	token := c.client.Connect()
	if err := waitToken(ctx, token, c.connectTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := c.restoreSubscriptions(ctx); err != nil {
		c.client.Disconnect(0)
		return err
	}

	if c.closed.Load() {
		c.client.Disconnect(0)
		return ErrClosed
	}

	c.publishStatus(buildOnlinePayload(c.clientID))
	return nil
}

// restoreSubscriptions re-issues every tracked subscription and then marks
// the client CONNECTED, all under subMu.
func (c *Client) restoreSubscriptions(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if err := waitToken(ctx, token, c.publishTimeout); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, sub.topic, err)
		}
	}

	c.setState(StateConnected)
	return nil
}

// publishStatus publishes a retained bridge status message, if configured.
func (c *Client) publishStatus(payload []byte) {
	if c.cfg.StatusTopic == "" {
		return
	}
	token := c.client.Publish(c.cfg.StatusTopic, 1, true, payload)
	if !token.WaitTimeout(c.publishTimeout) {
		c.logger.Warn("MQTT status publish timed out", "topic", c.cfg.StatusTopic)
		return
	}
	if err := token.Error(); err != nil {
		c.logger.Warn("MQTT status publish failed", "topic", c.cfg.StatusTopic, "error", err)
	}
}

// waitToken waits for a paho token to complete, bounded by timeout and ctx.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Stops accepting subscriptions and stops the supervisor loop
//  2. Publishes graceful offline status (different from LWT crash status)
//  3. Disconnects with a quiesce period for pending operations
//
// Close is idempotent.
//
// Returns:
//   - error: Always nil (connection already closed is not an error)
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		if c.IsConnected() {
			c.publishStatus(buildOfflinePayload(c.clientID))
		}

		quiesce := uint(defaultDisconnectQuiesce)
		if c.cfg.Timeouts.Disconnect > 0 {
			quiesce = uint(c.cfg.Timeouts.Disconnect * 1000)
		}
		c.client.Disconnect(quiesce)

		c.setState(StateDisconnected)
	})
	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if c.closed.Load() {
		return ErrClosed
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: state %s", ErrNotConnected, c.State())
	}

	return nil
}

// IsConnected reports whether the client is CONNECTED and paho agrees.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client.IsConnected()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(s ConnectionState) {
	c.stateMu.Lock()
	prev := c.state
	c.state = s
	c.stateMu.Unlock()

	if prev != s {
		c.logger.Debug("MQTT state changed", "from", prev.String(), "to", s.String())
	}
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.stats.received.Add(1)

		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Debug("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

var _ pahoClient = pahomqtt.Client(nil)
