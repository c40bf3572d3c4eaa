package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic.
//
// Publish returns once paho has accepted the message (QoS 0) or the broker
// has acknowledged it (QoS 1), bounded by the configured publish timeout.
// It does not retry.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "fan/output")
//   - payload: The message payload (max 1MB)
//   - qos: Quality of Service level (0 or 1)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or ErrNotConnected / ErrPublishFailed / ErrClosed
//
// Example:
//
//	err := client.Publish("fan/status", []byte("ON"), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if c.closed.Load() {
		return ErrClosed
	}

	if !c.IsConnected() {
		c.stats.publishFailures.Add(1)
		c.stats.recordError(ErrNotConnected)
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.publishTimeout) {
		err := fmt.Errorf("%w: timeout after %v", ErrPublishFailed, c.publishTimeout)
		c.stats.publishFailures.Add(1)
		c.stats.recordError(err)
		return err
	}
	if err := token.Error(); err != nil {
		err = fmt.Errorf("%w: %w", ErrPublishFailed, err)
		c.stats.publishFailures.Add(1)
		c.stats.recordError(err)
		return err
	}

	c.stats.published.Add(1)
	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}
