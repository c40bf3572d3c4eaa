// Package mqtt provides MQTT client connectivity for the fan bridge.
//
// This package manages:
//   - Connection to the broker with a supervised reconnect loop
//   - Restoration of subscriptions on every connect
//   - Message publishing with bounded waits
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health and counters
//
// # Architecture
//
// The fan controller and its sensors publish telemetry to the broker; the
// bridge subscribes to those topics and publishes fan commands back.
//
//	Fan controller <-> MQTT Broker <-> fanbridge <-> HTTP clients
//
// # Reconnection
//
// paho's own auto-reconnect is disabled. Run owns the schedule: exponential
// backoff from cenkalti/backoff, never shorter than three seconds between
// attempts, retrying until the context is cancelled. Subscriptions are
// re-issued before the state becomes CONNECTED, so no telemetry is handled
// on a half-restored session.
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT, mqtt.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	_ = client.Subscribe("sensors/temp", 1, handler)
//	go client.Run(ctx)
//
//	err = client.Publish("fan/output", []byte("75"), 1, false)
package mqtt
