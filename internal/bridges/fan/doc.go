// Package fan implements the bridge between the fan's MQTT topics and the
// synchronous control surface.
//
// Components:
//   - Store: the single DeviceState behind a mutex, copy-on-read
//   - ValidateOutputLevel, TogglePower: pure command validation
//   - Bridge: decodes inbound telemetry and applies it to the Store
//   - Dispatcher: applies commands locally and publishes them
//   - Query: read-only snapshots for the API layer
//
// Data flow:
//
//	MQTT -> Bridge.HandleMessage -> Store -> Query.Snapshot -> HTTP
//	HTTP -> Dispatcher -> ValidateOutputLevel -> Store + Publisher -> MQTT
//
// # Error Handling
//
//   - ErrInvalidOutput: bad control input, reported to the caller (HTTP 400)
//   - ErrEmptyPayload, ErrDecode: bad inbound payloads, logged and dropped
//   - Publish failures never roll back local state; see CommandResult.Delivery
//
// # Usage
//
//	store := fan.NewStore(cfg.Topics.HumidityEnabled())
//	bridge := fan.NewBridge(store, cfg.Topics, logger)
//	_ = bridge.Subscribe(mqttClient)
//	dispatcher := fan.NewDispatcher(store, mqttClient, cfg.Topics, logger)
//	result := dispatcher.ToggleFanPower()
package fan
