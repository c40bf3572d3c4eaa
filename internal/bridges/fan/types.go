package fan

import (
	"math"
	"time"
)

// PowerStatus is the fan's power state. It is always PowerOn or PowerOff.
type PowerStatus string

const (
	PowerOn  PowerStatus = "ON"
	PowerOff PowerStatus = "OFF"
)

// Output level bounds, in percent duty.
const (
	MinOutput = 0
	MaxOutput = 100
)

// DeviceState is the bridge's view of the single fan and its sensors.
//
// Temperature and Humidity are NaN until the first reading arrives.
// Humidity is only tracked when HumidityEnabled is set.
type DeviceState struct {
	Power           PowerStatus
	CommandedOutput int
	ObservedOutput  int
	Temperature     float64
	Humidity        float64
	HumidityEnabled bool
	UpdatedAt       time.Time
}

// HasTemperature reports whether a temperature reading has been received.
func (s DeviceState) HasTemperature() bool {
	return !math.IsNaN(s.Temperature)
}

// HasHumidity reports whether a humidity reading has been received.
func (s DeviceState) HasHumidity() bool {
	return s.HumidityEnabled && !math.IsNaN(s.Humidity)
}

// Signal identifies one field of DeviceState.
type Signal int

const (
	SignalTemperature Signal = iota + 1
	SignalHumidity
	SignalObservedOutput
	SignalPower
	SignalCommandedOutput
)

// String returns the signal name used in logs.
func (s Signal) String() string {
	switch s {
	case SignalTemperature:
		return "temperature"
	case SignalHumidity:
		return "humidity"
	case SignalObservedOutput:
		return "observed_output"
	case SignalPower:
		return "power"
	case SignalCommandedOutput:
		return "commanded_output"
	default:
		return "unknown"
	}
}

// Reading is a single decoded value for one Signal.
// Power is used for SignalPower; Value for every other signal.
type Reading struct {
	Signal Signal
	Value  float64
	Power  PowerStatus
}

// TemperatureReading returns a Reading for the temperature signal.
func TemperatureReading(celsius float64) Reading {
	return Reading{Signal: SignalTemperature, Value: celsius}
}

// HumidityReading returns a Reading for the humidity signal.
func HumidityReading(percent float64) Reading {
	return Reading{Signal: SignalHumidity, Value: percent}
}

// ObservedOutputReading returns a Reading for the reported fan duty.
func ObservedOutputReading(level float64) Reading {
	return Reading{Signal: SignalObservedOutput, Value: level}
}

// PowerReading returns a Reading for a power status readback.
func PowerReading(p PowerStatus) Reading {
	return Reading{Signal: SignalPower, Power: p}
}

// CommandedOutputReading returns a Reading for an accepted output command.
func CommandedOutputReading(level int) Reading {
	return Reading{Signal: SignalCommandedOutput, Value: float64(level)}
}

// DeliveryStatus reports what happened to the outbound bus message for a command.
// DeliverySent means the client handed the message to its transport; it
// does not mean the device acted on it.
type DeliveryStatus string

const (
	DeliverySent       DeliveryStatus = "sent"
	DeliverySendFailed DeliveryStatus = "send_failed"
)

// CommandResult is the outcome of a dispatched command. The local state
// change stands even when Delivery is DeliverySendFailed.
type CommandResult struct {
	Power    PowerStatus
	Output   int
	Delivery DeliveryStatus
	Err      error
}
