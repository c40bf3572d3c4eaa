package fan

import (
	"math"
	"sync"
	"time"
)

// Store holds the current DeviceState.
//
// All access goes through one mutex; Read returns a copy so callers never
// hold a reference into live state. Each Apply call changes exactly one
// field.
//
// Thread Safety: All methods are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state DeviceState

	// notifyMu is taken before mu is released so observers see changes in
	// the order they were made, without readers waiting on observers.
	notifyMu sync.Mutex
	onChange func(DeviceState)

	now func() time.Time
}

// NewStore creates a Store with the power-on defaults: OFF, both outputs 0,
// no temperature or humidity reading.
func NewStore(humidityEnabled bool) *Store {
	return &Store{
		state: DeviceState{
			Power:           PowerOff,
			CommandedOutput: MinOutput,
			ObservedOutput:  MinOutput,
			Temperature:     math.NaN(),
			Humidity:        math.NaN(),
			HumidityEnabled: humidityEnabled,
		},
		now: time.Now,
	}
}

// SetOnChange registers fn to receive a snapshot after every change.
// fn runs outside the state lock and must not block.
func (s *Store) SetOnChange(fn func(DeviceState)) {
	s.notifyMu.Lock()
	s.onChange = fn
	s.notifyMu.Unlock()
}

// Read returns a copy of the current state.
func (s *Store) Read() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ApplyTelemetry stores one value reported by the device.
//
// Output levels are clamped to [MinOutput, MaxOutput]. Non-finite
// temperature or humidity values, humidity when humidity is disabled, and
// command-only signals are ignored.
//
// Returns:
//   - bool: true if the reading was stored
func (s *Store) ApplyTelemetry(r Reading) bool {
	switch r.Signal {
	case SignalTemperature:
		if !finite(r.Value) {
			return false
		}
		return s.update(func(st *DeviceState) bool {
			st.Temperature = r.Value
			return true
		})

	case SignalHumidity:
		if !finite(r.Value) {
			return false
		}
		return s.update(func(st *DeviceState) bool {
			if !st.HumidityEnabled {
				return false
			}
			st.Humidity = r.Value
			return true
		})

	case SignalObservedOutput:
		if math.IsNaN(r.Value) {
			return false
		}
		level := ClampOutput(r.Value)
		return s.update(func(st *DeviceState) bool {
			st.ObservedOutput = level
			return true
		})

	case SignalPower:
		if r.Power != PowerOn && r.Power != PowerOff {
			return false
		}
		return s.update(func(st *DeviceState) bool {
			st.Power = r.Power
			return true
		})

	default:
		return false
	}
}

// ApplyCommand stores a locally accepted command value. Only
// SignalCommandedOutput is accepted; power changes go through UpdatePower.
//
// Returns:
//   - bool: true if the command was stored
func (s *Store) ApplyCommand(r Reading) bool {
	if r.Signal != SignalCommandedOutput || math.IsNaN(r.Value) {
		return false
	}
	level := ClampOutput(r.Value)
	return s.update(func(st *DeviceState) bool {
		st.CommandedOutput = level
		return true
	})
}

// UpdatePower replaces the power status with fn(current) inside one
// critical section, so concurrent toggles compose.
//
// Returns:
//   - PowerStatus: the stored status
func (s *Store) UpdatePower(fn func(PowerStatus) PowerStatus) PowerStatus {
	var next PowerStatus
	s.update(func(st *DeviceState) bool {
		next = fn(st.Power)
		if next != PowerOn && next != PowerOff {
			next = st.Power
			return false
		}
		st.Power = next
		return true
	})
	return next
}

// update applies mutate under the lock and, if it reports a change,
// stamps UpdatedAt and notifies the observer.
func (s *Store) update(mutate func(*DeviceState) bool) bool {
	s.mu.Lock()

	if !mutate(&s.state) {
		s.mu.Unlock()
		return false
	}
	s.state.UpdatedAt = s.now()
	snapshot := s.state

	s.notifyMu.Lock()
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(snapshot)
	}
	s.notifyMu.Unlock()

	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
