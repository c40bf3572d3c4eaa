package fan

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ValidateOutputLevel checks a requested output level and clamps it to
// [MinOutput, MaxOutput].
//
// raw is typically a value decoded from JSON. Accepted inputs are any Go
// integer type, float32/float64 and json.Number, as long as the value is
// integer valued. Missing values (nil), strings, booleans, fractional
// numbers and non-finite numbers are rejected with ErrInvalidOutput.
// Magnitude is never an error: -5 becomes 0 and 150 becomes 100.
func ValidateOutputLevel(raw any) (int, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("%w: value is required", ErrInvalidOutput)
	case int:
		return clampInt64(int64(v)), nil
	case int8:
		return clampInt64(int64(v)), nil
	case int16:
		return clampInt64(int64(v)), nil
	case int32:
		return clampInt64(int64(v)), nil
	case int64:
		return clampInt64(v), nil
	case uint:
		return clampUint64(uint64(v)), nil
	case uint8:
		return clampUint64(uint64(v)), nil
	case uint16:
		return clampUint64(uint64(v)), nil
	case uint32:
		return clampUint64(uint64(v)), nil
	case uint64:
		return clampUint64(v), nil
	case float32:
		return clampIntegral(float64(v))
	case float64:
		return clampIntegral(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return clampInt64(n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidOutput, v.String())
		}
		return clampIntegral(f)
	default:
		return 0, fmt.Errorf("%w: expected an integer, got %T", ErrInvalidOutput, raw)
	}
}

func clampIntegral(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrInvalidOutput, f)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidOutput, f)
	}
	return ClampOutput(f), nil
}

func clampInt64(n int64) int {
	switch {
	case n < MinOutput:
		return MinOutput
	case n > MaxOutput:
		return MaxOutput
	default:
		return int(n)
	}
}

func clampUint64(n uint64) int {
	if n > MaxOutput {
		return MaxOutput
	}
	return int(n)
}

// ClampOutput rounds f to the nearest integer and clamps it to
// [MinOutput, MaxOutput]. NaN maps to MinOutput.
func ClampOutput(f float64) int {
	switch {
	case math.IsNaN(f), f <= MinOutput:
		return MinOutput
	case f >= MaxOutput:
		return MaxOutput
	default:
		return int(math.Round(f))
	}
}

// TogglePower returns the opposite power status.
func TogglePower(p PowerStatus) PowerStatus {
	if p == PowerOn {
		return PowerOff
	}
	return PowerOn
}

// ParsePowerStatus parses "ON" or "OFF", ignoring case and surrounding space.
func ParsePowerStatus(s string) (PowerStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(PowerOn):
		return PowerOn, nil
	case string(PowerOff):
		return PowerOff, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPower, s)
	}
}
