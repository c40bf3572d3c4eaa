package fan

import "errors"

// Domain errors for the fan bridge package.
var (
	// ErrInvalidOutput is returned when a requested output level is missing
	// or is not an integer-valued number. Out-of-range integers are clamped,
	// not rejected.
	ErrInvalidOutput = errors.New("fan: invalid output level")

	// ErrEmptyPayload is returned for inbound messages with no payload.
	ErrEmptyPayload = errors.New("fan: empty payload")

	// ErrDecode is returned when an inbound payload cannot be decoded for
	// its topic.
	ErrDecode = errors.New("fan: payload decode failed")

	// ErrUnknownTopic is returned when a message arrives on a topic the
	// bridge has no binding for.
	ErrUnknownTopic = errors.New("fan: unknown topic")

	// ErrInvalidPower is returned when a power status string is neither ON nor OFF.
	ErrInvalidPower = errors.New("fan: invalid power status")
)
