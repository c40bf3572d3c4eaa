package mqtt

// ConnectionState describes where the client is in its connection lifecycle.
//
//	DISCONNECTED -> CONNECTING -> CONNECTED
//	CONNECTED -> RECONNECTING (on loss) -> CONNECTING -> ...
//	any -> DISCONNECTED (on Close)
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the upper-case state name used in logs and the health endpoint.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets the state render as its name in JSON.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
