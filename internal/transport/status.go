package transport

// Status represents the process-wide transport connection status. One
// connection multiplexes every subscribed stream.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// StatusChange is one transition on the status stream. Reason is set only for
// StatusError.
type StatusChange struct {
	Status Status
	Reason string
}
