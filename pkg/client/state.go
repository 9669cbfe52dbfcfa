package client

// ConnState tracks where the client is in the connection lifecycle.
// The normal path is Disconnected -> Connecting -> Connected ->
// Initializing -> Ready; Errored is reachable from anywhere.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateInitializing
	StateReady
	StateErrored
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateErrored:
		return "error"
	default:
		return "unknown"
	}
}
