package yapper

// ConnectionState is where the transport is in its dial / drop / retry cycle.
//
//	Disconnected -> Connecting -> Connected -> Reconnecting -> Connected ...
//	                                         \-> Disconnected (retries spent)
//	any -> Closed (Disconnect)
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateReconnecting: "reconnecting",
	StateClosed:       "closed",
}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Idle reports that no socket is up and the transport is not working on one.
// Only Connect leaves an idle state.
func (s ConnectionState) Idle() bool {
	return s == StateDisconnected || s == StateClosed
}

// StateEvent is one transition. Error is the cause of a drop or a failed
// dial, nil otherwise.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error
}

// Lost reports that a live socket went away without Disconnect.
func (e StateEvent) Lost() bool {
	return e.OldState == StateConnected && e.NewState != StateConnected && e.NewState != StateClosed
}
