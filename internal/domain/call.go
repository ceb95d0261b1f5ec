package domain

// CallState is the lifecycle of the single active call session.
type CallState int

const (
	CallIdle CallState = iota
	CallOutgoing
	CallIncoming
	CallNegotiating
	CallConnected
	CallEnded
	CallRejected
	CallFailed
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallOutgoing:
		return "outgoing"
	case CallIncoming:
		return "incoming"
	case CallNegotiating:
		return "negotiating"
	case CallConnected:
		return "connected"
	case CallEnded:
		return "ended"
	case CallRejected:
		return "rejected"
	case CallFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the state releases all call resources.
func (s CallState) Terminal() bool {
	return s == CallEnded || s == CallRejected || s == CallFailed
}

type CallRole int

const (
	RoleNone CallRole = iota
	RoleCaller
	RoleCallee
)

func (r CallRole) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	}
	return "none"
}

// CallInfo is the slice of call metadata exposed to the UI store.
type CallInfo struct {
	RoomID       RoomID   `json:"roomId"`
	PeerUsername string   `json:"peerUsername"`
	Role         CallRole `json:"-"`
	Reason       string   `json:"reason,omitempty"`
}
