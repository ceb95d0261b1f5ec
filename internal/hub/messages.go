package hub

import (
	"time"

	"github.com/vanhungne/tutoring-live/internal/domain"
)

// Wire protocol: one JSON object per frame, discriminated by "type".
// Every variant has an explicit payload struct; unknown or malformed
// frames are logged and dropped at the boundary.

// Invocations (client -> hub).
const (
	TypeJoinRoom         = "join_room"
	TypeLeaveRoom        = "leave_room"
	TypeSendMessage      = "send_message"
	TypeTypingStatus     = "typing_status"
	TypeUpdateLastSeen   = "update_last_seen"
	TypeInitiateCall     = "call_initiate"
	TypeAcceptCall       = "call_accept"
	TypeRejectCall       = "call_reject"
	TypeEndCall          = "call_end"
	TypeSendOffer        = "offer"
	TypeSendAnswer       = "answer"
	TypeSendIceCandidate = "candidate"
)

// Events (hub -> client). Offer/answer/candidate reuse the invocation
// type strings; direction disambiguates.
const (
	TypeReceiveMessage = "message"
	TypeUserTyping     = "user_typing"
	TypeUnreadCount    = "unread_count"
	TypeLastSeen       = "last_seen"
	TypeIncomingCall   = "call_incoming"
	TypeCallAccepted   = "call_accepted"
	TypeCallRejected   = "call_rejected"
	TypeCallEnded      = "call_ended"
	TypeError          = "error"
)

// envelope is the type probe; the full payload is unmarshalled a second
// time into the matching variant.
type envelope struct {
	Type string `json:"type"`
}

type JoinRoomInvoke struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type LeaveRoomInvoke struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type SendMessageInvoke struct {
	Type    string        `json:"type"`
	RoomID  domain.RoomID `json:"roomId"`
	Content string        `json:"content"`
}

type TypingStatusInvoke struct {
	Type     string        `json:"type"`
	RoomID   domain.RoomID `json:"roomId"`
	IsTyping bool          `json:"isTyping"`
}

type UpdateLastSeenInvoke struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

// CallControl carries initiate/accept/reject/end. CallerUsername is set
// on accept/reject so the hub can address the caller directly.
type CallControl struct {
	Type           string        `json:"type"`
	RoomID         domain.RoomID `json:"roomId"`
	CallerUsername string        `json:"callerUsername,omitempty"`
}

// SignalPayload carries offer, answer and candidate frames in both
// directions. The SDP or candidate travels as a JSON-serialized string,
// matching what the browser client put on the wire.
type SignalPayload struct {
	Type         string        `json:"type"`
	RoomID       domain.RoomID `json:"roomId"`
	FromUsername string        `json:"fromUsername,omitempty"`
	Offer        string        `json:"offer,omitempty"`
	Answer       string        `json:"answer,omitempty"`
	IceCandidate string        `json:"iceCandidate,omitempty"`
}

type MessageEvent struct {
	Type    string             `json:"type"`
	Message domain.ChatMessage `json:"message"`
}

type UserTypingEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type UnreadCountEvent struct {
	Type      string        `json:"type"`
	RoomID    domain.RoomID `json:"roomId"`
	HasUnread bool          `json:"hasUnread"`
}

type LastSeenEvent struct {
	Type     string        `json:"type"`
	RoomID   domain.RoomID `json:"roomId"`
	Username string        `json:"username"`
	LastSeen time.Time     `json:"lastSeen"`
}

// CallEvent notifies call lifecycle changes. Username is the acting
// peer: the caller for call_incoming, the callee for accepted/rejected,
// whoever hung up for call_ended.
type CallEvent struct {
	Type     string        `json:"type"`
	RoomID   domain.RoomID `json:"roomId"`
	Username string        `json:"username"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
