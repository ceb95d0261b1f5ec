package session

import (
	"context"

	"github.com/vanhungne/tutoring-live/internal/call"
	"github.com/vanhungne/tutoring-live/internal/core"
	"github.com/vanhungne/tutoring-live/internal/domain"
	"github.com/vanhungne/tutoring-live/internal/hub"
)

// ChatSession is the chat-facing slice of the session: room membership,
// messages and presence, nothing about calls.
type ChatSession struct {
	hub   *hub.Client
	store ChatState
}

// ChatState is what the chat facade reads back for its callers.
type ChatState interface {
	Messages(roomID domain.RoomID) []domain.ChatMessage
	Rooms() []domain.Room
	UnreadCount() int
}

func (s *Session) Chat() *ChatSession {
	return &ChatSession{hub: s.Hub, store: s.Store}
}

func (c *ChatSession) Join(roomID domain.RoomID) error  { return c.hub.JoinRoom(roomID) }
func (c *ChatSession) Leave(roomID domain.RoomID) error { return c.hub.LeaveRoom(roomID) }

func (c *ChatSession) Send(content string, roomID domain.RoomID) error {
	return c.hub.SendMessage(content, roomID)
}

func (c *ChatSession) SetTyping(roomID domain.RoomID, isTyping bool) {
	c.hub.SendTypingStatus(roomID, isTyping)
}

func (c *ChatSession) MarkSeen(roomID domain.RoomID) error {
	return c.hub.UpdateLastSeen(roomID)
}

func (c *ChatSession) Messages(roomID domain.RoomID) []domain.ChatMessage {
	return c.store.Messages(roomID)
}

func (c *ChatSession) Rooms() []domain.Room { return c.store.Rooms() }
func (c *ChatSession) UnreadCount() int     { return c.store.UnreadCount() }

func (c *ChatSession) OnMessage(fn func(domain.ChatMessage)) func() {
	return c.hub.OnMessage(fn)
}

func (c *ChatSession) OnTyping(fn func(username string, isTyping bool)) func() {
	return c.hub.OnTyping(fn)
}

func (c *ChatSession) OnStatus(fn func(hub.Status)) func() {
	return c.hub.OnStatus(fn)
}

// CallSession is the call-facing slice: the user actions plus the media
// hooks a UI binds video elements to.
type CallSession struct {
	machine *call.Machine
}

func (s *Session) Call() *CallSession {
	return &CallSession{machine: s.Calls}
}

func (c *CallSession) Initiate(ctx context.Context, roomID domain.RoomID) error {
	return c.machine.Initiate(ctx, roomID)
}

func (c *CallSession) Accept(ctx context.Context) error { return c.machine.Accept(ctx) }
func (c *CallSession) Reject() error                    { return c.machine.Reject() }
func (c *CallSession) End() error                       { return c.machine.End() }
func (c *CallSession) State() domain.CallState          { return c.machine.State() }

func (c *CallSession) OnLocalMedia(fn func(core.LocalMedia)) { c.machine.OnLocalMedia(fn) }

func (c *CallSession) OnRemoteMedia(fn func(core.RemoteMedia)) { c.machine.OnRemoteMedia(fn) }
