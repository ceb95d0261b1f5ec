// Package store keeps the client-side view of rooms, messages and the
// call: what a UI binds to.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/vanhungne/tutoring-live/internal/domain"
)

// Memory is a mutex-guarded in-memory state store.
type Memory struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*domain.Room
	messages map[domain.RoomID][]domain.ChatMessage
	lastSeen map[domain.RoomID]map[string]time.Time

	callState domain.CallState
	callInfo  *domain.CallInfo
}

func NewMemory() *Memory {
	return &Memory{
		rooms:     make(map[domain.RoomID]*domain.Room),
		messages:  make(map[domain.RoomID][]domain.ChatMessage),
		lastSeen:  make(map[domain.RoomID]map[string]time.Time),
		callState: domain.CallIdle,
	}
}

func (m *Memory) room(id domain.RoomID) *domain.Room {
	r, ok := m.rooms[id]
	if !ok {
		r = &domain.Room{ID: id}
		m.rooms[id] = r
	}
	return r
}

func (m *Memory) PublishMessage(msg domain.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.room(msg.RoomID)
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], msg)
}

func (m *Memory) SetRoomUnread(roomID domain.RoomID, hasUnread bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.room(roomID).HasUnreadMessages = hasUnread
}

func (m *Memory) SetLastSeen(roomID domain.RoomID, username string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.room(roomID)
	seen, ok := m.lastSeen[roomID]
	if !ok {
		seen = make(map[string]time.Time)
		m.lastSeen[roomID] = seen
	}
	seen[username] = at
}

func (m *Memory) SetCallState(state domain.CallState, info *domain.CallInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callState = state
	m.callInfo = info
}

// Messages returns a copy of the room history in arrival order.
func (m *Memory) Messages(roomID domain.RoomID) []domain.ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.messages[roomID]
	out := make([]domain.ChatMessage, len(src))
	copy(out, src)
	return out
}

// Rooms returns a snapshot of known rooms sorted by id.
func (m *Memory) Rooms() []domain.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnreadCount reports how many rooms carry unread messages.
func (m *Memory) UnreadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rooms {
		if r.HasUnreadMessages {
			n++
		}
	}
	return n
}

func (m *Memory) LastSeen(roomID domain.RoomID, username string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen, ok := m.lastSeen[roomID]
	if !ok {
		return time.Time{}, false
	}
	at, ok := seen[username]
	return at, ok
}

func (m *Memory) CallState() (domain.CallState, *domain.CallInfo) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.callInfo == nil {
		return m.callState, nil
	}
	info := *m.callInfo
	return m.callState, &info
}
