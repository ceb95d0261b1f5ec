// Package hubserver is the reference hub: one multiplexed websocket
// per user carrying chat and call signaling. It backs local
// development and the client integration tests.
package hubserver

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vanhungne/tutoring-live/internal/domain"
)

type sessionEntry struct {
	User   *domain.User
	Conn   *wsConn
	Cancel context.CancelFunc

	// rooms the user has ever joined. Delivery keeps flowing after a
	// leave_room so unread badges update for non-current rooms.
	Rooms map[domain.RoomID]bool
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*sessionEntry)}
}

// Bind registers the connection for the user. A previous session for
// the same user is closed: latest connection wins on reconnect.
func (r *Registry) Bind(user *domain.User, conn *wsConn, cancel context.CancelFunc) {
	r.mu.Lock()
	prev := r.sessions[user.Username]
	entry := &sessionEntry{
		User:   user,
		Conn:   conn,
		Cancel: cancel,
		Rooms:  make(map[domain.RoomID]bool),
	}
	if prev != nil {
		entry.Rooms = prev.Rooms
	}
	r.sessions[user.Username] = entry
	r.mu.Unlock()

	if prev != nil {
		log.Info().Str("module", "hubserver.registry").Str("username", user.Username).Msg("replacing previous session")
		prev.Cancel()
		prev.Conn.Close()
	}
}

// Unbind drops the session only if conn is still the bound one, so a
// late close from a replaced connection cannot evict its successor.
func (r *Registry) Unbind(username string, conn *wsConn) {
	r.mu.Lock()
	entry, ok := r.sessions[username]
	if ok && entry.Conn == conn {
		delete(r.sessions, username)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		entry.Cancel()
		log.Info().Str("module", "hubserver.registry").Str("username", username).Msg("session unbound")
	}
}

func (r *Registry) JoinRoom(username string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[username]; ok {
		entry.Rooms[roomID] = true
	}
}

// SessionOf returns the live session bound for username, if any.
func (r *Registry) SessionOf(username string) (*sessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[username]
	return entry, ok
}

// MembersOf returns the live connections of everyone who has joined
// roomID, excluding the listed usernames.
func (r *Registry) MembersOf(roomID domain.RoomID, except ...string) []*sessionEntry {
	skip := make(map[string]bool, len(except))
	for _, name := range except {
		skip[name] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*sessionEntry
	for _, entry := range r.sessions {
		if entry.Rooms[roomID] && !skip[entry.User.Username] {
			out = append(out, entry)
		}
	}
	return out
}
