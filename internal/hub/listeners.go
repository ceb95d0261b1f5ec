package hub

import (
	"sync"

	"github.com/vanhungne/tutoring-live/internal/domain"
)

// Status is pushed to status subscribers on connection lifecycle edges.
type Status int

const (
	StatusConnected Status = iota
	StatusReconnecting
	StatusGaveUp
	StatusAuthFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusGaveUp:
		return "gave_up"
	case StatusAuthFailed:
		return "auth_failed"
	}
	return "unknown"
}

// listenerHub holds subscriber callbacks. Subscriptions return an
// unsubscribe func; multiple listeners per event are fine.
type listenerHub struct {
	mu      sync.Mutex
	nextID  int
	message map[int]func(domain.ChatMessage)
	typing  map[int]func(username string, isTyping bool)
	status  map[int]func(Status)
}

func (l *listenerHub) add(register func(id int)) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	register(id)
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.message, id)
		delete(l.typing, id)
		delete(l.status, id)
		l.mu.Unlock()
	}
}

func (c *Client) OnMessage(fn func(domain.ChatMessage)) func() {
	return c.listeners.add(func(id int) {
		if c.listeners.message == nil {
			c.listeners.message = make(map[int]func(domain.ChatMessage))
		}
		c.listeners.message[id] = fn
	})
}

func (c *Client) OnTyping(fn func(username string, isTyping bool)) func() {
	return c.listeners.add(func(id int) {
		if c.listeners.typing == nil {
			c.listeners.typing = make(map[int]func(string, bool))
		}
		c.listeners.typing[id] = fn
	})
}

func (c *Client) OnStatus(fn func(Status)) func() {
	return c.listeners.add(func(id int) {
		if c.listeners.status == nil {
			c.listeners.status = make(map[int]func(Status))
		}
		c.listeners.status[id] = fn
	})
}

func (l *listenerHub) notifyMessage(msg domain.ChatMessage) {
	for _, fn := range l.snapshotMessage() {
		fn(msg)
	}
}

func (l *listenerHub) notifyTyping(username string, isTyping bool) {
	l.mu.Lock()
	fns := make([]func(string, bool), 0, len(l.typing))
	for _, fn := range l.typing {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(username, isTyping)
	}
}

func (l *listenerHub) notifyStatus(s Status) {
	l.mu.Lock()
	fns := make([]func(Status), 0, len(l.status))
	for _, fn := range l.status {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (l *listenerHub) snapshotMessage() []func(domain.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fns := make([]func(domain.ChatMessage), 0, len(l.message))
	for _, fn := range l.message {
		fns = append(fns, fn)
	}
	return fns
}

func (l *listenerHub) clear() {
	l.mu.Lock()
	l.message = nil
	l.typing = nil
	l.status = nil
	l.mu.Unlock()
}
