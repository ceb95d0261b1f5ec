package hub

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// dispatch routes one inbound frame. Frames are handled in the order
// the transport delivers them; malformed payloads are dropped here and
// never reach subscribers.
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("bad frame")
		return
	}

	switch env.Type {
	case TypeReceiveMessage:
		var ev MessageEvent
		if !c.decode(data, &ev, env.Type) {
			return
		}
		c.handleMessage(ev)

	case TypeUserTyping:
		var ev UserTypingEvent
		if !c.decode(data, &ev, env.Type) {
			return
		}
		c.listeners.notifyTyping(ev.Username, ev.IsTyping)

	case TypeUnreadCount:
		var ev UnreadCountEvent
		if !c.decode(data, &ev, env.Type) {
			return
		}
		c.store.SetRoomUnread(ev.RoomID, ev.HasUnread)

	case TypeLastSeen:
		var ev LastSeenEvent
		if !c.decode(data, &ev, env.Type) {
			return
		}
		c.store.SetLastSeen(ev.RoomID, ev.Username, ev.LastSeen)

	case TypeIncomingCall, TypeCallAccepted, TypeCallRejected, TypeCallEnded:
		var ev CallEvent
		if !c.decode(data, &ev, env.Type) {
			return
		}
		c.dispatchCall(ev)

	case TypeSendOffer, TypeSendAnswer, TypeSendIceCandidate:
		var sig SignalPayload
		if !c.decode(data, &sig, env.Type) {
			return
		}
		c.dispatchSignal(sig)

	case TypeError:
		var ev ErrorEvent
		if !c.decode(data, &ev, env.Type) {
			return
		}
		c.handleServerError(ev)

	default:
		log.Warn().Str("module", "hub").Str("type", env.Type).Msg("unknown event")
	}
}

func (c *Client) decode(data []byte, v any, typ string) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Error().Err(err).Str("module", "hub").Str("type", typ).Msg("bad payload")
		return false
	}
	return true
}

// handleMessage applies deduplication and the client-driven unread
// policy, then fans out to subscribers. The sender's own broadcast copy
// is dropped: the local echo already published it.
func (c *Client) handleMessage(ev MessageEvent) {
	msg := ev.Message
	if c.seenBefore(msg.ID) {
		log.Debug().Str("module", "hub").Str("id", msg.ID).Msg("duplicate message dropped")
		return
	}

	c.mu.Lock()
	own := msg.Username != "" && msg.Username == c.username
	current := c.currentRoomID
	c.mu.Unlock()
	if own {
		return
	}

	c.store.PublishMessage(msg)
	c.store.SetRoomUnread(msg.RoomID, msg.RoomID != current)
	c.listeners.notifyMessage(msg)
}

func (c *Client) seenBefore(id string) bool {
	c.mu.Lock()
	cache := c.dedup
	c.mu.Unlock()
	if id == "" || cache == nil {
		return false
	}
	if cache.Seen(id) {
		return true
	}
	cache.Remember(id)
	return false
}

func (c *Client) dispatchCall(ev CallEvent) {
	c.mu.Lock()
	h := c.calls
	c.mu.Unlock()
	if h == nil {
		log.Debug().Str("module", "hub").Str("type", ev.Type).Msg("call event with no handler bound")
		return
	}
	switch ev.Type {
	case TypeIncomingCall:
		h.HandleIncomingCall(ev)
	case TypeCallAccepted:
		h.HandleCallAccepted(ev)
	case TypeCallRejected:
		h.HandleCallRejected(ev)
	case TypeCallEnded:
		h.HandleCallEnded(ev)
	}
}

func (c *Client) dispatchSignal(sig SignalPayload) {
	c.mu.Lock()
	h := c.calls
	c.mu.Unlock()
	if h == nil {
		return
	}
	switch sig.Type {
	case TypeSendOffer:
		h.HandleOffer(sig)
	case TypeSendAnswer:
		h.HandleAnswer(sig)
	case TypeSendIceCandidate:
		h.HandleIceCandidate(sig)
	}
}

// handleServerError covers invocation-level failures the hub reports in
// band. An authorization error triggers exactly one refresh-and-restart;
// a repeat is surfaced as fatal.
func (c *Client) handleServerError(ev ErrorEvent) {
	log.Error().Str("module", "hub").Str("error", ev.Error).Msg("hub error")
	if ev.Error != "unauthorized" {
		return
	}

	c.mu.Lock()
	retried := c.authRetried
	c.authRetried = true
	ctx := c.ctx
	c.mu.Unlock()

	if retried {
		c.listeners.notifyStatus(StatusAuthFailed)
		return
	}

	fresh, err := c.creds.Refresh()
	if err != nil || fresh == "" {
		log.Error().Err(err).Str("module", "hub").Msg("token refresh failed")
		c.listeners.notifyStatus(StatusAuthFailed)
		return
	}

	c.mu.Lock()
	c.token = fresh
	c.state = Disconnected
	c.gen++
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if err := c.connect(ctx, fresh); err != nil {
			log.Error().Err(err).Str("module", "hub").Msg("restart after token refresh failed")
			c.listeners.notifyStatus(StatusAuthFailed)
		}
	}()
}
