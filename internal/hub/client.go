// Package hub owns the single persistent authenticated connection to
// the messaging hub: connect/reconnect/close, room join/leave, outbound
// invocations and inbound event dispatch. Chat messages pass through
// the dedup cache before reaching subscribers; call signaling events
// are forwarded to the bound call handler.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vanhungne/tutoring-live/internal/auth"
	"github.com/vanhungne/tutoring-live/internal/backoff"
	"github.com/vanhungne/tutoring-live/internal/config"
	"github.com/vanhungne/tutoring-live/internal/core"
	"github.com/vanhungne/tutoring-live/internal/dedup"
	"github.com/vanhungne/tutoring-live/internal/domain"
)

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "disconnected"
}

var (
	ErrAuthorization = errors.New("hub authorization failed")
	ErrNotConnected  = errors.New("hub not connected")
)

const writeWait = 5 * time.Second

type Options struct {
	URL              string
	Backoff          backoff.Policy
	DedupTTL         time.Duration
	PingPeriod       time.Duration
	HandshakeTimeout time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL: cfg.HubURL,
		Backoff: backoff.Policy{
			Base:        cfg.ReconnectBase,
			Cap:         cfg.ReconnectCap,
			MaxAttempts: cfg.ReconnectMax,
		},
		DedupTTL:         cfg.DedupTTL,
		PingPeriod:       cfg.PingPeriod,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
}

// CallEvents receives the signaling events the call state machine
// consumes. Bound once by the composing session.
type CallEvents interface {
	HandleIncomingCall(ev CallEvent)
	HandleCallAccepted(ev CallEvent)
	HandleCallRejected(ev CallEvent)
	HandleCallEnded(ev CallEvent)
	HandleOffer(sig SignalPayload)
	HandleAnswer(sig SignalPayload)
	HandleIceCandidate(sig SignalPayload)
}

// Client maintains exactly one live hub connection and re-establishes
// it transparently. Reentrant calls are guarded by state, not queued:
// Start while Connecting/Connected is a no-op.
type Client struct {
	opts  Options
	creds core.CredentialProvider
	store core.StateStore

	mu            sync.Mutex
	conn          *websocket.Conn
	state         ConnectionState
	token         string
	username      string
	currentRoomID domain.RoomID
	attempt       int
	gaveUp        bool
	authRetried   bool
	stopped       bool
	gen           int
	ctx           context.Context
	dedup         *dedup.Cache
	reconnect     *time.Timer

	writeMu sync.Mutex

	listeners listenerHub
	calls     CallEvents
}

func NewClient(opts Options, creds core.CredentialProvider, store core.StateStore) *Client {
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = dedup.DefaultTTL
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 30 * time.Second
	}
	cache := dedup.NewCache(opts.DedupTTL)
	cache.StartSweeper(opts.DedupTTL)
	return &Client{
		opts:  opts,
		creds: creds,
		store: store,
		dedup: cache,
	}
}

// BindCallEvents attaches the call signaling consumer. Must be called
// before Start.
func (c *Client) BindCallEvents(h CallEvents) {
	c.mu.Lock()
	c.calls = h
	c.mu.Unlock()
}

func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) CurrentRoom() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoomID
}

// Username is the identity extracted from the bearer token.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Start opens the hub connection bound to token. Idempotent: returns
// immediately when already Connecting or Connected. A stale connection
// is torn down first. On an authorization failure the credential is
// refreshed once and the dial retried; a second failure is fatal.
func (c *Client) Start(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		log.Debug().Str("module", "hub").Msg("start skipped, already connecting or connected")
		return nil
	}
	c.state = Connecting
	c.stopped = false
	c.token = token
	c.ctx = ctx
	stale := c.conn
	c.conn = nil
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}

	err := c.connect(ctx, token)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuthorization) {
		c.mu.Lock()
		retried := c.authRetried
		c.authRetried = true
		c.mu.Unlock()
		if !retried {
			fresh, rerr := c.creds.Refresh()
			if rerr == nil && fresh != "" {
				log.Warn().Str("module", "hub").Msg("authorization failed, retrying with refreshed token")
				c.mu.Lock()
				c.token = fresh
				c.mu.Unlock()
				if cerr := c.connect(ctx, fresh); cerr == nil {
					return nil
				}
			}
		}
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		c.listeners.notifyStatus(StatusAuthFailed)
		return err
	}

	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()
	return err
}

func (c *Client) connect(ctx context.Context, token string) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	endpoint := c.opts.URL + "?access_token=" + url.QueryEscape(token)

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %v", ErrAuthorization, err)
		}
		return fmt.Errorf("hub dial: %w", err)
	}

	username, uerr := auth.UsernameFromToken(token)
	if uerr != nil {
		log.Warn().Err(uerr).Str("module", "hub").Msg("could not extract username from token")
	}

	c.mu.Lock()
	// Stop may have landed while the dial was in flight.
	if c.stopped {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	stale := c.conn
	c.conn = conn
	c.state = Connected
	c.username = username
	c.attempt = 0
	c.gaveUp = false
	c.authRetried = false
	c.gen++
	gen := c.gen
	room := c.currentRoomID
	c.mu.Unlock()

	// A concurrent dial lost the race; its pump exits on the stale
	// generation once the socket closes.
	if stale != nil {
		_ = stale.Close()
	}

	log.Info().Str("module", "hub").Str("username", username).Msg("connected")
	c.listeners.notifyStatus(StatusConnected)

	go c.readPump(ctx, conn, gen)
	if c.opts.PingPeriod > 0 {
		go c.pingPump(ctx, conn, gen)
	}

	// Rejoin the room the session was in before the connection dropped.
	if room != "" {
		log.Info().Str("module", "hub").Str("room", string(room)).Msg("rejoining room")
		if jerr := c.writeJSON(JoinRoomInvoke{Type: TypeJoinRoom, RoomID: room}); jerr != nil {
			log.Error().Err(jerr).Str("module", "hub").Msg("rejoin failed")
		} else {
			c.store.SetRoomUnread(room, false)
		}
	}
	return nil
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(ctx, gen, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) pingPump(ctx context.Context, conn *websocket.Conn, gen int) {
	t := time.NewTicker(c.opts.PingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			live := c.conn == conn && c.gen == gen
			c.mu.Unlock()
			if !live {
				return
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleClosed runs when the read pump exits. Stale generations (a
// newer connection already took over) and explicit stops are ignored;
// anything else schedules a reconnect.
func (c *Client) handleClosed(ctx context.Context, gen int, err error) {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Reconnecting
	c.mu.Unlock()

	log.Warn().Err(err).Str("module", "hub").Msg("connection lost, scheduling reconnect")
	c.listeners.notifyStatus(StatusReconnecting)
	c.scheduleReconnect(ctx)
}

func (c *Client) scheduleReconnect(ctx context.Context) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	delay, ok := c.opts.Backoff.Delay(c.attempt)
	if !ok {
		c.state = Disconnected
		fire := !c.gaveUp
		c.gaveUp = true
		c.mu.Unlock()
		if fire {
			log.Error().Str("module", "hub").Msg("max reconnection attempts reached, giving up")
			c.listeners.notifyStatus(StatusGaveUp)
		}
		return
	}
	c.attempt++
	attempt := c.attempt
	c.reconnect = time.AfterFunc(delay, func() { c.tryReconnect(ctx) })
	c.mu.Unlock()
	log.Info().Str("module", "hub").Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
}

func (c *Client) tryReconnect(ctx context.Context) {
	c.mu.Lock()
	if c.stopped || c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return
	}
	c.state = Reconnecting
	token := c.token
	c.mu.Unlock()

	// Re-read the externally supplied credential; it may have rotated
	// while we were disconnected.
	if fresh, err := c.creds.Token(); err == nil && fresh != "" {
		token = fresh
		c.mu.Lock()
		c.token = fresh
		c.mu.Unlock()
	}

	if err := c.connect(ctx, token); err != nil {
		log.Warn().Err(err).Str("module", "hub").Msg("reconnect attempt failed")
		c.scheduleReconnect(ctx)
	}
}

// Stop closes the transport and resets the session to its initial empty
// state. Safe to call at any time, including before Start.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.gen++
	conn := c.conn
	c.conn = nil
	c.state = Disconnected
	c.token = ""
	c.username = ""
	c.currentRoomID = ""
	c.attempt = 0
	c.gaveUp = false
	c.authRetried = false
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	old := c.dedup
	c.dedup = dedup.NewCache(c.opts.DedupTTL)
	c.dedup.StartSweeper(c.opts.DedupTTL)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if old != nil {
		old.Stop()
	}
	c.listeners.clear()
	log.Info().Str("module", "hub").Msg("stopped")
}

// ensureConnected auto-connects with the last known token when an
// invocation arrives while disconnected.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	st := c.state
	token := c.token
	ctx := c.ctx
	c.mu.Unlock()
	if st == Connected {
		return nil
	}
	if token == "" {
		return ErrNotConnected
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log.Info().Str("module", "hub").Msg("not connected, attempting to connect before invoke")
	return c.Start(ctx, token)
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (c *Client) invoke(v any) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}
	return c.writeJSON(v)
}

// JoinRoom joins roomID, remembers it as the current room and clears
// its unread flag. Connects first when necessary.
func (c *Client) JoinRoom(roomID domain.RoomID) error {
	if err := c.invoke(JoinRoomInvoke{Type: TypeJoinRoom, RoomID: roomID}); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	c.mu.Lock()
	c.currentRoomID = roomID
	c.mu.Unlock()
	c.store.SetRoomUnread(roomID, false)
	log.Info().Str("module", "hub").Str("room", string(roomID)).Msg("joined room")
	return nil
}

// LeaveRoom leaves roomID and clears the current room. A no-op when
// there is no live connection.
func (c *Client) LeaveRoom(roomID domain.RoomID) error {
	if c.State() != Connected {
		log.Debug().Str("module", "hub").Msg("no active connection to leave room")
		return nil
	}
	if err := c.writeJSON(LeaveRoomInvoke{Type: TypeLeaveRoom, RoomID: roomID}); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	c.mu.Lock()
	c.currentRoomID = ""
	c.mu.Unlock()
	return nil
}

// SendMessage invokes the remote send and immediately publishes a local
// echo so the sender's UI updates without waiting for the round trip.
func (c *Client) SendMessage(content string, roomID domain.RoomID) error {
	if err := c.invoke(SendMessageInvoke{Type: TypeSendMessage, RoomID: roomID, Content: content}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	c.mu.Lock()
	username := c.username
	c.mu.Unlock()
	c.store.PublishMessage(domain.ChatMessage{
		ID:       "local-" + uuid.NewString(),
		RoomID:   roomID,
		Username: username,
		Content:  content,
		DateSent: time.Now(),
	})
	return nil
}

// SendTypingStatus is best effort; failures are logged, never surfaced.
func (c *Client) SendTypingStatus(roomID domain.RoomID, isTyping bool) {
	if c.State() != Connected {
		return
	}
	if err := c.writeJSON(TypingStatusInvoke{Type: TypeTypingStatus, RoomID: roomID, IsTyping: isTyping}); err != nil {
		log.Debug().Err(err).Str("module", "hub").Msg("typing status send failed")
	}
}

func (c *Client) UpdateLastSeen(roomID domain.RoomID) error {
	if c.State() != Connected {
		return ErrNotConnected
	}
	return c.writeJSON(UpdateLastSeenInvoke{Type: TypeUpdateLastSeen, RoomID: roomID})
}

// Call signaling invocations. These make the client the Signaler the
// call state machine drives.

func (c *Client) InitiateVideoCall(roomID domain.RoomID) error {
	return c.invoke(CallControl{Type: TypeInitiateCall, RoomID: roomID})
}

func (c *Client) AcceptCall(roomID domain.RoomID, callerUsername string) error {
	return c.invoke(CallControl{Type: TypeAcceptCall, RoomID: roomID, CallerUsername: callerUsername})
}

func (c *Client) RejectCall(roomID domain.RoomID, callerUsername string) error {
	return c.invoke(CallControl{Type: TypeRejectCall, RoomID: roomID, CallerUsername: callerUsername})
}

func (c *Client) EndCall(roomID domain.RoomID) error {
	return c.invoke(CallControl{Type: TypeEndCall, RoomID: roomID})
}

func (c *Client) SendOffer(roomID domain.RoomID, offer string) error {
	return c.invoke(SignalPayload{Type: TypeSendOffer, RoomID: roomID, Offer: offer})
}

func (c *Client) SendAnswer(roomID domain.RoomID, answer string) error {
	return c.invoke(SignalPayload{Type: TypeSendAnswer, RoomID: roomID, Answer: answer})
}

func (c *Client) SendIceCandidate(roomID domain.RoomID, candidate string) error {
	return c.invoke(SignalPayload{Type: TypeSendIceCandidate, RoomID: roomID, IceCandidate: candidate})
}
