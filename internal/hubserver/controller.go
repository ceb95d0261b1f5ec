package hubserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vanhungne/tutoring-live/internal/domain"
	"github.com/vanhungne/tutoring-live/internal/hub"
)

type Controller struct {
	registry *Registry
}

func NewController(registry *Registry) *Controller {
	return &Controller{registry: registry}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleHub upgrades the authenticated request and starts the pumps.
// The username comes from the verified token set by the middleware.
func (ctl *Controller) HandleHub(ctx context.Context, c *gin.Context) {
	username := c.GetString("username")
	user, err := domain.NewUser(username)
	if err != nil {
		log.Warn().Err(err).Str("module", "hubserver").Msg("rejecting connection")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	log.Info().Str("module", "hubserver").Str("username", user.Username).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "hubserver").Msg("ws upgrade")
		return
	}

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)
	ctl.registry.Bind(user, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, user.Username, conn)
}

func (ctl *Controller) handleFrame(username string, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "hubserver").Msg("bad json")
		return
	}

	switch env.Type {
	case hub.TypeJoinRoom:
		ctl.handleJoin(username, data)
	case hub.TypeLeaveRoom:
		// Membership persists so the user keeps receiving messages
		// for unread tracking. Nothing to do server-side.
	case hub.TypeSendMessage:
		ctl.handleSendMessage(username, c, data)
	case hub.TypeTypingStatus:
		ctl.handleTyping(username, data)
	case hub.TypeUpdateLastSeen:
		ctl.handleLastSeen(username, data)
	case hub.TypeInitiateCall, hub.TypeAcceptCall, hub.TypeRejectCall, hub.TypeEndCall:
		ctl.handleCallControl(username, env.Type, data)
	case hub.TypeSendOffer, hub.TypeSendAnswer, hub.TypeSendIceCandidate:
		ctl.handleSignal(username, data)
	default:
		log.Warn().Str("module", "hubserver").Str("type", env.Type).Msg("unknown frame")
	}
}

func (ctl *Controller) handleJoin(username string, data []byte) {
	var inv hub.JoinRoomInvoke
	if err := json.Unmarshal(data, &inv); err != nil || inv.RoomID == "" {
		log.Error().Err(err).Str("module", "hubserver").Msg("bad join_room")
		return
	}
	ctl.registry.JoinRoom(username, inv.RoomID)
	log.Info().Str("module", "hubserver").Str("username", username).Str("room", string(inv.RoomID)).Msg("joined room")
}

// handleSendMessage assigns the canonical id and timestamp, then fans
// the message out to every member of the room, sender included. The
// sender's own client drops the echo against its local copy.
func (ctl *Controller) handleSendMessage(username string, c *wsConn, data []byte) {
	var inv hub.SendMessageInvoke
	if err := json.Unmarshal(data, &inv); err != nil || inv.RoomID == "" {
		log.Error().Err(err).Str("module", "hubserver").Msg("bad send_message")
		return
	}

	ev := hub.MessageEvent{
		Type: hub.TypeReceiveMessage,
		Message: domain.ChatMessage{
			ID:       uuid.NewString(),
			RoomID:   inv.RoomID,
			Username: username,
			Content:  inv.Content,
			DateSent: time.Now().UTC(),
		},
	}
	for _, member := range ctl.registry.MembersOf(inv.RoomID) {
		ctl.sendJSON(member.Conn, ev)
	}
}

func (ctl *Controller) handleTyping(username string, data []byte) {
	var inv hub.TypingStatusInvoke
	if err := json.Unmarshal(data, &inv); err != nil || inv.RoomID == "" {
		return
	}
	ev := hub.UserTypingEvent{
		Type:     hub.TypeUserTyping,
		Username: username,
		IsTyping: inv.IsTyping,
	}
	for _, member := range ctl.registry.MembersOf(inv.RoomID, username) {
		ctl.sendJSON(member.Conn, ev)
	}
}

func (ctl *Controller) handleLastSeen(username string, data []byte) {
	var inv hub.UpdateLastSeenInvoke
	if err := json.Unmarshal(data, &inv); err != nil || inv.RoomID == "" {
		return
	}
	ev := hub.LastSeenEvent{
		Type:     hub.TypeLastSeen,
		RoomID:   inv.RoomID,
		Username: username,
		LastSeen: time.Now().UTC(),
	}
	for _, member := range ctl.registry.MembersOf(inv.RoomID, username) {
		ctl.sendJSON(member.Conn, ev)
	}
}

// handleCallControl relays lifecycle frames. An initiate becomes
// call_incoming for the other members of the room; accept and reject
// answer one specific caller and go to that session alone when the
// frame names it. End goes room-wide so every ringing party stops.
func (ctl *Controller) handleCallControl(username, frameType string, data []byte) {
	var inv hub.CallControl
	if err := json.Unmarshal(data, &inv); err != nil || inv.RoomID == "" {
		log.Error().Err(err).Str("module", "hubserver").Str("type", frameType).Msg("bad call control")
		return
	}

	var eventType string
	switch frameType {
	case hub.TypeInitiateCall:
		eventType = hub.TypeIncomingCall
	case hub.TypeAcceptCall:
		eventType = hub.TypeCallAccepted
	case hub.TypeRejectCall:
		eventType = hub.TypeCallRejected
	case hub.TypeEndCall:
		eventType = hub.TypeCallEnded
	}

	ev := hub.CallEvent{
		Type:     eventType,
		RoomID:   inv.RoomID,
		Username: username,
	}
	if inv.CallerUsername != "" && (eventType == hub.TypeCallAccepted || eventType == hub.TypeCallRejected) {
		if entry, ok := ctl.registry.SessionOf(inv.CallerUsername); ok {
			ctl.sendJSON(entry.Conn, ev)
		}
		return
	}
	for _, member := range ctl.registry.MembersOf(inv.RoomID, username) {
		ctl.sendJSON(member.Conn, ev)
	}
}

// handleSignal forwards offer/answer/candidate frames untouched except
// for stamping the sender.
func (ctl *Controller) handleSignal(username string, data []byte) {
	var sig hub.SignalPayload
	if err := json.Unmarshal(data, &sig); err != nil || sig.RoomID == "" {
		log.Error().Err(err).Str("module", "hubserver").Msg("bad signal")
		return
	}
	sig.FromUsername = username

	for _, member := range ctl.registry.MembersOf(sig.RoomID, username) {
		ctl.sendJSON(member.Conn, sig)
	}
}
