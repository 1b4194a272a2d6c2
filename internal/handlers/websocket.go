package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tanglechat/rtc-signaling/config"
	"github.com/tanglechat/rtc-signaling/internal/media"
	"github.com/tanglechat/rtc-signaling/internal/middleware"
	"github.com/tanglechat/rtc-signaling/internal/models"
	"github.com/tanglechat/rtc-signaling/internal/redis"
	"github.com/tanglechat/rtc-signaling/internal/registry"
	"github.com/tanglechat/rtc-signaling/internal/turn"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// SessionState is the per-connection protocol state.
type SessionState string

const (
	StateUnauthenticated SessionState = "UNAUTHENTICATED"
	StateAuthenticated   SessionState = "AUTHENTICATED"
	StateJoining         SessionState = "JOINING"
	StateInRoom          SessionState = "IN_ROOM"
	StateLeaving         SessionState = "LEAVING"
	StateClosed          SessionState = "CLOSED"
)

// Signaling owns the WebSocket signaling surface. Registry and media
// controller are shared with every session; all room state lives there,
// never in package-level variables.
type Signaling struct {
	cfg    config.SignalingConfig
	secret string
	reg    *registry.Registry
	ctl    media.Controller
	broker *turn.Broker
}

func NewSignaling(cfg *config.Config, reg *registry.Registry, ctl media.Controller, broker *turn.Broker) *Signaling {
	return &Signaling{
		cfg:    cfg.Signaling,
		secret: cfg.JWTSecret,
		reg:    reg,
		ctl:    ctl,
		broker: broker,
	}
}

// session is one signaling connection. It drives the state machine
// UNAUTHENTICATED -> AUTHENTICATED -> JOINING -> IN_ROOM -> LEAVING -> CLOSED.
type session struct {
	srv *Signaling

	userID   string
	deviceID string
	roomID   string

	mu    sync.Mutex
	state SessionState

	conn *websocket.Conn
	send chan []byte

	// cancelled on teardown so in-flight media operations stop waiting
	ctx    context.Context
	cancel context.CancelFunc

	violations int
	closeOnce  sync.Once
}

// HandleSignaling upgrades the connection and authenticates it. The
// identity token arrives as a query parameter because native WebSocket
// clients cannot set headers.
func (s *Signaling) HandleSignaling(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		srv:    s,
		state:  StateUnauthenticated,
		conn:   conn,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
	}

	userID, err := middleware.ValidateToken(c.Query("token"), s.secret)
	if err != nil {
		sess.writeDirect(models.NewError(models.ErrKindAuthFailed, "authentication failed"))
		sess.setState(StateClosed)
		cancel()
		conn.Close()
		return
	}
	sess.userID = userID
	sess.setState(StateAuthenticated)

	go sess.writePump()
	go sess.readPump()
}

func (s *session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *session) getState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Deliver implements registry.Outbox.
func (s *session) Deliver(msg models.SignalMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		log.Printf("Send buffer full for device %s", s.deviceID)
		return false
	}
}

// writeDirect writes synchronously, bypassing the pump. Only used before
// the pumps start (authentication failures).
func (s *session) writeDirect(msg models.SignalMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
	s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) readPump() {
	defer s.teardown("socket closed")

	s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		var msg models.SignalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if !s.protocolViolation("malformed message") {
				return
			}
			continue
		}

		if !s.dispatch(msg) {
			return
		}
	}
}

// dispatch routes one inbound message. Returns false when the connection
// must close.
func (s *session) dispatch(msg models.SignalMessage) bool {
	switch msg.Type {
	case models.SignalTypePing:
		s.Deliver(models.SignalMessage{Type: models.SignalTypePong})
		return true
	case models.SignalTypeRoomJoin:
		return s.handleJoin(msg)
	case models.SignalTypeCreateTransport:
		return s.handleCreateTransport(msg)
	case models.SignalTypeOffer, models.SignalTypeAnswer, models.SignalTypeICECandidate:
		return s.handleRelay(msg)
	case models.SignalTypeCallAction:
		return s.handleCallAction(msg)
	case models.SignalTypeLeave:
		s.teardown("client leave")
		return false
	default:
		return s.protocolViolation("unknown message type")
	}
}

// protocolViolation replies with a typed error. Repeated violations past
// the configured threshold close the connection (abuse containment).
func (s *session) protocolViolation(reason string) bool {
	s.violations++
	s.Deliver(models.NewError(models.ErrKindProtocolViolation, reason))
	if s.violations > s.srv.cfg.MaxViolations {
		log.Printf("Closing connection for device %s: too many protocol violations", s.deviceID)
		return false
	}
	return true
}

func (s *session) handleJoin(msg models.SignalMessage) bool {
	if msg.RoomID == "" || msg.DeviceID == "" {
		return s.protocolViolation("ROOM_JOIN requires roomId and deviceId")
	}

	switch s.getState() {
	case StateInRoom:
		if s.roomID == msg.RoomID && s.deviceID == msg.DeviceID {
			// Idempotent rejoin: repeat the confirmation
			return s.sendJoinOK()
		}
		return s.protocolViolation("already in a room")
	case StateAuthenticated:
		// proceed
	default:
		return s.protocolViolation("ROOM_JOIN not allowed in state " + string(s.getState()))
	}

	s.setState(StateJoining)
	s.deviceID = msg.DeviceID
	s.roomID = msg.RoomID

	// Registry creation is serialized per room id; the media side is
	// idempotent, so a concurrent second joiner attaches to the same router.
	room := s.srv.reg.GetOrCreate(msg.RoomID)
	if _, err := s.srv.ctl.CreateRoom(s.ctx, msg.RoomID); err != nil {
		log.Printf("Media room creation failed for %s: %v", msg.RoomID, err)
		s.Deliver(models.NewError(models.ErrKindBackendUnavailable, "media backend unavailable"))
		s.roomID, s.deviceID = "", ""
		s.setState(StateAuthenticated)
		// The registry entry we may have just created has no peers
		s.srv.reg.ScheduleDeleteIfEmpty(msg.RoomID)
		return true
	}

	if s.ctx.Err() != nil {
		// Connection died while the join was in flight; teardown owns cleanup.
		return false
	}

	room.AddPeer(msg.DeviceID, s)
	s.setState(StateInRoom)

	redis.AddRoomPeer(msg.RoomID, msg.DeviceID)

	log.Printf("Device %s (user %s) joined room %s", msg.DeviceID, s.userID, msg.RoomID)

	if !s.sendJoinOK() {
		return false
	}

	room.Broadcast(models.SignalMessage{
		Type:     models.SignalTypePeerJoined,
		RoomID:   msg.RoomID,
		DeviceID: msg.DeviceID,
	}, msg.DeviceID)
	return true
}

func (s *session) sendJoinOK() bool {
	caps, err := s.srv.ctl.CreateRoom(s.ctx, s.roomID)
	if err != nil {
		s.Deliver(models.NewError(models.ErrKindBackendUnavailable, "media backend unavailable"))
		return true
	}

	room, ok := s.srv.reg.Get(s.roomID)
	if !ok {
		s.Deliver(models.NewError(models.ErrKindRoomNotFound, "room is gone"))
		return true
	}

	payload, err := json.Marshal(models.RoomJoinOK{
		RoomID:                s.roomID,
		RouterRTPCapabilities: caps,
		ICEServers:            s.srv.broker.PublicServers(),
		Peers:                 room.PeerIDs(),
	})
	if err != nil {
		return true
	}
	s.Deliver(models.SignalMessage{
		Type:    models.SignalTypeRoomJoinOK,
		RoomID:  s.roomID,
		Payload: payload,
	})
	return true
}

func (s *session) handleCreateTransport(msg models.SignalMessage) bool {
	if s.getState() != StateInRoom {
		// Transports only exist for joined rooms; this is the same failure
		// as asking for a room that was never created.
		s.Deliver(models.NewError(models.ErrKindRoomNotFound, "no room joined"))
		return true
	}
	if msg.RoomID != "" && msg.RoomID != s.roomID {
		s.Deliver(models.NewError(models.ErrKindRoomNotFound, "not joined to room "+msg.RoomID))
		return true
	}

	dir, ok := media.ParseDirection(msg.Direction)
	if !ok {
		return s.protocolViolation("direction must be send or recv")
	}

	t, err := s.srv.ctl.CreateTransport(s.ctx, s.roomID, s.deviceID, dir)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrRoomNotFound):
			s.Deliver(models.NewError(models.ErrKindRoomNotFound, "room not found"))
		case errors.Is(err, media.ErrBackendUnavailable):
			s.Deliver(models.NewError(models.ErrKindBackendUnavailable, "media backend unavailable"))
		default:
			s.Deliver(models.NewError(models.ErrKindTransportFailed, "transport creation failed"))
		}
		return true
	}

	room, ok := s.srv.reg.Get(s.roomID)
	if !ok {
		// Room vanished mid-creation: release the orphan and tell the
		// client instead of advertising a transport in a dead room.
		s.srv.ctl.RemovePeer(context.Background(), s.roomID, s.deviceID)
		s.Deliver(models.NewError(models.ErrKindRoomNotFound, "room is gone"))
		return true
	}
	if !room.TrackTransport(s.deviceID, t) {
		// Peer vanished mid-creation: release the orphan immediately.
		s.srv.ctl.RemovePeer(context.Background(), s.roomID, s.deviceID)
		return false
	}

	payload, err := json.Marshal(models.TransportCreated{
		TransportID: t.ID,
		Direction:   string(t.Direction),
	})
	if err != nil {
		return true
	}
	s.Deliver(models.SignalMessage{
		Type:    models.SignalTypeTransportCreated,
		RoomID:  s.roomID,
		Payload: payload,
	})
	return true
}

// handleRelay forwards offers, answers and ICE candidates verbatim. The
// payload is never parsed; only the envelope is rewritten with the sender.
func (s *session) handleRelay(msg models.SignalMessage) bool {
	if s.getState() != StateInRoom {
		return s.protocolViolation(string(msg.Type) + " requires an active room")
	}

	room, ok := s.srv.reg.Get(s.roomID)
	if !ok {
		s.Deliver(models.NewError(models.ErrKindRoomNotFound, "room is gone"))
		return true
	}

	out := models.SignalMessage{
		Type:    msg.Type,
		From:    s.deviceID,
		To:      msg.To,
		RoomID:  s.roomID,
		Payload: msg.Payload,
	}

	if msg.To != "" {
		if !room.Deliver(msg.To, out) {
			// Soft failure: the target left, tell the sender
			s.Deliver(peerGoneNotice(s.roomID, msg.To))
		}
		return true
	}

	room.Broadcast(out, s.deviceID)
	return true
}

// peerGoneNotice tells a sender its target has left. The PEER_NOT_FOUND
// error body lets clients branch on the kind without inspecting the type.
func peerGoneNotice(roomID, deviceID string) models.SignalMessage {
	return models.SignalMessage{
		Type:     models.SignalTypePeerGone,
		RoomID:   roomID,
		DeviceID: deviceID,
		Error:    &models.ErrorBody{Kind: models.ErrKindPeerNotFound, Message: "peer not found"},
	}
}

func (s *session) handleCallAction(msg models.SignalMessage) bool {
	if s.getState() != StateInRoom {
		return s.protocolViolation("CALL_ACTION requires an active room")
	}
	if msg.CallID == "" {
		return s.protocolViolation("CALL_ACTION requires callId")
	}

	action, ok := models.NormalizeCallAction(msg.Action)
	if !ok {
		return s.protocolViolation("unknown call action " + msg.Action)
	}

	room, ok := s.srv.reg.Get(s.roomID)
	if !ok {
		s.Deliver(models.NewError(models.ErrKindRoomNotFound, "room is gone"))
		return true
	}

	s.recordCallEvent(msg.CallID, action, msg.Reason)

	out := models.SignalMessage{
		Type:   models.SignalTypeCallAction,
		From:   s.deviceID,
		To:     msg.To,
		RoomID: s.roomID,
		CallID: msg.CallID,
		Action: string(action),
		Reason: msg.Reason,
	}

	if msg.To != "" {
		if !room.Deliver(msg.To, out) {
			s.Deliver(peerGoneNotice(s.roomID, msg.To))
		}
		return true
	}

	room.Broadcast(out, s.deviceID)
	return true
}

// recordCallEvent appends the action to the call history list consumed by
// the data backend. Best-effort: history must never block signaling.
func (s *session) recordCallEvent(callID string, action models.CallAction, reason string) {
	event, err := json.Marshal(gin.H{
		"action":   string(action),
		"reason":   reason,
		"roomId":   s.roomID,
		"deviceId": s.deviceID,
		"at":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := redis.AppendCallEvent(callID, event); err != nil {
		log.Printf("Failed to record call event: %v", err)
	}
}

// teardown converges every exit path: explicit leave, socket close and
// heartbeat timeout. Transports are closed via the media controller first,
// then the peer leaves the registry; an empty room is scheduled for
// grace-period deletion. Safe to trigger more than once.
func (s *session) teardown(reason string) {
	s.closeOnce.Do(func() {
		s.setState(StateLeaving)
		s.cancel()

		if s.roomID != "" && s.deviceID != "" {
			// Background context: cleanup must run even though the
			// connection context is gone.
			if err := s.srv.ctl.RemovePeer(context.Background(), s.roomID, s.deviceID); err != nil {
				log.Printf("Media peer removal failed for %s/%s: %v", s.roomID, s.deviceID, err)
			}

			if room, ok := s.srv.reg.Get(s.roomID); ok {
				if room.RemovePeer(s.deviceID) {
					room.Broadcast(models.SignalMessage{
						Type:     models.SignalTypePeerLeft,
						RoomID:   s.roomID,
						DeviceID: s.deviceID,
					}, s.deviceID)
				}
				if room.Empty() {
					s.srv.reg.ScheduleDeleteIfEmpty(s.roomID)
				}
			}

			redis.RemoveRoomPeer(s.roomID, s.deviceID)

			log.Printf("Device %s left room %s (%s)", s.deviceID, s.roomID, reason)
		}

		s.setState(StateClosed)
		// The write pump owns the socket close: cancelling the context
		// makes it flush queued frames, send a close frame and close.
	})
}

func (s *session) writePump() {
	ticker := time.NewTicker(s.srv.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			// Flush whatever is already queued (e.g. a final protocol
			// error) before the close frame.
			for {
				select {
				case message := <-s.send:
					s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
					if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
				default:
					s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
					s.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}

		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
