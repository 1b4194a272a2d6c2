// Package registry holds the live room/peer/transport state shared by all
// signaling sessions. It is an explicit object owned by the server process,
// guarded by a registry lock for room creation and a per-room lock for
// membership, so unrelated rooms never serialize on each other.
package registry

import (
	"sync"
	"time"

	"github.com/tanglechat/rtc-signaling/internal/media"
	"github.com/tanglechat/rtc-signaling/internal/models"
)

// PeerState tracks a peer through its connection lifecycle.
type PeerState string

const (
	PeerJoining   PeerState = "joining"
	PeerConnected PeerState = "connected"
	PeerLeaving   PeerState = "leaving"
	PeerGone      PeerState = "gone"
)

// Outbox delivers a signaling message to one connected peer. Deliver
// reports false when the peer's send buffer is full or closed.
type Outbox interface {
	Deliver(msg models.SignalMessage) bool
}

// Peer is one device inside a room. Owned exclusively by its Room; it is
// removed from the registry atomically with its transports.
type Peer struct {
	DeviceID   string
	State      PeerState
	Out        Outbox
	transports map[media.Direction]media.Transport
}

// Room is the unit of mutual exclusion: create-or-join and close are
// serialized per room id.
type Room struct {
	ID string

	mu          sync.RWMutex
	peers       map[string]*Peer
	deleteTimer *time.Timer
}

// AddPeer registers a peer, replacing any previous entry for the same
// device (a reconnect supersedes the stale session).
func (r *Room) AddPeer(deviceID string, out Outbox) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Peer{
		DeviceID:   deviceID,
		State:      PeerConnected,
		Out:        out,
		transports: make(map[media.Direction]media.Transport),
	}
	r.peers[deviceID] = p
	return p
}

// Peer returns the peer for a device id, if present.
func (r *Room) Peer(deviceID string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[deviceID]
	return p, ok
}

// RemovePeer drops a peer and its transport records. Idempotent: removing
// a peer twice, or one never added, reports false and changes nothing.
func (r *Room) RemovePeer(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[deviceID]
	if !ok {
		return false
	}
	p.State = PeerGone
	p.transports = nil
	delete(r.peers, deviceID)
	return true
}

// SetPeerState transitions a peer's lifecycle state.
func (r *Room) SetPeerState(deviceID string, state PeerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[deviceID]; ok {
		p.State = state
	}
}

// TrackTransport records a transport handle under its owning peer.
func (r *Room) TrackTransport(deviceID string, t media.Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[deviceID]
	if !ok || p.transports == nil {
		return false
	}
	p.transports[t.Direction] = t
	return true
}

// TransportCount sums transports across current peers.
func (r *Room) TransportCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.peers {
		n += len(p.transports)
	}
	return n
}

// PeerIDs lists current device ids.
func (r *Room) PeerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

// Empty reports whether the room has no peers.
func (r *Room) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers) == 0
}

// Deliver sends a message to one peer in the room. Returns false when the
// target is gone (the caller surfaces a soft notice, not a fatal error).
func (r *Room) Deliver(deviceID string, msg models.SignalMessage) bool {
	r.mu.RLock()
	p, ok := r.peers[deviceID]
	r.mu.RUnlock()
	if !ok || p.Out == nil {
		return false
	}
	return p.Out.Deliver(msg)
}

// Broadcast sends a message to every peer except the excluded device.
func (r *Room) Broadcast(msg models.SignalMessage, excludeDeviceID string) {
	r.mu.RLock()
	targets := make([]*Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if id != excludeDeviceID && p.Out != nil {
			targets = append(targets, p)
		}
	}
	r.mu.RUnlock()

	for _, p := range targets {
		p.Out.Deliver(msg)
	}
}

// RoomSnapshot is a consistent point-in-time view for metrics.
type RoomSnapshot struct {
	RoomID     string `json:"roomId"`
	Peers      int    `json:"peers"`
	Transports int    `json:"transports"`
}

// Registry maps room ids to live rooms.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	grace time.Duration

	// onExpired runs after an empty room survives its grace period and is
	// dropped, letting the owner release media-plane resources.
	onExpired func(roomID string)
}

func New(grace time.Duration) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		grace: grace,
	}
}

// OnRoomExpired registers the cleanup hook invoked when an empty room is
// deleted after its grace period.
func (reg *Registry) OnRoomExpired(fn func(roomID string)) {
	reg.mu.Lock()
	reg.onExpired = fn
	reg.mu.Unlock()
}

// GetOrCreate returns the room for an id, creating it under the registry
// lock so two simultaneous joins never produce two rooms. A pending
// grace-period deletion is cancelled: a rejoin keeps the room alive.
func (reg *Registry) GetOrCreate(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID, peers: make(map[string]*Peer)}
		reg.rooms[roomID] = room
	}

	room.mu.Lock()
	if room.deleteTimer != nil {
		room.deleteTimer.Stop()
		room.deleteTimer = nil
	}
	room.mu.Unlock()
	return room
}

// Get looks up an existing room without creating one.
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[roomID]
	return room, ok
}

// ScheduleDeleteIfEmpty arms the grace-period timer for a room that just
// lost its last peer. If the room is still empty when the timer fires it is
// removed and the expiry hook runs; a rejoin in the meantime disarms it.
func (reg *Registry) ScheduleDeleteIfEmpty(roomID string) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if !ok || !room.Empty() {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.deleteTimer != nil {
		return // already scheduled
	}
	room.deleteTimer = time.AfterFunc(reg.grace, func() {
		reg.expire(room)
	})
}

func (reg *Registry) expire(room *Room) {
	reg.mu.Lock()
	current, ok := reg.rooms[room.ID]
	if !ok || current != room || !room.Empty() {
		reg.mu.Unlock()
		return
	}

	// The timer may have fired concurrently with a rejoin: GetOrCreate
	// disarms it under the registry lock, but Stop() cannot recall a
	// callback already in flight. A nil deleteTimer means a rejoin won;
	// the room must survive.
	room.mu.Lock()
	if room.deleteTimer == nil {
		room.mu.Unlock()
		reg.mu.Unlock()
		return
	}
	room.deleteTimer = nil
	room.mu.Unlock()

	delete(reg.rooms, room.ID)
	fn := reg.onExpired
	reg.mu.Unlock()

	if fn != nil {
		fn(room.ID)
	}
}

// Remove drops a room immediately (explicit close). Idempotent.
func (reg *Registry) Remove(roomID string) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	delete(reg.rooms, roomID)
	reg.mu.Unlock()

	if ok {
		room.mu.Lock()
		if room.deleteTimer != nil {
			room.deleteTimer.Stop()
			room.deleteTimer = nil
		}
		room.mu.Unlock()
	}
}

// Snapshot returns a consistent view of all rooms for metrics.
func (reg *Registry) Snapshot() []RoomSnapshot {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.Unlock()

	out := make([]RoomSnapshot, 0, len(rooms))
	for _, room := range rooms {
		room.mu.RLock()
		n := 0
		for _, p := range room.peers {
			n += len(p.transports)
		}
		out = append(out, RoomSnapshot{RoomID: room.ID, Peers: len(room.peers), Transports: n})
		room.mu.RUnlock()
	}
	return out
}
