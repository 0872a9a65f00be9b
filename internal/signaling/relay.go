package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/lingopeer/backend/internal/models"
)

// PresenceStore mirrors coarse room registries into a shared store so any
// instance can serve room views. Best-effort; registry data is ephemeral and
// may be lost without affecting session durability.
type PresenceStore interface {
	Save(ctx context.Context, info models.RoomInfo) error
	Load(ctx context.Context, roomID uuid.UUID) (*models.RoomInfo, error)
	Delete(ctx context.Context, roomID uuid.UUID) error
}

// ConnectionDescriptor is what a client needs to connect to a room.
type ConnectionDescriptor struct {
	RoomID     uuid.UUID          `json:"room_id"`
	SessionID  uuid.UUID          `json:"session_id"`
	Status     models.RoomStatus  `json:"status"`
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
	Features   map[string]bool    `json:"features"`
	Stats      map[string]int64   `json:"stats,omitempty"`
}

// Relay fans opaque signaling envelopes out between room participants. It is
// not a media server: payloads are forwarded byte-for-byte, never parsed.
// Room lifecycle (created -> active -> ended) is driven exclusively by the
// owning session's transitions via the RoomController methods.
type Relay struct {
	mu         sync.RWMutex
	rooms      map[uuid.UUID]*room
	iceServers []webrtc.ICEServer
	presence   PresenceStore
	logger     *zap.Logger
}

// NewRelay creates a signaling relay. presence may be nil.
func NewRelay(iceServers []webrtc.ICEServer, presence PresenceStore, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		rooms:      make(map[uuid.UUID]*room),
		iceServers: iceServers,
		presence:   presence,
		logger:     logger,
	}
}

func (r *Relay) room(roomID uuid.UUID) (*room, error) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm, nil
}

// EnsureRoom registers a room for a session. Idempotent: an existing room is
// left untouched.
func (r *Relay) EnsureRoom(sessionID, roomID, hostID uuid.UUID, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; ok {
		return
	}
	r.rooms[roomID] = newRoom(sessionID, roomID, hostID, capacity)
	r.logger.Debug("room created",
		zap.String("room_id", roomID.String()),
		zap.String("session_id", sessionID.String()))
}

// UpdateRoomCapacity syncs the room's ceiling after the owning session's
// max_participants changes. JoinRoom always enforces the current value.
func (r *Relay) UpdateRoomCapacity(roomID uuid.UUID, capacity int) {
	rm, err := r.room(roomID)
	if err != nil {
		return
	}
	rm.mu.Lock()
	rm.capacity = capacity
	rm.mu.Unlock()
}

// SetRoomHost updates the room's host after a session host failover.
func (r *Relay) SetRoomHost(roomID, hostID uuid.UUID) {
	rm, err := r.room(roomID)
	if err != nil {
		return
	}
	rm.mu.Lock()
	rm.hostID = hostID
	rm.mu.Unlock()
}

// ActivateRoom transitions the room to ACTIVE.
func (r *Relay) ActivateRoom(roomID uuid.UUID) {
	rm, err := r.room(roomID)
	if err != nil {
		return
	}
	rm.mu.Lock()
	if rm.status == models.RoomCreated {
		rm.status = models.RoomActive
	}
	rm.mu.Unlock()
	r.syncPresence(rm)
}

// EndRoom transitions the room to ENDED and evicts all participants.
// Subsequent operations on the room fail closed.
func (r *Relay) EndRoom(roomID uuid.UUID) {
	rm, err := r.room(roomID)
	if err != nil {
		return
	}
	rm.mu.Lock()
	rm.status = models.RoomEnded
	evicted := make([]*member, 0, len(rm.members))
	for _, m := range rm.members {
		evicted = append(evicted, m)
	}
	rm.members = make(map[uuid.UUID]*member)
	rm.mu.Unlock()

	for _, m := range evicted {
		m.sink.Send(Frame{Event: FrameRoomEnded})
	}
	if r.presence != nil {
		if err := r.presence.Delete(context.Background(), roomID); err != nil {
			r.logger.Warn("presence delete failed", zap.Error(err))
		}
	}
	r.logger.Info("room ended", zap.String("room_id", roomID.String()))
}

// EndRoomByHost is the client-facing end: only the room host may invoke it.
func (r *Relay) EndRoomByHost(roomID, userID uuid.UUID) error {
	rm, err := r.room(roomID)
	if err != nil {
		return err
	}
	rm.mu.RLock()
	host := rm.hostID
	rm.mu.RUnlock()
	if host != userID {
		return ErrNotRoomHost
	}
	r.EndRoom(roomID)
	return nil
}

// JoinRoom registers a participant with its delivery sink. Rejected when the
// room is not ACTIVE or already at the owning session's capacity.
func (r *Relay) JoinRoom(roomID, userID uuid.UUID, peerID string, media models.MediaState, sink Sink) error {
	rm, err := r.room(roomID)
	if err != nil {
		return err
	}
	rm.mu.Lock()
	if rm.status != models.RoomActive {
		rm.mu.Unlock()
		return ErrRoomNotActive
	}
	if _, ok := rm.members[userID]; !ok && len(rm.members) >= rm.capacity {
		rm.mu.Unlock()
		return ErrRoomFull
	}
	info := models.RoomParticipant{
		UserID:   userID,
		PeerID:   peerID,
		Media:    media,
		JoinedAt: time.Now(),
	}
	rm.members[userID] = &member{info: info, sink: sink}
	rm.mu.Unlock()

	rm.broadcast(userID, peerFrame(FramePeerJoined, info))
	r.syncPresence(rm)
	return nil
}

// LeaveRoom deregisters a participant. It never changes the room status.
func (r *Relay) LeaveRoom(roomID, userID uuid.UUID) {
	rm, err := r.room(roomID)
	if err != nil {
		return
	}
	rm.mu.Lock()
	m, ok := rm.members[userID]
	if ok {
		delete(rm.members, userID)
	}
	rm.mu.Unlock()
	if !ok {
		return
	}
	rm.broadcast(userID, peerFrame(FramePeerLeft, m.info))
	r.syncPresence(rm)
}

// EvictFromRoom removes a participant on behalf of the orchestrator (kick or
// leave), notifying the evictee before deregistration.
func (r *Relay) EvictFromRoom(roomID, userID uuid.UUID) {
	rm, err := r.room(roomID)
	if err != nil {
		return
	}
	rm.sendTo(userID, Frame{Event: FramePeerLeft})
	r.LeaveRoom(roomID, userID)
}

// HandleEnvelope validates and forwards one signaling envelope. The payload
// stays opaque. Delivery preserves each sender's emission order to a given
// recipient: the caller invokes this sequentially per sender and every
// recipient sink is ordered.
func (r *Relay) HandleEnvelope(roomID uuid.UUID, env *models.Envelope) error {
	rm, err := r.room(roomID)
	if err != nil {
		return err
	}
	rm.mu.Lock()
	if rm.status != models.RoomActive {
		rm.mu.Unlock()
		return ErrRoomNotActive
	}
	if _, ok := rm.members[env.FromUserID]; !ok {
		rm.mu.Unlock()
		return ErrNotRoomMember
	}
	env.SessionID = rm.sessionID
	env.Timestamp = time.Now()
	rm.stats[env.Type]++
	rm.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	f := Frame{Event: FrameSignal, Data: data}
	if env.ToUserID != nil {
		if !rm.sendTo(*env.ToUserID, f) {
			return ErrRecipientNotFound
		}
		return nil
	}
	rm.broadcast(env.FromUserID, f)
	return nil
}

// UpdateParticipantStatus mutates one media flag and broadcasts a status
// notification distinct from signaling envelopes.
func (r *Relay) UpdateParticipantStatus(roomID, userID uuid.UUID, statusType string, value bool) error {
	rm, err := r.room(roomID)
	if err != nil {
		return err
	}
	rm.mu.Lock()
	if rm.status != models.RoomActive {
		rm.mu.Unlock()
		return ErrRoomNotActive
	}
	m, ok := rm.members[userID]
	if !ok {
		rm.mu.Unlock()
		return ErrNotRoomMember
	}
	switch statusType {
	case "camera":
		m.info.Media.Camera = value
	case "microphone":
		m.info.Media.Microphone = value
	case "screen_share":
		m.info.Media.ScreenShare = value
	default:
		rm.mu.Unlock()
		return ErrInvalidStatusType
	}
	rm.mu.Unlock()

	rm.broadcast(uuid.Nil, statusFrame(userID, statusType, value))
	r.syncPresence(rm)
	return nil
}

// Descriptor returns the connection descriptor for a session's room.
func (r *Relay) Descriptor(roomID uuid.UUID) (*ConnectionDescriptor, error) {
	rm, err := r.room(roomID)
	if err != nil {
		return nil, err
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	stats := make(map[string]int64, len(rm.stats))
	for t, n := range rm.stats {
		stats[string(t)] = n
	}
	return &ConnectionDescriptor{
		RoomID:     rm.id,
		SessionID:  rm.sessionID,
		Status:     rm.status,
		ICEServers: r.iceServers,
		Features: map[string]bool{
			"screen_share": true,
			"recording":    rm.recording,
		},
		Stats: stats,
	}, nil
}

// RoomInfo returns the externally visible room view. Rooms hosted on another
// instance are served from the presence snapshot.
func (r *Relay) RoomInfo(ctx context.Context, roomID uuid.UUID) (*models.RoomInfo, error) {
	rm, err := r.room(roomID)
	if err == nil {
		info := rm.info()
		return &info, nil
	}
	if r.presence != nil {
		snap, perr := r.presence.Load(ctx, roomID)
		if perr == nil && snap != nil {
			return snap, nil
		}
	}
	return nil, err
}

func (r *Relay) syncPresence(rm *room) {
	if r.presence == nil {
		return
	}
	if err := r.presence.Save(context.Background(), rm.info()); err != nil {
		r.logger.Warn("presence sync failed", zap.Error(err), zap.String("room_id", rm.id.String()))
	}
}
