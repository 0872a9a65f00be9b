package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lingopeer/backend/internal/models"
)

// Frame is the wire envelope delivered to room members.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame event names.
const (
	FrameSignal     = "signal"             // forwarded Envelope
	FrameStatus     = "participant_status" // media/quality change broadcast
	FramePeerJoined = "peer_joined"
	FramePeerLeft   = "peer_left"
	FrameRoomEnded  = "room_ended"
	FrameError      = "error"
)

// Sink receives frames for one room member. Send must not block; a sink that
// cannot keep up may drop frames, but frames it does accept arrive in the
// order Send was called.
type Sink interface {
	Send(f Frame)
}

// member is one registered room participant plus its delivery sink.
type member struct {
	info models.RoomParticipant
	sink Sink
}

// room holds the per-room registry. Rooms are independent of each other; each
// has its own lock, so rooms shard freely across processes.
type room struct {
	mu        sync.RWMutex
	id        uuid.UUID
	sessionID uuid.UUID
	hostID    uuid.UUID
	capacity  int
	status    models.RoomStatus
	members   map[uuid.UUID]*member
	stats     map[models.EnvelopeType]int64
	recording bool
}

func newRoom(sessionID, roomID, hostID uuid.UUID, capacity int) *room {
	return &room{
		id:        roomID,
		sessionID: sessionID,
		hostID:    hostID,
		capacity:  capacity,
		status:    models.RoomCreated,
		members:   make(map[uuid.UUID]*member),
		stats:     make(map[models.EnvelopeType]int64),
	}
}

func (r *room) info() models.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := models.RoomInfo{
		ID:        r.id,
		SessionID: r.sessionID,
		Status:    r.status,
		Recording: r.recording,
	}
	for _, m := range r.members {
		out.Participants = append(out.Participants, m.info)
	}
	return out
}

// sendTo delivers a frame to one member, if registered.
func (r *room) sendTo(userID uuid.UUID, f Frame) bool {
	r.mu.RLock()
	m, ok := r.members[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	m.sink.Send(f)
	return true
}

// broadcast delivers a frame to every member except the excluded one.
func (r *room) broadcast(exclude uuid.UUID, f Frame) {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.members))
	for id, m := range r.members {
		if id != exclude {
			sinks = append(sinks, m.sink)
		}
	}
	r.mu.RUnlock()
	for _, s := range sinks {
		s.Send(f)
	}
}

func statusFrame(userID uuid.UUID, statusType string, value bool) Frame {
	data, _ := json.Marshal(map[string]interface{}{
		"user_id": userID,
		"type":    statusType,
		"value":   value,
		"at":      time.Now().UTC(),
	})
	return Frame{Event: FrameStatus, Data: data}
}

func peerFrame(event string, p models.RoomParticipant) Frame {
	data, _ := json.Marshal(p)
	return Frame{Event: event, Data: data}
}
