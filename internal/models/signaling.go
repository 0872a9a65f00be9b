package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle state of a signaling room. It is driven solely
// by the owning session's transitions, never independently.
type RoomStatus string

const (
	RoomCreated RoomStatus = "created"
	RoomActive  RoomStatus = "active"
	RoomEnded   RoomStatus = "ended"
)

// EnvelopeType identifies a signaling message kind. Payloads are opaque to
// the relay regardless of type.
type EnvelopeType string

const (
	EnvelopeOffer            EnvelopeType = "offer"
	EnvelopeAnswer           EnvelopeType = "answer"
	EnvelopeICECandidate     EnvelopeType = "ice-candidate"
	EnvelopeJoin             EnvelopeType = "join"
	EnvelopeLeave            EnvelopeType = "leave"
	EnvelopeMute             EnvelopeType = "mute"
	EnvelopeUnmute           EnvelopeType = "unmute"
	EnvelopeVideoOn          EnvelopeType = "video-on"
	EnvelopeVideoOff         EnvelopeType = "video-off"
	EnvelopeScreenShareStart EnvelopeType = "screen-share-start"
	EnvelopeScreenShareStop  EnvelopeType = "screen-share-stop"
)

// Envelope is one signaling message exchanged via the relay. The payload is
// an opaque blob; the relay forwards it byte-for-byte and never parses it.
// ToUserID nil means broadcast to all other room members.
type Envelope struct {
	SessionID    uuid.UUID       `json:"session_id"`
	FromUserID   uuid.UUID       `json:"from_user_id"`
	ToUserID     *uuid.UUID      `json:"to_user_id,omitempty"`
	Type         EnvelopeType    `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	ConnectionID string          `json:"connection_id,omitempty"`
}

// MediaState holds a room participant's coarse media flags.
type MediaState struct {
	Camera      bool `json:"camera"`
	Microphone  bool `json:"microphone"`
	ScreenShare bool `json:"screen_share"`
}

// RoomParticipant is one entry in a signaling room's registry.
type RoomParticipant struct {
	UserID            uuid.UUID  `json:"user_id"`
	PeerID            string     `json:"peer_id"`
	Media             MediaState `json:"media"`
	ConnectionQuality string     `json:"connection_quality,omitempty"`
	JoinedAt          time.Time  `json:"joined_at"`
}

// RoomInfo is the externally visible view of a signaling room.
type RoomInfo struct {
	ID           uuid.UUID         `json:"id"`
	SessionID    uuid.UUID         `json:"session_id"`
	Status       RoomStatus        `json:"status"`
	Participants []RoomParticipant `json:"participants"`
	Recording    bool              `json:"recording"`
}
