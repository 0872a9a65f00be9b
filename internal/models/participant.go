package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus is a user's membership state within one session.
type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "joined"
	ParticipantLeft   ParticipantStatus = "left"
	ParticipantKicked ParticipantStatus = "kicked"
)

// Participant is a user's membership record within one session.
// Records are never hard-deleted; they transition joined -> left|kicked and
// remain as the historical record for ratings and stats.
type Participant struct {
	SessionID                    uuid.UUID         `json:"session_id"`
	UserID                       uuid.UUID         `json:"user_id"`
	Status                       ParticipantStatus `json:"status"`
	JoinedAt                     time.Time         `json:"joined_at"`
	LeftAt                       *time.Time        `json:"left_at,omitempty"`
	ParticipationDurationMinutes *int              `json:"participation_duration_minutes,omitempty"`
	Rating                       *int              `json:"rating,omitempty"`
	Feedback                     *string           `json:"feedback,omitempty"`
}
