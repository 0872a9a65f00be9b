package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation is an ephemeral invite of a user to a session. Invitations are
// cache-backed with a TTL and may be lost without affecting session durability.
type Invitation struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	InvitedBy uuid.UUID `json:"invited_by"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
