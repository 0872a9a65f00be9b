package sessions

import "errors"

// Failure taxonomy for session lifecycle operations. Handlers map these to
// HTTP statuses; the orchestrator never swallows them.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvalidState       = errors.New("operation not allowed in current session state")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrCapacityExceeded   = errors.New("session is full")
	ErrAlreadyMember      = errors.New("already a participant of this session")
	ErrNotMember          = errors.New("not a participant of this session")
	ErrRateLimited        = errors.New("too many concurrent sessions")
	ErrScheduleTooSoon    = errors.New("scheduled time is too soon")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrValidation         = errors.New("invalid request")
)
