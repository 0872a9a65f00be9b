package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Joinable reports whether new participants may still join.
func (s SessionStatus) Joinable() bool {
	return s == StatusScheduled || s == StatusWaiting
}

// CanTransitionTo reports whether next is a legal edge from s.
// Edges: scheduled|waiting -> active -> completed, and
// scheduled|waiting|active -> cancelled.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch next {
	case StatusWaiting:
		return s == StatusScheduled
	case StatusScheduled:
		return s == StatusWaiting
	case StatusActive:
		return s == StatusScheduled || s == StatusWaiting
	case StatusCompleted:
		return s == StatusActive
	case StatusCancelled:
		return !s.Terminal()
	}
	return false
}

// Session is a scheduled multi-participant language-exchange meeting.
// CurrentParticipants is always recomputed from the participant set at
// mutation time, never incremented independently.
type Session struct {
	ID                  uuid.UUID     `json:"id"`
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	HostUserID          uuid.UUID     `json:"host_user_id"`
	Topic               string        `json:"topic"`
	Language            string        `json:"language"`
	Level               string        `json:"level"`
	MaxParticipants     int           `json:"max_participants"`
	CurrentParticipants int           `json:"current_participants"`
	ScheduledAt         time.Time     `json:"scheduled_at"`
	DurationMinutes     int           `json:"duration_minutes"`
	Status              SessionStatus `json:"status"`
	RoomID              uuid.UUID     `json:"room_id"`
	JoinCode            string        `json:"join_code,omitempty"`
	IsPublic            bool          `json:"is_public"`
	RatingAvg           float64       `json:"rating_avg"`
	RatingCount         int           `json:"rating_count"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	EndedAt             *time.Time    `json:"ended_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}
