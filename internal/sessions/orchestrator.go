package sessions

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingopeer/backend/internal/models"
)

// RoomController is the orchestrator's view of the signaling relay. Room
// lifecycle is driven exclusively through these calls; rooms never transition
// on their own.
type RoomController interface {
	EnsureRoom(sessionID, roomID, hostID uuid.UUID, capacity int)
	UpdateRoomCapacity(roomID uuid.UUID, capacity int)
	SetRoomHost(roomID, hostID uuid.UUID)
	ActivateRoom(roomID uuid.UUID)
	EndRoom(roomID uuid.UUID)
	EvictFromRoom(roomID, userID uuid.UUID)
}

// Notifier dispatches post-commit notifications. Calls happen after the
// per-session lock is released; failures are logged by the implementation and
// never affect committed state.
type Notifier interface {
	Notify(ctx context.Context, recipients []uuid.UUID, event string, sessionID uuid.UUID, data map[string]string)
}

// InviteStore holds ephemeral TTL'd invitations.
type InviteStore interface {
	Put(ctx context.Context, inv models.Invitation) error
	Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.Invitation, error)
	Delete(ctx context.Context, sessionID, userID uuid.UUID) error
}

// Limits are the lifecycle guard rails.
type Limits struct {
	MinScheduleLead time.Duration // minimum lead time for scheduled_at
	MaxHosted       int           // concurrent non-terminal sessions per host
	MaxMemberships  int           // other non-terminal JOINED memberships per user
}

// Notification event names.
const (
	EventSessionStarted    = "session_started"
	EventSessionCancelled  = "session_cancelled"
	EventSessionCompleted  = "session_completed"
	EventParticipantKicked = "participant_kicked"
	EventHostChanged       = "host_changed"
	EventSessionInvite     = "session_invite"
)

// Orchestrator owns session lifecycle logic: every invariant and all
// concurrency control live here. Mutations run inside Store.Mutate so that
// capacity/status checks and the commit relying on them are atomic per
// session; the cache and the relay are updated after the commit.
type Orchestrator struct {
	store   Store
	cache   Cache
	rooms   RoomController
	notify  Notifier
	invites InviteStore
	limits  Limits
	logger  *zap.Logger
	now     func() time.Time
}

// NewOrchestrator creates a session orchestrator.
func NewOrchestrator(store Store, cache Cache, rooms RoomController, notify Notifier, invites InviteStore, limits Limits, logger *zap.Logger) *Orchestrator {
	if limits.MinScheduleLead <= 0 {
		limits.MinScheduleLead = 10 * time.Minute
	}
	if limits.MaxHosted <= 0 {
		limits.MaxHosted = 3
	}
	if limits.MaxMemberships <= 0 {
		limits.MaxMemberships = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:   store,
		cache:   cache,
		rooms:   rooms,
		notify:  notify,
		invites: invites,
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateSpec is the input for CreateSession.
type CreateSpec struct {
	Title           string
	Description     string
	Topic           string
	Language        string
	Level           string
	MaxParticipants int
	ScheduledAt     time.Time
	DurationMinutes int
	IsPublic        bool
}

// CreateSession creates a SCHEDULED session with the host as its implicit
// first participant.
func (o *Orchestrator) CreateSession(ctx context.Context, hostID uuid.UUID, spec CreateSpec) (*models.Session, error) {
	if spec.Title == "" || spec.Language == "" {
		return nil, fmt.Errorf("%w: title and language are required", ErrValidation)
	}
	if spec.MaxParticipants < 2 {
		return nil, fmt.Errorf("%w: max_participants must be at least 2", ErrValidation)
	}
	now := o.now()
	if spec.ScheduledAt.Before(now.Add(o.limits.MinScheduleLead)) {
		return nil, ErrScheduleTooSoon
	}
	hosted, err := o.store.CountHostedOpen(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("count hosted: %w", err)
	}
	if hosted >= o.limits.MaxHosted {
		return nil, ErrRateLimited
	}

	duration := spec.DurationMinutes
	if duration <= 0 {
		duration = 30
	}
	s := &models.Session{
		Title:               spec.Title,
		Description:         spec.Description,
		HostUserID:          hostID,
		Topic:               spec.Topic,
		Language:            spec.Language,
		Level:               spec.Level,
		MaxParticipants:     spec.MaxParticipants,
		CurrentParticipants: 1,
		ScheduledAt:         spec.ScheduledAt,
		DurationMinutes:     duration,
		Status:              models.StatusScheduled,
		RoomID:              uuid.New(),
		JoinCode:            generateJoinCode(),
		IsPublic:            spec.IsPublic,
	}
	host := &models.Participant{
		UserID:   hostID,
		Status:   models.ParticipantJoined,
		JoinedAt: now,
	}
	if err := o.store.CreateSession(ctx, s, host); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	o.rooms.EnsureRoom(s.ID, s.RoomID, hostID, s.MaxParticipants)
	o.putCache(ctx, s)
	o.logger.Info("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("host_user_id", hostID.String()))
	return s, nil
}

// GetSession returns the session view, preferring the cache.
func (o *Orchestrator) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if cached, err := o.cache.Get(ctx, id); err == nil && cached != nil {
		return cached, nil
	}
	s, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	o.putCache(ctx, s)
	return s, nil
}

// JoinSession adds the user as a JOINED participant. Capacity is re-checked
// against the participant set inside the session row lock, never against a
// cached counter.
func (o *Orchestrator) JoinSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.Session, error) {
	memberships, err := o.store.CountOpenMemberships(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count memberships: %w", err)
	}
	if memberships >= o.limits.MaxMemberships {
		return nil, ErrRateLimited
	}

	var out *models.Session
	err = o.store.Mutate(ctx, sessionID, func(tx Tx) error {
		s := tx.Session()
		if !s.Status.Joinable() {
			return ErrInvalidState
		}
		existing, err := tx.Participant(ctx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			switch existing.Status {
			case models.ParticipantJoined:
				return ErrAlreadyMember
			case models.ParticipantKicked:
				return ErrPermissionDenied
			}
		}
		parts, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		if countJoined(parts, uuid.Nil) >= s.MaxParticipants {
			return ErrCapacityExceeded
		}

		p := &models.Participant{
			SessionID: s.ID,
			UserID:    userID,
			Status:    models.ParticipantJoined,
			JoinedAt:  o.now(),
		}
		if err := tx.UpsertParticipant(ctx, p); err != nil {
			return err
		}
		s.CurrentParticipants = countJoined(parts, uuid.Nil) + 1
		if s.CurrentParticipants >= s.MaxParticipants {
			s.Status = models.StatusWaiting
		}
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.putCache(ctx, out)
	return out, nil
}

// JoinSessionByCode resolves the join code and runs the standard join path.
func (o *Orchestrator) JoinSessionByCode(ctx context.Context, userID uuid.UUID, code string) (*models.Session, error) {
	s, err := o.store.GetSessionByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	return o.JoinSession(ctx, userID, s.ID)
}

// LeaveSession marks the user LEFT and stamps their participation duration.
// A no-op when the user is not currently JOINED or the session is terminal.
// If the leaver is the host, the host role transfers to the earliest-joined
// remaining participant; with nobody left, a pre-ACTIVE session is cancelled
// and an ACTIVE one auto-completes.
func (o *Orchestrator) LeaveSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.Session, error) {
	var (
		out       *models.Session
		newHost   *uuid.UUID
		endedRoom bool
	)
	err := o.store.Mutate(ctx, sessionID, func(tx Tx) error {
		s := tx.Session()
		newHost, endedRoom = nil, false
		if s.Status.Terminal() {
			out = s
			return nil
		}
		p, err := tx.Participant(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil || p.Status != models.ParticipantJoined {
			out = s
			return nil
		}

		now := o.now()
		markDeparted(p, models.ParticipantLeft, now)
		if err := tx.UpsertParticipant(ctx, p); err != nil {
			return err
		}

		parts, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		s.CurrentParticipants = countJoined(parts, userID)

		if s.HostUserID == userID {
			if next := earliestJoined(parts, userID); next != nil {
				s.HostUserID = next.UserID
				newHost = &next.UserID
			} else if s.Status == models.StatusActive {
				completeLocked(ctx, tx, s, parts, now)
				endedRoom = true
			} else {
				s.Status = models.StatusCancelled
				endedRoom = true
			}
		}
		if s.Status == models.StatusWaiting && s.CurrentParticipants < s.MaxParticipants {
			s.Status = models.StatusScheduled
		}
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.rooms.EvictFromRoom(out.RoomID, userID)
	if newHost != nil {
		o.rooms.SetRoomHost(out.RoomID, *newHost)
		o.dispatch(ctx, []uuid.UUID{*newHost}, EventHostChanged, out.ID, map[string]string{"host_user_id": newHost.String()})
	}
	if endedRoom {
		o.rooms.EndRoom(out.RoomID)
	}
	o.putCache(ctx, out)
	return out, nil
}

// StartSession transitions SCHEDULED|WAITING -> ACTIVE and activates the
// linked signaling room. Host-only.
func (o *Orchestrator) StartSession(ctx context.Context, hostID, sessionID uuid.UUID) (*models.Session, error) {
	var (
		out        *models.Session
		recipients []uuid.UUID
	)
	err := o.store.Mutate(ctx, sessionID, func(tx Tx) error {
		s := tx.Session()
		if s.HostUserID != hostID {
			return ErrPermissionDenied
		}
		if !s.Status.CanTransitionTo(models.StatusActive) {
			return ErrInvalidState
		}
		now := o.now()
		s.Status = models.StatusActive
		s.StartedAt = &now
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		parts, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		recipients = joinedUserIDs(parts, hostID)
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.rooms.ActivateRoom(out.RoomID)
	o.putCache(ctx, out)
	o.dispatch(ctx, recipients, EventSessionStarted, out.ID, nil)
	o.logger.Info("session started", zap.String("session_id", out.ID.String()))
	return out, nil
}

// EndSession transitions ACTIVE -> COMPLETED: stamps endedAt, computes the
// participation duration of everyone still JOINED and folds submitted ratings
// into the session aggregate. Host-only.
func (o *Orchestrator) EndSession(ctx context.Context, hostID, sessionID uuid.UUID) (*models.Session, error) {
	var (
		out        *models.Session
		recipients []uuid.UUID
	)
	err := o.store.Mutate(ctx, sessionID, func(tx Tx) error {
		s := tx.Session()
		if s.HostUserID != hostID {
			return ErrPermissionDenied
		}
		if !s.Status.CanTransitionTo(models.StatusCompleted) {
			return ErrInvalidState
		}
		parts, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		now := o.now()
		for i := range parts {
			if parts[i].Status != models.ParticipantJoined {
				continue
			}
			d := minutesBetween(parts[i].JoinedAt, now)
			parts[i].ParticipationDurationMinutes = &d
			if err := tx.UpsertParticipant(ctx, &parts[i]); err != nil {
				return err
			}
		}
		completeLocked(ctx, tx, s, parts, now)
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		recipients = joinedUserIDs(parts, hostID)
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.rooms.EndRoom(out.RoomID)
	o.putCache(ctx, out)
	o.dispatch(ctx, recipients, EventSessionCompleted, out.ID, nil)
	o.logger.Info("session completed", zap.String("session_id", out.ID.String()))
	return out, nil
}

// CancelSession transitions any non-terminal state to CANCELLED. Host-only.
func (o *Orchestrator) CancelSession(ctx context.Context, hostID, sessionID uuid.UUID, reason string) (*models.Session, error) {
	var (
		out        *models.Session
		recipients []uuid.UUID
	)
	err := o.store.Mutate(ctx, sessionID, func(tx Tx) error {
		s := tx.Session()
		if s.HostUserID != hostID {
			return ErrPermissionDenied
		}
		if !s.Status.CanTransitionTo(models.StatusCancelled) {
			return ErrInvalidState
		}
		s.Status = models.StatusCancelled
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		parts, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		recipients = joinedUserIDs(parts, hostID)
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.rooms.EndRoom(out.RoomID)
	o.putCache(ctx, out)
	o.dispatch(ctx, recipients, EventSessionCancelled, out.ID, map[string]string{"reason": reason})
	o.logger.Info("session cancelled", zap.String("session_id", out.ID.String()), zap.String("reason", reason))
	return out, nil
}

// KickParticipant marks the target KICKED and evicts them from the signaling
// room. Host-only; the host cannot kick themselves.
func (o *Orchestrator) KickParticipant(ctx context.Context, hostID, sessionID, targetID uuid.UUID, reason string) (*models.Session, error) {
	var out *models.Session
	err := o.store.Mutate(ctx, sessionID, func(tx Tx) error {
		s := tx.Session()
		if s.HostUserID != hostID {
			return ErrPermissionDenied
		}
		if targetID == hostID {
			return ErrPermissionDenied
		}
		if s.Status.Terminal() {
			return ErrInvalidState
		}
		p, err := tx.Participant(ctx, targetID)
		if err != nil {
			return err
		}
		if p == nil || p.Status != models.ParticipantJoined {
			return ErrNotMember
		}
		markDeparted(p, models.ParticipantKicked, o.now())
		if err := tx.UpsertParticipant(ctx, p); err != nil {
			return err
		}
		parts, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		s.CurrentParticipants = countJoined(parts, uuid.Nil)
		if s.Status == models.StatusWaiting && s.CurrentParticipants < s.MaxParticipants {
			s.Status = models.StatusScheduled
		}
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.rooms.EvictFromRoom(out.RoomID, targetID)
	o.putCache(ctx, out)
	o.dispatch(ctx, []uuid.UUID{targetID}, EventParticipantKicked, out.ID, map[string]string{"reason": reason})
	return out, nil
}

// RateSession records a rating from a user holding a terminal participant
// record (LEFT, KICKED, or any record once the session itself is terminal)
// and refreshes the session aggregate.
func (o *Orchestrator) RateSession(ctx context.Context, userID, sessionID uuid.UUID, rating int, feedback string) (*models.Session, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	var out *models.Session
	err := o.store.Mutate(ctx, sessionID, func(tx Tx) error {
		s := tx.Session()
		p, err := tx.Participant(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotMember
		}
		if p.Status == models.ParticipantJoined && !s.Status.Terminal() {
			return ErrInvalidState
		}
		p.Rating = &rating
		if feedback != "" {
			p.Feedback = &feedback
		}
		if err := tx.UpsertParticipant(ctx, p); err != nil {
			return err
		}
		parts, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		s.RatingAvg, s.RatingCount = aggregateRatings(parts)
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.putCache(ctx, out)
	return out, nil
}

// UpdateSpec is the patch input for UpdateSettings; nil fields are unchanged.
type UpdateSpec struct {
	Title           *string
	Description     *string
	Topic           *string
	Level           *string
	ScheduledAt     *time.Time
	DurationMinutes *int
	MaxParticipants *int
	IsPublic        *bool
}

// UpdateSettings patches session metadata before the session starts. Host-only.
func (o *Orchestrator) UpdateSettings(ctx context.Context, hostID, sessionID uuid.UUID, spec UpdateSpec) (*models.Session, error) {
	var (
		out             *models.Session
		capacityChanged bool
	)
	err := o.store.Mutate(ctx, sessionID, func(tx Tx) error {
		s := tx.Session()
		if s.HostUserID != hostID {
			return ErrPermissionDenied
		}
		if !s.Status.Joinable() {
			return ErrInvalidState
		}
		if spec.Title != nil {
			s.Title = *spec.Title
		}
		if spec.Description != nil {
			s.Description = *spec.Description
		}
		if spec.Topic != nil {
			s.Topic = *spec.Topic
		}
		if spec.Level != nil {
			s.Level = *spec.Level
		}
		if spec.ScheduledAt != nil {
			if spec.ScheduledAt.Before(o.now().Add(o.limits.MinScheduleLead)) {
				return ErrScheduleTooSoon
			}
			s.ScheduledAt = *spec.ScheduledAt
		}
		if spec.DurationMinutes != nil && *spec.DurationMinutes > 0 {
			s.DurationMinutes = *spec.DurationMinutes
		}
		if spec.IsPublic != nil {
			s.IsPublic = *spec.IsPublic
		}
		if spec.MaxParticipants != nil {
			parts, err := tx.Participants(ctx)
			if err != nil {
				return err
			}
			joined := countJoined(parts, uuid.Nil)
			if *spec.MaxParticipants < 2 || *spec.MaxParticipants < joined {
				return ErrCapacityExceeded
			}
			s.MaxParticipants = *spec.MaxParticipants
			capacityChanged = true
			if joined >= s.MaxParticipants {
				s.Status = models.StatusWaiting
			} else if s.Status == models.StatusWaiting {
				s.Status = models.StatusScheduled
			}
		}
		if err := tx.UpdateSession(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	if capacityChanged {
		o.rooms.UpdateRoomCapacity(out.RoomID, out.MaxParticipants)
	}
	o.putCache(ctx, out)
	return out, nil
}

// InviteParticipant stores a TTL'd invitation. Any current JOINED participant
// may invite.
func (o *Orchestrator) InviteParticipant(ctx context.Context, inviterID, sessionID, inviteeID uuid.UUID, message string) error {
	s, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.Status.Joinable() {
		return ErrInvalidState
	}
	p, err := o.store.GetParticipant(ctx, sessionID, inviterID)
	if err != nil {
		return err
	}
	if p == nil || p.Status != models.ParticipantJoined {
		return ErrNotMember
	}
	inv := models.Invitation{
		SessionID: sessionID,
		UserID:    inviteeID,
		InvitedBy: inviterID,
		Message:   message,
		CreatedAt: o.now(),
	}
	if err := o.invites.Put(ctx, inv); err != nil {
		return fmt.Errorf("store invitation: %w", err)
	}
	o.dispatch(ctx, []uuid.UUID{inviteeID}, EventSessionInvite, sessionID, map[string]string{"invited_by": inviterID.String()})
	return nil
}

// RespondToInvite consumes an invitation; accepting runs the standard join
// path with all its capacity rules.
func (o *Orchestrator) RespondToInvite(ctx context.Context, userID, sessionID uuid.UUID, accept bool) (*models.Session, error) {
	inv, err := o.invites.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	if err := o.invites.Delete(ctx, sessionID, userID); err != nil {
		o.logger.Warn("delete invitation failed", zap.Error(err))
	}
	if !accept {
		return nil, nil
	}
	return o.JoinSession(ctx, userID, sessionID)
}

// ListAvailable returns public joinable sessions.
func (o *Orchestrator) ListAvailable(ctx context.Context, f AvailableFilter) ([]models.Session, error) {
	return o.store.ListAvailable(ctx, f)
}

// ListMine returns sessions the user holds any membership record in.
func (o *Orchestrator) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	return o.store.ListByParticipant(ctx, userID)
}

// ListHosted returns sessions hosted by the user.
func (o *Orchestrator) ListHosted(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	return o.store.ListHosted(ctx, userID)
}

// Search matches public joinable sessions by title or topic.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int) ([]models.Session, error) {
	return o.store.Search(ctx, query, limit)
}

// Recommend returns joinable sessions for a practice language, excluding the
// user's own sessions.
func (o *Orchestrator) Recommend(ctx context.Context, userID uuid.UUID, language string, limit int) ([]models.Session, error) {
	return o.store.ListRecommended(ctx, userID, language, limit)
}

// ListSessionParticipants returns a session's membership records.
func (o *Orchestrator) ListSessionParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return o.store.ListParticipants(ctx, sessionID)
}

func (o *Orchestrator) putCache(ctx context.Context, s *models.Session) {
	if err := o.cache.Put(ctx, s); err != nil {
		o.logger.Warn("session cache write failed", zap.Error(err), zap.String("session_id", s.ID.String()))
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, recipients []uuid.UUID, event string, sessionID uuid.UUID, data map[string]string) {
	if o.notify == nil || len(recipients) == 0 {
		return
	}
	o.notify.Notify(ctx, recipients, event, sessionID, data)
}

// completeLocked finalizes a session as COMPLETED inside the critical
// section: stamps endedAt, recomputes the joined count and folds submitted
// ratings into the aggregate. Callers persist via tx.UpdateSession.
func completeLocked(ctx context.Context, tx Tx, s *models.Session, parts []models.Participant, now time.Time) {
	s.Status = models.StatusCompleted
	s.EndedAt = &now
	s.CurrentParticipants = countJoined(parts, uuid.Nil)
	s.RatingAvg, s.RatingCount = aggregateRatings(parts)
}

func markDeparted(p *models.Participant, status models.ParticipantStatus, now time.Time) {
	p.Status = status
	p.LeftAt = &now
	d := minutesBetween(p.JoinedAt, now)
	p.ParticipationDurationMinutes = &d
}

func minutesBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}

func countJoined(parts []models.Participant, exclude uuid.UUID) int {
	n := 0
	for _, p := range parts {
		if p.Status == models.ParticipantJoined && p.UserID != exclude {
			n++
		}
	}
	return n
}

// earliestJoined picks the deterministic failover host: earliest joinedAt,
// ties broken by ascending user id.
func earliestJoined(parts []models.Participant, exclude uuid.UUID) *models.Participant {
	var best *models.Participant
	for i := range parts {
		p := &parts[i]
		if p.Status != models.ParticipantJoined || p.UserID == exclude {
			continue
		}
		if best == nil ||
			p.JoinedAt.Before(best.JoinedAt) ||
			(p.JoinedAt.Equal(best.JoinedAt) && p.UserID.String() < best.UserID.String()) {
			best = p
		}
	}
	return best
}

func joinedUserIDs(parts []models.Participant, exclude uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, p := range parts {
		if p.Status == models.ParticipantJoined && p.UserID != exclude {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func aggregateRatings(parts []models.Participant) (avg float64, count int) {
	sum := 0
	for _, p := range parts {
		if p.Rating != nil {
			sum += *p.Rating
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	return float64(sum) / float64(count), count
}

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateJoinCode() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = joinCodeAlphabet[int(buf[i])%len(joinCodeAlphabet)]
	}
	return string(buf)
}
