package sessions

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lingopeer/backend/internal/middleware"
	"github.com/lingopeer/backend/internal/models"
	"github.com/lingopeer/backend/internal/signaling"
	"github.com/lingopeer/backend/pkg/response"
)

// Handler exposes session lifecycle operations over HTTP.
type Handler struct {
	orch  *Orchestrator
	relay *signaling.Relay
}

// NewHandler creates a session handler.
func NewHandler(orch *Orchestrator, relay *signaling.Relay) *Handler {
	return &Handler{orch: orch, relay: relay}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrInvitationNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrNotMember):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrRateLimited):
		response.TooManyRequests(c, err.Error())
	case errors.Is(err, ErrScheduleTooSoon), errors.Is(err, ErrInvalidRating), errors.Is(err, ErrValidation):
		response.BadRequest(c, err.Error())
	default:
		response.Internal(c, "internal error")
	}
}

func callerID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	Topic           string `json:"topic"`
	Language        string `json:"language" binding:"required"`
	Level           string `json:"level"`
	MaxParticipants int    `json:"max_participants" binding:"required,min=2"`
	ScheduledAt     string `json:"scheduled_at" binding:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	IsPublic        *bool  `json:"is_public"`
}

// Create handles POST /sessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_at")
		return
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	s, err := h.orch.CreateSession(c.Request.Context(), callerID(c), CreateSpec{
		Title:           req.Title,
		Description:     req.Description,
		Topic:           req.Topic,
		Language:        req.Language,
		Level:           req.Level,
		MaxParticipants: req.MaxParticipants,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		IsPublic:        isPublic,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, s)
}

// Get handles GET /sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.orch.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// Join handles POST /sessions/:id/join.
func (h *Handler) Join(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.orch.JoinSession(c.Request.Context(), callerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// JoinByCode handles POST /sessions/join-by-code.
func (h *Handler) JoinByCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.orch.JoinSessionByCode(c.Request.Context(), callerID(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// Leave handles POST /sessions/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.orch.LeaveSession(c.Request.Context(), callerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// Start handles POST /sessions/:id/start.
func (h *Handler) Start(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.orch.StartSession(c.Request.Context(), callerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// End handles POST /sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.orch.EndSession(c.Request.Context(), callerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// Cancel handles POST /sessions/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	s, err := h.orch.CancelSession(c.Request.Context(), callerID(c), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// Kick handles POST /sessions/:id/kick.
func (h *Handler) Kick(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id" binding:"required,uuid"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	targetID, _ := uuid.Parse(req.UserID)
	s, err := h.orch.KickParticipant(c.Request.Context(), callerID(c), id, targetID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// Rate handles POST /sessions/:id/rate.
func (h *Handler) Rate(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req struct {
		Rating   int    `json:"rating" binding:"required"`
		Feedback string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.orch.RateSession(c.Request.Context(), callerID(c), id, req.Rating, req.Feedback)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// Update handles PATCH /sessions/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req struct {
		Title           *string `json:"title"`
		Description     *string `json:"description"`
		Topic           *string `json:"topic"`
		Level           *string `json:"level"`
		ScheduledAt     *string `json:"scheduled_at"`
		DurationMinutes *int    `json:"duration_minutes"`
		MaxParticipants *int    `json:"max_participants"`
		IsPublic        *bool   `json:"is_public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request")
		return
	}
	spec := UpdateSpec{
		Title:           req.Title,
		Description:     req.Description,
		Topic:           req.Topic,
		Level:           req.Level,
		DurationMinutes: req.DurationMinutes,
		MaxParticipants: req.MaxParticipants,
		IsPublic:        req.IsPublic,
	}
	if req.ScheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledAt)
		if err != nil {
			response.BadRequest(c, "invalid scheduled_at")
			return
		}
		spec.ScheduledAt = &t
	}
	s, err := h.orch.UpdateSettings(c.Request.Context(), callerID(c), id, spec)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, s)
}

// ListAvailable handles GET /sessions.
func (h *Handler) ListAvailable(c *gin.Context) {
	list, err := h.orch.ListAvailable(c.Request.Context(), AvailableFilter{
		Language: c.Query("language"),
		Level:    c.Query("level"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, list)
}

// ListMine handles GET /sessions/mine.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.orch.ListMine(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, list)
}

// ListHosted handles GET /sessions/hosted.
func (h *Handler) ListHosted(c *gin.Context) {
	list, err := h.orch.ListHosted(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, list)
}

// Search handles GET /sessions/search.
func (h *Handler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.BadRequest(c, "q is required")
		return
	}
	list, err := h.orch.Search(c.Request.Context(), q, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, list)
}

// Recommend handles GET /sessions/recommended.
func (h *Handler) Recommend(c *gin.Context) {
	language := c.Query("language")
	if language == "" {
		response.BadRequest(c, "language is required")
		return
	}
	list, err := h.orch.Recommend(c.Request.Context(), callerID(c), language, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, list)
}

// Participants handles GET /sessions/:id/participants.
func (h *Handler) Participants(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	list, err := h.orch.ListSessionParticipants(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, list)
}

// Invite handles POST /sessions/:id/invite.
func (h *Handler) Invite(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req struct {
		UserID  string `json:"user_id" binding:"required,uuid"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	inviteeID, _ := uuid.Parse(req.UserID)
	if err := h.orch.InviteParticipant(c.Request.Context(), callerID(c), id, inviteeID, req.Message); err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, gin.H{"session_id": id, "user_id": inviteeID})
}

// RespondToInvite handles POST /sessions/:id/invitation/respond.
func (h *Handler) RespondToInvite(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.orch.RespondToInvite(c.Request.Context(), callerID(c), id, req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	if s == nil {
		response.NoContent(c)
		return
	}
	response.OK(c, s)
}

// Room handles GET /sessions/:id/room: returns the signaling connection
// descriptor for the session's room. Fails if the session is unknown.
// The room registry is in-memory, so the room is re-ensured here and
// converged to the session's current state: a restart must not leave an
// ACTIVE session with a room stuck in CREATED.
func (h *Handler) Room(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.orch.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.relay.EnsureRoom(s.ID, s.RoomID, s.HostUserID, s.MaxParticipants)
	h.relay.UpdateRoomCapacity(s.RoomID, s.MaxParticipants)
	switch {
	case s.Status == models.StatusActive:
		h.relay.ActivateRoom(s.RoomID)
	case s.Status.Terminal():
		h.relay.EndRoom(s.RoomID)
	}
	desc, err := h.relay.Descriptor(s.RoomID)
	if err != nil {
		response.Internal(c, "room unavailable")
		return
	}
	response.OK(c, desc)
}

// RoomParticipants handles GET /sessions/:id/room/participants: the live room
// registry view, served from the presence snapshot when the room is hosted on
// another instance.
func (h *Handler) RoomParticipants(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.orch.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	info, err := h.relay.RoomInfo(c.Request.Context(), s.RoomID)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}
	response.OK(c, info)
}
