package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingopeer/backend/internal/models"
)

type mapCache struct {
	mu sync.Mutex
	m  map[uuid.UUID]models.Session
}

func newMapCache() *mapCache { return &mapCache{m: make(map[uuid.UUID]models.Session)} }

func (c *mapCache) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.m[id]; ok {
		cp := s
		return &cp, nil
	}
	return nil, nil
}

func (c *mapCache) Put(_ context.Context, s *models.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[s.ID] = *s
	return nil
}

func (c *mapCache) Delete(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

type roomCall struct {
	op       string
	roomID   uuid.UUID
	userID   uuid.UUID
	capacity int
}

type fakeRooms struct {
	mu    sync.Mutex
	calls []roomCall
}

func (r *fakeRooms) record(call roomCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRooms) EnsureRoom(_, roomID, hostID uuid.UUID, capacity int) {
	r.record(roomCall{op: "ensure", roomID: roomID, userID: hostID, capacity: capacity})
}

func (r *fakeRooms) UpdateRoomCapacity(roomID uuid.UUID, capacity int) {
	r.record(roomCall{op: "capacity", roomID: roomID, capacity: capacity})
}

func (r *fakeRooms) SetRoomHost(roomID, hostID uuid.UUID) {
	r.record(roomCall{op: "set_host", roomID: roomID, userID: hostID})
}

func (r *fakeRooms) ActivateRoom(roomID uuid.UUID) { r.record(roomCall{op: "activate", roomID: roomID}) }
func (r *fakeRooms) EndRoom(roomID uuid.UUID)      { r.record(roomCall{op: "end", roomID: roomID}) }

func (r *fakeRooms) EvictFromRoom(roomID, userID uuid.UUID) {
	r.record(roomCall{op: "evict", roomID: roomID, userID: userID})
}

func (r *fakeRooms) last(op string) (roomCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].op == op {
			return r.calls[i], true
		}
	}
	return roomCall{}, false
}

func (r *fakeRooms) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.op
	}
	return out
}

func (r *fakeRooms) has(op string) bool {
	for _, o := range r.ops() {
		if o == op {
			return true
		}
	}
	return false
}

type notification struct {
	recipients []uuid.UUID
	event      string
	sessionID  uuid.UUID
	data       map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(_ context.Context, recipients []uuid.UUID, event string, sessionID uuid.UUID, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{recipients: recipients, event: event, sessionID: sessionID, data: data})
}

func (n *fakeNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.event
	}
	return out
}

type memInviteStore struct {
	mu sync.Mutex
	m  map[string]models.Invitation
}

func newMemInviteStore() *memInviteStore { return &memInviteStore{m: make(map[string]models.Invitation)} }

func inviteKey(sessionID, userID uuid.UUID) string { return sessionID.String() + ":" + userID.String() }

func (s *memInviteStore) Put(_ context.Context, inv models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[inviteKey(inv.SessionID, inv.UserID)] = inv
	return nil
}

func (s *memInviteStore) Get(_ context.Context, sessionID, userID uuid.UUID) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.m[inviteKey(sessionID, userID)]; ok {
		cp := inv
		return &cp, nil
	}
	return nil, nil
}

func (s *memInviteStore) Delete(_ context.Context, sessionID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, inviteKey(sessionID, userID))
	return nil
}

type testEnv struct {
	orch    *Orchestrator
	store   *memStore
	cache   *mapCache
	rooms   *fakeRooms
	notify  *fakeNotifier
	invites *memInviteStore
	clock   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   newMemStore(),
		cache:   newMapCache(),
		rooms:   &fakeRooms{},
		notify:  &fakeNotifier{},
		invites: newMemInviteStore(),
		clock:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.orch = NewOrchestrator(env.store, env.cache, env.rooms, env.notify, env.invites, Limits{
		MinScheduleLead: 10 * time.Minute,
		MaxHosted:       3,
		MaxMemberships:  2,
	}, nil)
	env.orch.now = func() time.Time { return env.clock }
	return env
}

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func (e *testEnv) createSession(t *testing.T, hostID uuid.UUID, maxParticipants int) *models.Session {
	t.Helper()
	s, err := e.orch.CreateSession(context.Background(), hostID, CreateSpec{
		Title:           "Spanish conversation",
		Topic:           "travel",
		Language:        "es",
		Level:           "intermediate",
		MaxParticipants: maxParticipants,
		ScheduledAt:     e.clock.Add(time.Hour),
		DurationMinutes: 45,
		IsPublic:        true,
	})
	require.NoError(t, err)
	return s
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()

	_, err := env.orch.CreateSession(ctx, host, CreateSpec{Language: "es", MaxParticipants: 2, ScheduledAt: env.clock.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.orch.CreateSession(ctx, host, CreateSpec{Title: "x", Language: "es", MaxParticipants: 1, ScheduledAt: env.clock.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.orch.CreateSession(ctx, host, CreateSpec{Title: "x", Language: "es", MaxParticipants: 2, ScheduledAt: env.clock.Add(5 * time.Minute)})
	assert.ErrorIs(t, err, ErrScheduleTooSoon)
}

func TestCreateSessionHostedLimit(t *testing.T) {
	env := newTestEnv(t)
	host := uuid.New()
	for i := 0; i < 3; i++ {
		env.createSession(t, host, 4)
	}
	_, err := env.orch.CreateSession(context.Background(), host, CreateSpec{
		Title: "one too many", Language: "es", MaxParticipants: 2, ScheduledAt: env.clock.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCreateSessionSeedsHostAndRoom(t *testing.T) {
	env := newTestEnv(t)
	host := uuid.New()
	s := env.createSession(t, host, 4)

	assert.Equal(t, models.StatusScheduled, s.Status)
	assert.Equal(t, 1, s.CurrentParticipants)
	assert.Len(t, s.JoinCode, 8)
	assert.NotEqual(t, uuid.Nil, s.RoomID)

	parts, err := env.store.ListParticipants(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, host, parts[0].UserID)
	assert.Equal(t, models.ParticipantJoined, parts[0].Status)

	assert.True(t, env.rooms.has("ensure"))
	cached, err := env.cache.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, s.ID, cached.ID)
}

func TestGetSessionPrefersCache(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, uuid.New(), 4)

	stale := *s
	stale.Title = "cached title"
	require.NoError(t, env.cache.Put(context.Background(), &stale))

	got, err := env.orch.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "cached title", got.Title)

	require.NoError(t, env.cache.Delete(context.Background(), s.ID))
	got, err = env.orch.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spanish conversation", got.Title)
}

func TestJoinSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 3)

	guest := uuid.New()
	got, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentParticipants)
	assert.Equal(t, models.StatusScheduled, got.Status)

	_, err = env.orch.JoinSession(ctx, guest, s.ID)
	assert.ErrorIs(t, err, ErrAlreadyMember)

	// Third joiner fills the session and flips it to WAITING.
	got, err = env.orch.JoinSession(ctx, uuid.New(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentParticipants)
	assert.Equal(t, models.StatusWaiting, got.Status)

	_, err = env.orch.JoinSession(ctx, uuid.New(), s.ID)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestJoinSessionRejectsWhenActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	_, err := env.orch.StartSession(ctx, host, s.ID)
	require.NoError(t, err)

	_, err = env.orch.JoinSession(ctx, uuid.New(), s.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestJoinSessionMembershipLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := uuid.New()

	a := env.createSession(t, uuid.New(), 4)
	b := env.createSession(t, uuid.New(), 4)
	c := env.createSession(t, uuid.New(), 4)

	_, err := env.orch.JoinSession(ctx, user, a.ID)
	require.NoError(t, err)
	_, err = env.orch.JoinSession(ctx, user, b.ID)
	require.NoError(t, err)

	_, err = env.orch.JoinSession(ctx, user, c.ID)
	assert.ErrorIs(t, err, ErrRateLimited)

	// Leaving one frees a membership slot.
	_, err = env.orch.LeaveSession(ctx, user, a.ID)
	require.NoError(t, err)
	_, err = env.orch.JoinSession(ctx, user, c.ID)
	assert.NoError(t, err)
}

func TestJoinSessionKickedCannotRejoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	target := uuid.New()
	_, err := env.orch.JoinSession(ctx, target, s.ID)
	require.NoError(t, err)
	_, err = env.orch.KickParticipant(ctx, host, s.ID, target, "disruptive")
	require.NoError(t, err)

	_, err = env.orch.JoinSession(ctx, target, s.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestJoinSessionByCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.createSession(t, uuid.New(), 4)

	got, err := env.orch.JoinSessionByCode(ctx, uuid.New(), "  "+s.JoinCode+" ")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = env.orch.JoinSessionByCode(ctx, uuid.New(), "NOPE1234")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConcurrentJoinersLastSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.createSession(t, uuid.New(), 2)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.orch.JoinSession(ctx, uuid.New(), s.ID)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 1, won)

	final, err := env.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.CurrentParticipants)
	assert.LessOrEqual(t, final.CurrentParticipants, final.MaxParticipants)
}

func TestLeaveSessionNoOps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	// Leaving without a membership record is a no-op, not an error.
	got, err := env.orch.LeaveSession(ctx, uuid.New(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentParticipants)

	_, err = env.orch.CancelSession(ctx, host, s.ID, "")
	require.NoError(t, err)
	got, err = env.orch.LeaveSession(ctx, host, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestLeaveSessionStampsDuration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	guest := uuid.New()
	_, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)

	env.advance(25 * time.Minute)
	got, err := env.orch.LeaveSession(ctx, guest, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentParticipants)

	p, err := env.store.GetParticipant(ctx, s.ID, guest)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, models.ParticipantLeft, p.Status)
	require.NotNil(t, p.ParticipationDurationMinutes)
	assert.Equal(t, 25, *p.ParticipationDurationMinutes)
	require.NotNil(t, p.LeftAt)
}

func TestLeaveSessionFreesWaitingSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.createSession(t, uuid.New(), 2)

	guest := uuid.New()
	got, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusWaiting, got.Status)

	got, err = env.orch.LeaveSession(ctx, guest, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, got.Status)
	assert.Equal(t, 1, got.CurrentParticipants)
}

func TestHostFailoverEarliestJoined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 5)

	first := uuid.New()
	second := uuid.New()
	_, err := env.orch.JoinSession(ctx, first, s.ID)
	require.NoError(t, err)
	env.advance(time.Minute)
	_, err = env.orch.JoinSession(ctx, second, s.ID)
	require.NoError(t, err)

	got, err := env.orch.LeaveSession(ctx, host, s.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got.HostUserID)
	assert.Equal(t, 2, got.CurrentParticipants)
	assert.True(t, env.rooms.has("set_host"))
	assert.Contains(t, env.notify.events(), EventHostChanged)
}

func TestHostFailoverTieBreaksOnUserID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 5)

	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	_, err := env.orch.JoinSession(ctx, high, s.ID)
	require.NoError(t, err)
	_, err = env.orch.JoinSession(ctx, low, s.ID)
	require.NoError(t, err)

	got, err := env.orch.LeaveSession(ctx, host, s.ID)
	require.NoError(t, err)
	assert.Equal(t, low, got.HostUserID)
}

func TestHostLeavesAlonePreActiveCancels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	got, err := env.orch.LeaveSession(ctx, host, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.True(t, env.rooms.has("end"))
}

func TestHostLeavesAloneActiveCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	_, err := env.orch.StartSession(ctx, host, s.ID)
	require.NoError(t, err)

	got, err := env.orch.LeaveSession(ctx, host, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.True(t, env.rooms.has("end"))
}

func TestStartSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	guest := uuid.New()
	_, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)

	_, err = env.orch.StartSession(ctx, guest, s.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got, err := env.orch.StartSession(ctx, host, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, env.rooms.has("activate"))
	assert.Contains(t, env.notify.events(), EventSessionStarted)

	_, err = env.orch.StartSession(ctx, host, s.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	guest := uuid.New()
	_, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)

	_, err = env.orch.EndSession(ctx, host, s.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = env.orch.StartSession(ctx, host, s.ID)
	require.NoError(t, err)

	_, err = env.orch.EndSession(ctx, guest, s.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	env.advance(40 * time.Minute)
	got, err := env.orch.EndSession(ctx, host, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.EndedAt)

	p, err := env.store.GetParticipant(ctx, s.ID, guest)
	require.NoError(t, err)
	require.NotNil(t, p.ParticipationDurationMinutes)
	assert.Equal(t, 40, *p.ParticipationDurationMinutes)

	assert.True(t, env.rooms.has("end"))
	assert.Contains(t, env.notify.events(), EventSessionCompleted)
}

func TestCancelSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	guest := uuid.New()
	_, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)

	_, err = env.orch.CancelSession(ctx, guest, s.ID, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got, err := env.orch.CancelSession(ctx, host, s.ID, "host unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.True(t, env.rooms.has("end"))
	assert.Contains(t, env.notify.events(), EventSessionCancelled)

	_, err = env.orch.CancelSession(ctx, host, s.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestKickParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 3)

	guest := uuid.New()
	_, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)

	_, err = env.orch.KickParticipant(ctx, guest, s.ID, host, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.orch.KickParticipant(ctx, host, s.ID, host, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.orch.KickParticipant(ctx, host, s.ID, uuid.New(), "")
	assert.ErrorIs(t, err, ErrNotMember)

	got, err := env.orch.KickParticipant(ctx, host, s.ID, guest, "disruptive")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentParticipants)

	p, err := env.store.GetParticipant(ctx, s.ID, guest)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantKicked, p.Status)
	assert.True(t, env.rooms.has("evict"))
	assert.Contains(t, env.notify.events(), EventParticipantKicked)
}

func TestKickFromWaitingReopensSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 2)

	guest := uuid.New()
	got, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusWaiting, got.Status)

	got, err = env.orch.KickParticipant(ctx, host, s.ID, guest, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, got.Status)
}

func TestRateSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	guest := uuid.New()
	_, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)
	_, err = env.orch.StartSession(ctx, host, s.ID)
	require.NoError(t, err)

	_, err = env.orch.RateSession(ctx, guest, s.ID, 6, "")
	assert.ErrorIs(t, err, ErrInvalidRating)

	// Still JOINED in a non-terminal session: cannot rate yet.
	_, err = env.orch.RateSession(ctx, guest, s.ID, 5, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = env.orch.LeaveSession(ctx, guest, s.ID)
	require.NoError(t, err)
	got, err := env.orch.RateSession(ctx, guest, s.ID, 4, "great practice")
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.RatingAvg)
	assert.Equal(t, 1, got.RatingCount)

	_, err = env.orch.EndSession(ctx, host, s.ID)
	require.NoError(t, err)

	// Host still holds a JOINED record but the session is terminal now.
	got, err = env.orch.RateSession(ctx, host, s.ID, 5, "")
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.RatingAvg)
	assert.Equal(t, 2, got.RatingCount)

	_, err = env.orch.RateSession(ctx, uuid.New(), s.ID, 3, "")
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestUpdateSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	guest := uuid.New()
	_, err := env.orch.JoinSession(ctx, guest, s.ID)
	require.NoError(t, err)

	title := "Advanced Spanish"
	_, err = env.orch.UpdateSettings(ctx, guest, s.ID, UpdateSpec{Title: &title})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	tooSmall := 1
	_, err = env.orch.UpdateSettings(ctx, host, s.ID, UpdateSpec{MaxParticipants: &tooSmall})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// Cannot shrink below the current joined count.
	one := 1
	_, err = env.orch.UpdateSettings(ctx, host, s.ID, UpdateSpec{MaxParticipants: &one})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	two := 2
	got, err := env.orch.UpdateSettings(ctx, host, s.ID, UpdateSpec{Title: &title, MaxParticipants: &two})
	require.NoError(t, err)
	assert.Equal(t, "Advanced Spanish", got.Title)
	assert.Equal(t, models.StatusWaiting, got.Status)

	// Raising the cap reopens the session.
	four := 4
	got, err = env.orch.UpdateSettings(ctx, host, s.ID, UpdateSpec{MaxParticipants: &four})
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, got.Status)

	soon := env.clock.Add(time.Minute)
	_, err = env.orch.UpdateSettings(ctx, host, s.ID, UpdateSpec{ScheduledAt: &soon})
	assert.ErrorIs(t, err, ErrScheduleTooSoon)

	_, err = env.orch.StartSession(ctx, host, s.ID)
	require.NoError(t, err)
	_, err = env.orch.UpdateSettings(ctx, host, s.ID, UpdateSpec{Title: &title})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateSettingsSyncsRoomCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 2)

	three := 3
	got, err := env.orch.UpdateSettings(ctx, host, s.ID, UpdateSpec{MaxParticipants: &three})
	require.NoError(t, err)
	require.Equal(t, 3, got.MaxParticipants)

	call, ok := env.rooms.last("capacity")
	require.True(t, ok, "room capacity was not updated")
	assert.Equal(t, s.RoomID, call.roomID)
	assert.Equal(t, 3, call.capacity)

	// Metadata-only patches leave the room capacity alone.
	title := "renamed"
	_, err = env.orch.UpdateSettings(ctx, host, s.ID, UpdateSpec{Title: &title})
	require.NoError(t, err)
	again, _ := env.rooms.last("capacity")
	assert.Equal(t, call, again)
}

func TestInviteAndRespond(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	invitee := uuid.New()
	err := env.orch.InviteParticipant(ctx, uuid.New(), s.ID, invitee, "join us")
	assert.ErrorIs(t, err, ErrNotMember)

	require.NoError(t, env.orch.InviteParticipant(ctx, host, s.ID, invitee, "join us"))
	assert.Contains(t, env.notify.events(), EventSessionInvite)

	got, err := env.orch.RespondToInvite(ctx, invitee, s.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentParticipants)

	// The invitation is consumed on response.
	_, err = env.orch.RespondToInvite(ctx, invitee, s.ID, true)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestRespondToInviteDecline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	host := uuid.New()
	s := env.createSession(t, host, 4)

	invitee := uuid.New()
	require.NoError(t, env.orch.InviteParticipant(ctx, host, s.ID, invitee, ""))

	got, err := env.orch.RespondToInvite(ctx, invitee, s.ID, false)
	require.NoError(t, err)
	assert.Nil(t, got)

	inv, err := env.invites.Get(ctx, s.ID, invitee)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

// Full lifecycle: host A schedules a 2-seat session, B fills it, C is turned
// away, B leaves and C takes the freed seat, the session runs and completes
// with ratings folded into the aggregate.
func TestSessionLifecycleScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	s := env.createSession(t, a, 2)

	got, err := env.orch.JoinSession(ctx, b, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusWaiting, got.Status)

	_, err = env.orch.JoinSession(ctx, c, s.ID)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	got, err = env.orch.LeaveSession(ctx, b, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusScheduled, got.Status)

	got, err = env.orch.JoinSession(ctx, c, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusWaiting, got.Status)
	require.Equal(t, 2, got.CurrentParticipants)

	_, err = env.orch.StartSession(ctx, a, s.ID)
	require.NoError(t, err)

	env.advance(30 * time.Minute)
	got, err = env.orch.EndSession(ctx, a, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)

	got, err = env.orch.RateSession(ctx, c, s.ID, 5, "")
	require.NoError(t, err)
	got, err = env.orch.RateSession(ctx, a, s.ID, 4, "")
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.RatingAvg)
	assert.Equal(t, 2, got.RatingCount)

	parts, err := env.store.ListParticipants(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, parts, 3)
}
