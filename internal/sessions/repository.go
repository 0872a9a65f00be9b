package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingopeer/backend/internal/models"
)

const sessionColumns = `id, title, description, host_user_id, topic, language, level,
	max_participants, current_participants, scheduled_at, duration_minutes, status,
	room_id, join_code, is_public, rating_avg, rating_count, started_at, ended_at,
	created_at, updated_at`

const participantColumns = `session_id, user_id, status, joined_at, left_at,
	participation_duration_minutes, rating, feedback`

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.HostUserID, &s.Topic, &s.Language, &s.Level,
		&s.MaxParticipants, &s.CurrentParticipants, &s.ScheduledAt, &s.DurationMinutes, &s.Status,
		&s.RoomID, &s.JoinCode, &s.IsPublic, &s.RatingAvg, &s.RatingCount, &s.StartedAt, &s.EndedAt,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.SessionID, &p.UserID, &p.Status, &p.JoinedAt, &p.LeftAt,
		&p.ParticipationDurationMinutes, &p.Rating, &p.Feedback)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	defer rows.Close()
	var list []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// CreateSession inserts a session together with its implicit host participant
// in one transaction.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session, host *models.Participant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO sessions (id, title, description, host_user_id, topic, language, level,
			max_participants, current_participants, scheduled_at, duration_minutes, status,
			room_id, join_code, is_public)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10, $11, $12, $13)
		RETURNING id, room_id, created_at, updated_at`
	err = tx.QueryRow(ctx, q, s.Title, s.Description, s.HostUserID, s.Topic, s.Language, s.Level,
		s.MaxParticipants, s.ScheduledAt, s.DurationMinutes, s.Status, s.RoomID, s.JoinCode, s.IsPublic).
		Scan(&s.ID, &s.RoomID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	host.SessionID = s.ID
	const pq = `INSERT INTO participants (session_id, user_id, status, joined_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, pq, host.SessionID, host.UserID, host.Status, host.JoinedAt); err != nil {
		return fmt.Errorf("insert host participant: %w", err)
	}
	return tx.Commit(ctx)
}

// GetSession returns a session by ID.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// GetSessionByJoinCode resolves a session by its join code.
func (r *Repository) GetSessionByJoinCode(ctx context.Context, code string) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE join_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// GetParticipant returns one membership record, or nil if none exists.
func (r *Repository) GetParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 AND user_id = $2`, sessionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListParticipants returns all membership records of a session.
func (r *Repository) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 ORDER BY joined_at, user_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// ListAvailable returns public joinable sessions with at least one free slot.
func (r *Repository) ListAvailable(ctx context.Context, f AvailableFilter) ([]models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE status IN ('scheduled', 'waiting') AND is_public
		AND current_participants < max_participants`
	args := []any{}
	if f.Language != "" {
		args = append(args, f.Language)
		q += fmt.Sprintf(" AND language = $%d", len(args))
	}
	if f.Level != "" {
		args = append(args, f.Level)
		q += fmt.Sprintf(" AND level = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY scheduled_at LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListByParticipant returns sessions where the user holds any membership record.
func (r *Repository) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE id IN (SELECT session_id FROM participants WHERE user_id = $1)
		ORDER BY scheduled_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListHosted returns sessions hosted by the user.
func (r *Repository) ListHosted(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE host_user_id = $1 ORDER BY scheduled_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListRecommended returns joinable public sessions for a practice language,
// excluding sessions the user already hosts or has joined.
func (r *Repository) ListRecommended(ctx context.Context, userID uuid.UUID, language string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions s
		WHERE s.status IN ('scheduled', 'waiting') AND s.is_public
		AND s.current_participants < s.max_participants
		AND s.language = $1 AND s.host_user_id <> $2
		AND NOT EXISTS (SELECT 1 FROM participants p
			WHERE p.session_id = s.id AND p.user_id = $2 AND p.status = 'joined')
		ORDER BY s.scheduled_at LIMIT $3`, language, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// Search matches title and topic case-insensitively.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE is_public AND status IN ('scheduled', 'waiting')
		AND (title ILIKE '%' || $1 || '%' OR topic ILIKE '%' || $1 || '%')
		ORDER BY scheduled_at LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// CountHostedOpen counts non-terminal sessions hosted by the user.
func (r *Repository) CountHostedOpen(ctx context.Context, hostID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions
		WHERE host_user_id = $1 AND status NOT IN ('completed', 'cancelled')`, hostID).Scan(&n)
	return n, err
}

// CountOpenMemberships counts the user's JOINED memberships in non-terminal
// sessions, excluding the given session.
func (r *Repository) CountOpenMemberships(ctx context.Context, userID, excludeSession uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM participants p
		JOIN sessions s ON s.id = p.session_id
		WHERE p.user_id = $1 AND p.status = 'joined'
		AND s.status NOT IN ('completed', 'cancelled') AND s.id <> $2`, userID, excludeSession).Scan(&n)
	return n, err
}

// Mutate runs fn inside a transaction holding a row lock on the session
// (SELECT ... FOR UPDATE). All mutations of one session serialize here; two
// concurrent joins racing the last slot both re-read the participant set
// under this lock, so exactly one can commit.
func (r *Repository) Mutate(ctx context.Context, sessionID uuid.UUID, fn func(tx Tx) error) error {
	pgtx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer pgtx.Rollback(ctx)

	s, err := scanSession(pgtx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	if err := fn(&pgTx{tx: pgtx, session: s}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

// pgTx implements Tx over an open pgx transaction holding the session row lock.
type pgTx struct {
	tx      pgx.Tx
	session *models.Session
}

func (t *pgTx) Session() *models.Session { return t.session }

func (t *pgTx) Participants(ctx context.Context) ([]models.Participant, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 ORDER BY joined_at, user_id`,
		t.session.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

func (t *pgTx) Participant(ctx context.Context, userID uuid.UUID) (*models.Participant, error) {
	p, err := scanParticipant(t.tx.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 AND user_id = $2`,
		t.session.ID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (t *pgTx) UpdateSession(ctx context.Context, s *models.Session) error {
	const q = `UPDATE sessions SET title = $1, description = $2, host_user_id = $3, topic = $4,
		language = $5, level = $6, max_participants = $7, current_participants = $8,
		scheduled_at = $9, duration_minutes = $10, status = $11, is_public = $12,
		rating_avg = $13, rating_count = $14, started_at = $15, ended_at = $16, updated_at = NOW()
		WHERE id = $17
		RETURNING updated_at`
	return t.tx.QueryRow(ctx, q, s.Title, s.Description, s.HostUserID, s.Topic,
		s.Language, s.Level, s.MaxParticipants, s.CurrentParticipants,
		s.ScheduledAt, s.DurationMinutes, s.Status, s.IsPublic,
		s.RatingAvg, s.RatingCount, s.StartedAt, s.EndedAt, s.ID).Scan(&s.UpdatedAt)
}

func (t *pgTx) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	const q = `INSERT INTO participants (session_id, user_id, status, joined_at, left_at,
			participation_duration_minutes, rating, feedback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			status = EXCLUDED.status, joined_at = EXCLUDED.joined_at, left_at = EXCLUDED.left_at,
			participation_duration_minutes = EXCLUDED.participation_duration_minutes,
			rating = EXCLUDED.rating, feedback = EXCLUDED.feedback`
	_, err := t.tx.Exec(ctx, q, p.SessionID, p.UserID, p.Status, p.JoinedAt, p.LeftAt,
		p.ParticipationDurationMinutes, p.Rating, p.Feedback)
	return err
}
