package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Profile is the public view of a user.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
}

// Directory resolves user profiles. Profile management itself lives in the
// identity service; this is a read-only port.
type Directory interface {
	Lookup(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

// PostgresDirectory reads profiles from the users table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a directory over the shared users table.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Lookup returns the user's profile, or (nil, nil) when unknown.
func (d *PostgresDirectory) Lookup(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var p Profile
	err := d.pool.QueryRow(ctx,
		`SELECT id, display_name, avatar_url FROM users WHERE id = $1`, userID).
		Scan(&p.ID, &p.DisplayName, &p.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
