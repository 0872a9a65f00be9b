package sessions

import (
	"context"

	"github.com/google/uuid"

	"github.com/lingopeer/backend/internal/models"
)

// Store is the durable session + participant repository.
//
// Mutate is the single-writer mechanism for a session: it runs fn while
// holding an exclusive lock on the session row, so every capacity/status
// check inside fn is atomic with respect to other mutators of the same
// session. Different sessions never contend.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session, host *models.Participant) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetSessionByJoinCode(ctx context.Context, code string) (*models.Session, error)
	GetParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	ListAvailable(ctx context.Context, f AvailableFilter) ([]models.Session, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	ListHosted(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	ListRecommended(ctx context.Context, userID uuid.UUID, language string, limit int) ([]models.Session, error)
	Search(ctx context.Context, query string, limit int) ([]models.Session, error)
	CountHostedOpen(ctx context.Context, hostID uuid.UUID) (int, error)
	CountOpenMemberships(ctx context.Context, userID, excludeSession uuid.UUID) (int, error)
	Mutate(ctx context.Context, sessionID uuid.UUID, fn func(tx Tx) error) error
}

// Tx is the view of one session's state inside a Mutate critical section.
// Session returns the locked row; writes become visible atomically when
// Mutate commits, or not at all.
type Tx interface {
	Session() *models.Session
	Participants(ctx context.Context) ([]models.Participant, error)
	Participant(ctx context.Context, userID uuid.UUID) (*models.Participant, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	UpsertParticipant(ctx context.Context, p *models.Participant) error
}

// AvailableFilter narrows the public upcoming-session listing.
type AvailableFilter struct {
	Language string
	Level    string
	Limit    int
}
