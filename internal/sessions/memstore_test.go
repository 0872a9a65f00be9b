package sessions

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lingopeer/backend/internal/models"
)

// memStore is an in-memory Store used by the orchestrator tests. Mutate
// serializes per session with a mutex, mirroring the row-lock semantics of
// the PostgreSQL repository.
type memStore struct {
	mu           sync.Mutex
	locks        map[uuid.UUID]*sync.Mutex
	sessions     map[uuid.UUID]*models.Session
	participants map[uuid.UUID]map[uuid.UUID]*models.Participant
}

func newMemStore() *memStore {
	return &memStore{
		locks:        make(map[uuid.UUID]*sync.Mutex),
		sessions:     make(map[uuid.UUID]*models.Session),
		participants: make(map[uuid.UUID]map[uuid.UUID]*models.Participant),
	}
}

func (s *memStore) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.locks[id]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[id] = lk
	}
	return lk
}

func (s *memStore) CreateSession(_ context.Context, sess *models.Session, host *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	host.SessionID = sess.ID
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.participants[sess.ID] = map[uuid.UUID]*models.Participant{host.UserID: copyParticipant(host)}
	return nil
}

func copyParticipant(p *models.Participant) *models.Participant {
	cp := *p
	return &cp
}

func (s *memStore) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) GetSessionByJoinCode(_ context.Context, code string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.JoinCode == code {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (s *memStore) GetParticipant(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[sessionID][userID]
	if !ok {
		return nil, nil
	}
	return copyParticipant(p), nil
}

func (s *memStore) ListParticipants(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedParticipantsLocked(sessionID, nil), nil
}

func (s *memStore) sortedParticipantsLocked(sessionID uuid.UUID, overlay map[uuid.UUID]models.Participant) []models.Participant {
	var list []models.Participant
	for id, p := range s.participants[sessionID] {
		if o, ok := overlay[id]; ok {
			list = append(list, o)
			continue
		}
		list = append(list, *p)
	}
	for id, o := range overlay {
		if _, ok := s.participants[sessionID][id]; !ok {
			list = append(list, o)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].UserID.String() < list[j].UserID.String()
	})
	return list
}

func (s *memStore) ListAvailable(_ context.Context, f AvailableFilter) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Session
	for _, sess := range s.sessions {
		if !sess.Status.Joinable() || !sess.IsPublic || sess.CurrentParticipants >= sess.MaxParticipants {
			continue
		}
		if f.Language != "" && sess.Language != f.Language {
			continue
		}
		if f.Level != "" && sess.Level != f.Level {
			continue
		}
		list = append(list, *sess)
	}
	return list, nil
}

func (s *memStore) ListByParticipant(_ context.Context, userID uuid.UUID) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Session
	for id, sess := range s.sessions {
		if _, ok := s.participants[id][userID]; ok {
			list = append(list, *sess)
		}
	}
	return list, nil
}

func (s *memStore) ListHosted(_ context.Context, userID uuid.UUID) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Session
	for _, sess := range s.sessions {
		if sess.HostUserID == userID {
			list = append(list, *sess)
		}
	}
	return list, nil
}

func (s *memStore) ListRecommended(_ context.Context, userID uuid.UUID, language string, _ int) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Session
	for id, sess := range s.sessions {
		if !sess.Status.Joinable() || !sess.IsPublic || sess.Language != language ||
			sess.HostUserID == userID || sess.CurrentParticipants >= sess.MaxParticipants {
			continue
		}
		if p, ok := s.participants[id][userID]; ok && p.Status == models.ParticipantJoined {
			continue
		}
		list = append(list, *sess)
	}
	return list, nil
}

func (s *memStore) Search(_ context.Context, query string, _ int) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	var list []models.Session
	for _, sess := range s.sessions {
		if !sess.IsPublic || !sess.Status.Joinable() {
			continue
		}
		if strings.Contains(strings.ToLower(sess.Title), q) || strings.Contains(strings.ToLower(sess.Topic), q) {
			list = append(list, *sess)
		}
	}
	return list, nil
}

func (s *memStore) CountHostedOpen(_ context.Context, hostID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.HostUserID == hostID && !sess.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountOpenMemberships(_ context.Context, userID, excludeSession uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if id == excludeSession || sess.Status.Terminal() {
			continue
		}
		if p, ok := s.participants[id][userID]; ok && p.Status == models.ParticipantJoined {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Mutate(_ context.Context, sessionID uuid.UUID, fn func(tx Tx) error) error {
	lk := s.lockFor(sessionID)
	lk.Lock()
	defer lk.Unlock()

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	cp := *sess
	s.mu.Unlock()

	tx := &memTx{store: s, session: &cp, upserts: make(map[uuid.UUID]models.Participant)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	committed := *tx.session
	s.sessions[sessionID] = &committed
	for id, p := range tx.upserts {
		pc := p
		s.participants[sessionID][id] = &pc
	}
	return nil
}

type memTx struct {
	store   *memStore
	session *models.Session
	upserts map[uuid.UUID]models.Participant
}

func (t *memTx) Session() *models.Session { return t.session }

func (t *memTx) Participants(_ context.Context) ([]models.Participant, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.sortedParticipantsLocked(t.session.ID, t.upserts), nil
}

func (t *memTx) Participant(_ context.Context, userID uuid.UUID) (*models.Participant, error) {
	if p, ok := t.upserts[userID]; ok {
		cp := p
		return &cp, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	p, ok := t.store.participants[t.session.ID][userID]
	if !ok {
		return nil, nil
	}
	return copyParticipant(p), nil
}

func (t *memTx) UpdateSession(_ context.Context, s *models.Session) error {
	if s != t.session {
		*t.session = *s
	}
	return nil
}

func (t *memTx) UpsertParticipant(_ context.Context, p *models.Participant) error {
	if p.SessionID == uuid.Nil {
		p.SessionID = t.session.ID
	}
	t.upserts[p.UserID] = *p
	return nil
}
