package tokens

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/events"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokencache"
)

// memStore is an in-memory sessions.Repository. err, when set, is returned
// by every call.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Session
	err    error
	block  bool

	// setRevokedNotFound simulates a concurrent delete between lookup and update.
	setRevokedNotFound bool
	setRevokedErr      error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*models.Session)}
}

func (s *memStore) fail(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *memStore) Create(ctx context.Context, in *models.Session) (*models.Session, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.JTI == in.JTI {
			return nil, errors.New("duplicate key value violates unique constraint")
		}
	}
	s.nextID++
	row := *in
	row.ID = s.nextID
	row.CreatedAt = time.Now()
	s.rows[row.ID] = &row
	out := row
	return &out, nil
}

func (s *memStore) FindByJTI(ctx context.Context, jti string) (*models.Session, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.JTI == jti {
			out := *r
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (s *memStore) FindForUser(ctx context.Context, id int64, user string) (*models.Session, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.UserIdentity != user {
		return nil, common.ErrorNotFound
	}
	out := *r
	return &out, nil
}

func (s *memStore) ListForUser(ctx context.Context, user string) ([]*models.Session, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Session, 0)
	for _, r := range s.rows {
		if r.UserIdentity == user {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SetRevoked(ctx context.Context, id int64, user string, revoked bool) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	if s.setRevokedErr != nil {
		return s.setRevokedErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.UserIdentity != user || s.setRevokedNotFound {
		return common.ErrorNotFound
	}
	r.Revoked = revoked
	return nil
}

func (s *memStore) JTIsForUser(ctx context.Context, user string, ids []int64) ([]string, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0)
	for _, id := range ids {
		if r, ok := s.rows[id]; ok && r.UserIdentity == user {
			out = append(out, r.JTI)
		}
	}
	return out, nil
}

func (s *memStore) DeleteForUser(ctx context.Context, user string, ids []int64) (int64, error) {
	if err := s.fail(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := s.rows[id]; ok && r.UserIdentity == user {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0)
	for _, r := range s.rows {
		if r.ExpiresAt.Before(now) {
			out = append(out, r.JTI)
		}
	}
	return out, nil
}

func (s *memStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := s.fail(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.rows {
		if r.ExpiresAt.Before(now) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// flakyCache wraps a MemoryCache and fails selected operations.
type flakyCache struct {
	*tokencache.MemoryCache
	setErr error
	getErr error
	delErr error

	// delDelay holds every Delete call, honouring ctx.
	delDelay time.Duration
}

func (c *flakyCache) Set(ctx context.Context, k string, v []byte, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	return c.MemoryCache.Set(ctx, k, v, ttl)
}

func (c *flakyCache) Get(ctx context.Context, k string) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.MemoryCache.Get(ctx, k)
}

func (c *flakyCache) Delete(ctx context.Context, keys ...string) error {
	if c.delErr != nil {
		return c.delErr
	}
	if c.delDelay > 0 {
		select {
		case <-time.After(c.delDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.MemoryCache.Delete(ctx, keys...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TokenEvent
	err    error
}

func (p *recordingPublisher) PublishTokenEvent(_ context.Context, e events.TokenEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}
