// Package tokens owns the lifecycle of issued tokens across the fast cache
// and the durable store: registration, revocation checks, revoke/unrevoke,
// deletion and pruning.
//
// Writes go to the cache first and the store second. A token unknown to both
// tiers is reported as revoked; a tier that fails to answer yields
// common.ErrPersistence instead.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/events"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokencache"
)

const (
	// minCacheTTL keeps snapshots of already expired tokens observable briefly.
	minCacheTTL = time.Second
	// cacheDeleteBatch caps the number of keys per cache delete call.
	cacheDeleteBatch = 500

	tracerName = "github.com/dmitrijs2005/authkeeper/internal/server/tokens"
)

// Decoder turns a signed token into its claims.
type Decoder interface {
	Decode(token string) (auth.Claims, error)
}

// EventPublisher receives lifecycle notifications.
type EventPublisher interface {
	PublishTokenEvent(ctx context.Context, e events.TokenEvent) error
}

// Manager coordinates both tiers. It holds no per-token state and is safe
// for concurrent use.
type Manager struct {
	store      sessions.Repository
	cache      tokencache.Cache
	revocation RevocationStore
	decoder    Decoder
	events     EventPublisher
	logger     logging.Logger
	tracer     trace.Tracer
	timeout    time.Duration
	now        func() time.Time
}

type Option func(*Manager)

// WithTimeout bounds each manager call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

func WithEvents(p EventPublisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

func NewManager(store sessions.Repository, cache tokencache.Cache, decoder Decoder, logger logging.Logger, opts ...Option) *Manager {
	logger = logger.With("module", "tokens")
	m := &Manager{
		store:   store,
		cache:   cache,
		decoder: decoder,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.revocation = Fallback{
		Primary:   NewCacheTier(cache, logger),
		Secondary: NewStoreTier(store),
	}
	return m
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrPersistence, err)
}

func (m *Manager) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "tokens."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Register decodes a freshly signed token and records it as active.
func (m *Manager) Register(ctx context.Context, signedToken string) error {
	claims, err := m.decoder.Decode(signedToken)
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	return m.RegisterClaims(ctx, claims)
}

// RegisterClaims records already decoded claims as an active token.
func (m *Manager) RegisterClaims(ctx context.Context, c auth.Claims) (err error) {
	if c.ID == "" || c.Identity == "" || !c.Type.Valid() || c.ExpiresAt == nil {
		return common.ErrorInvalidRequest
	}

	ctx, span := m.startSpan(ctx, "Register", attribute.String("token.type", string(c.Type)))
	defer func() { endSpan(span, err) }()

	s := &models.Session{
		JTI:          c.ID,
		TokenType:    c.Type,
		UserIdentity: c.Identity,
		ExpiresAt:    c.ExpiresAt.Time,
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.writeSnapshot(ctx, s); err != nil {
		return persistence("cache token", err)
	}
	if _, err := m.store.Create(ctx, s); err != nil {
		return persistence("store token", err)
	}

	m.logger.Debug(ctx, "token registered", "jti", s.JTI, "type", s.TokenType, "user", s.UserIdentity)
	return nil
}

func (m *Manager) writeSnapshot(ctx context.Context, s *models.Session) error {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl < minCacheTTL {
		ttl = minCacheTTL
	}
	return m.cache.Set(ctx, CacheKey(s.JTI), data, ttl)
}

// IsRevoked reports whether jti must be rejected. Unknown tokens are revoked.
// When err is non-nil (always wrapping common.ErrPersistence) the boolean is
// true and must not be used to admit the request.
func (m *Manager) IsRevoked(ctx context.Context, jti string) (revoked bool, err error) {
	if jti == "" {
		return true, nil
	}

	ctx, span := m.startSpan(ctx, "IsRevoked")
	defer func() {
		span.SetAttributes(attribute.Bool("token.revoked", revoked))
		endSpan(span, err)
	}()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	revoked, err = m.revocation.Revoked(ctx, jti)
	if err != nil {
		if errors.Is(err, ErrUnknownToken) {
			m.logger.Debug(ctx, "unknown token treated as revoked", "jti", jti)
			return true, nil
		}
		return true, persistence("revocation check", err)
	}
	return revoked, nil
}

// ListTokens returns every record owned by userIdentity, ordered by id.
func (m *Manager) ListTokens(ctx context.Context, userIdentity string) ([]*models.Session, error) {
	if userIdentity == "" {
		return nil, common.ErrorInvalidRequest
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	list, err := m.store.ListForUser(ctx, userIdentity)
	if err != nil {
		return nil, persistence("list tokens", err)
	}
	return list, nil
}

// GetToken returns one owned record or common.ErrorNotFound.
func (m *Manager) GetToken(ctx context.Context, tokenID int64, userIdentity string) (*models.Session, error) {
	if tokenID <= 0 || userIdentity == "" {
		return nil, common.ErrorInvalidRequest
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	s, err := m.store.FindForUser(ctx, tokenID, userIdentity)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, persistence("get token", err)
	}
	return s, nil
}

// Revoke marks an owned token revoked. It returns false when the token does
// not exist or belongs to someone else.
func (m *Manager) Revoke(ctx context.Context, tokenID int64, userIdentity string) (bool, error) {
	return m.setRevoked(ctx, tokenID, userIdentity, true)
}

// Unrevoke reactivates an owned token. Same not-found semantics as Revoke.
func (m *Manager) Unrevoke(ctx context.Context, tokenID int64, userIdentity string) (bool, error) {
	return m.setRevoked(ctx, tokenID, userIdentity, false)
}

func (m *Manager) setRevoked(ctx context.Context, tokenID int64, userIdentity string, revoked bool) (ok bool, err error) {
	if tokenID <= 0 || userIdentity == "" {
		return false, common.ErrorInvalidRequest
	}

	ctx, span := m.startSpan(ctx, "SetRevoked", attribute.Int64("token.id", tokenID), attribute.Bool("token.revoked", revoked))
	defer func() { endSpan(span, err) }()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	s, err := m.store.FindForUser(ctx, tokenID, userIdentity)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, persistence("find token", err)
	}

	prev := s.Revoked
	s.Revoked = revoked
	if err := m.writeSnapshot(ctx, s); err != nil {
		return false, persistence("cache token", err)
	}

	if err := m.store.SetRevoked(ctx, s.ID, userIdentity, revoked); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// deleted in between, drop the snapshot we just wrote
			if err := m.cache.Delete(ctx, CacheKey(s.JTI)); err != nil {
				return false, persistence("uncache token", err)
			}
			return false, nil
		}
		// put the previous state back so the cache does not run ahead of the store
		s.Revoked = prev
		if rerr := m.writeSnapshot(ctx, s); rerr != nil {
			m.logger.Warn(ctx, "failed to restore token snapshot", "jti", s.JTI, "error", rerr)
		}
		return false, persistence("store token", err)
	}

	kind := events.KindUnrevoked
	if revoked {
		kind = events.KindRevoked
	}
	m.publish(ctx, events.TokenEvent{Kind: kind, UserIdentity: userIdentity, JTIs: []string{s.JTI}, Count: 1})

	m.logger.Info(ctx, "token revocation changed", "token_id", s.ID, "user", userIdentity, "revoked", revoked)
	return true, nil
}

// DeleteTokens removes the owned tokens among tokenIDs from both tiers.
// Cache entries go first; the store rows are only deleted once every cache
// entry is gone. Ids that are absent or foreign are ignored.
func (m *Manager) DeleteTokens(ctx context.Context, tokenIDs []int64, userIdentity string) (err error) {
	if len(tokenIDs) == 0 || userIdentity == "" {
		return common.ErrorInvalidRequest
	}
	for _, id := range tokenIDs {
		if id <= 0 {
			return common.ErrorInvalidRequest
		}
	}

	ctx, span := m.startSpan(ctx, "DeleteTokens", attribute.Int("token.count", len(tokenIDs)))
	defer func() { endSpan(span, err) }()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	jtis, err := m.store.JTIsForUser(ctx, userIdentity, tokenIDs)
	if err != nil {
		return persistence("resolve tokens", err)
	}
	if err := m.deleteSnapshots(ctx, jtis); err != nil {
		return persistence("uncache tokens", err)
	}

	n, err := m.store.DeleteForUser(ctx, userIdentity, tokenIDs)
	if err != nil {
		return persistence("delete tokens", err)
	}

	m.publish(ctx, events.TokenEvent{Kind: events.KindDeleted, UserIdentity: userIdentity, JTIs: jtis, Count: n})
	m.logger.Info(ctx, "tokens deleted", "user", userIdentity, "count", n)
	return nil
}

// Prune removes every record whose expiry is strictly before the current
// time and returns how many store rows were deleted. Records deleted
// concurrently are simply not counted.
func (m *Manager) Prune(ctx context.Context) (n int64, err error) {
	now := m.now()

	ctx, span := m.startSpan(ctx, "Prune")
	defer func() {
		span.SetAttributes(attribute.Int64("token.count", n))
		endSpan(span, err)
	}()

	// the sweep can be large, so each round trip gets its own timeout
	var jtis []string
	err = m.timed(ctx, func(ctx context.Context) (err error) {
		jtis, err = m.store.ListExpired(ctx, now)
		return err
	})
	if err != nil {
		return 0, persistence("list expired", err)
	}
	if err := m.deleteSnapshots(ctx, jtis); err != nil {
		return 0, persistence("uncache expired", err)
	}

	err = m.timed(ctx, func(ctx context.Context) (err error) {
		n, err = m.store.DeleteExpired(ctx, now)
		return err
	})
	if err != nil {
		return 0, persistence("delete expired", err)
	}

	if n > 0 {
		m.publish(ctx, events.TokenEvent{Kind: events.KindPruned, Count: n})
	}
	m.logger.Info(ctx, "expired tokens pruned", "count", n, "before", now)
	return n, nil
}

func (m *Manager) deleteSnapshots(ctx context.Context, jtis []string) error {
	for start := 0; start < len(jtis); start += cacheDeleteBatch {
		end := min(start+cacheDeleteBatch, len(jtis))
		keys := make([]string, 0, end-start)
		for _, jti := range jtis[start:end] {
			keys = append(keys, CacheKey(jti))
		}
		if err := m.timed(ctx, func(ctx context.Context) error { return m.cache.Delete(ctx, keys...) }); err != nil {
			return err
		}
	}
	return nil
}

// timed runs fn under a fresh per-call timeout derived from ctx.
func (m *Manager) timed(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return fn(ctx)
}

func (m *Manager) publish(ctx context.Context, e events.TokenEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishTokenEvent(ctx, e); err != nil {
		m.logger.Warn(ctx, "failed to publish token event", "kind", e.Kind, "error", err)
	}
}
