package tokens

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokencache"
)

// ErrUnknownToken means the tier positively knows nothing about the jti.
// It is the only error a Fallback treats as a reason to ask the next tier.
var ErrUnknownToken = errors.New("unknown token")

// RevocationStore answers whether a token is revoked.
type RevocationStore interface {
	Revoked(ctx context.Context, jti string) (bool, error)
}

// CacheTier reads snapshots from the fast cache.
type CacheTier struct {
	cache  tokencache.Cache
	logger logging.Logger
}

func NewCacheTier(cache tokencache.Cache, logger logging.Logger) *CacheTier {
	return &CacheTier{cache: cache, logger: logger}
}

func (t *CacheTier) Revoked(ctx context.Context, jti string) (bool, error) {
	data, err := t.cache.Get(ctx, CacheKey(jti))
	if err != nil {
		if errors.Is(err, tokencache.ErrMiss) {
			return false, ErrUnknownToken
		}
		return false, err
	}

	s, err := DecodeSnapshot(data)
	if err == nil && s.JTI != jti {
		err = errCorruptSnapshot
	}
	if err != nil {
		// an unreadable entry is as good as a miss, the store decides
		t.logger.Warn(ctx, "ignoring cached token snapshot", "jti", jti, "error", err)
		return false, ErrUnknownToken
	}
	return s.Revoked, nil
}

// StoreTier reads the durable store.
type StoreTier struct {
	store sessions.Repository
}

func NewStoreTier(store sessions.Repository) *StoreTier {
	return &StoreTier{store: store}
}

func (t *StoreTier) Revoked(ctx context.Context, jti string) (bool, error) {
	s, err := t.store.FindByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, ErrUnknownToken
		}
		return false, err
	}
	return s.Revoked, nil
}

// Fallback consults Primary and, only on ErrUnknownToken, Secondary.
// Results are never written back to Primary.
type Fallback struct {
	Primary   RevocationStore
	Secondary RevocationStore
}

func (f Fallback) Revoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := f.Primary.Revoked(ctx, jti)
	if err == nil || !errors.Is(err, ErrUnknownToken) {
		return revoked, err
	}
	return f.Secondary.Revoked(ctx, jti)
}
