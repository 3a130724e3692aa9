package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nivesha/portfolio/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and then refresh the cache; reads
// check Redis first then fall back to the primary. Cache errors are logged
// and never returned to callers.
type CachedStore struct {
	primary Store
	rdb     redis.UniversalClient
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	data, err := s.rdb.Get(ctx, portfolioKey(userID)).Bytes()
	switch {
	case err == nil:
		var p model.Portfolio
		if json.Unmarshal(data, &p) == nil && p.ID != nil {
			if p.Holdings == nil {
				p.Holdings = []model.Holding{}
			}
			return &p, nil
		}
	case !errors.Is(err, redis.Nil):
		slog.Warn("portfolio cache read failed", "user", userID, "err", err)
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cachePortfolio(ctx, p)
	return p, nil
}

func (s *CachedStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	if err := s.primary.SavePortfolio(ctx, p); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// The cached copy is stale; the retry must see the primary.
			s.invalidate(ctx, p.UserID)
		}
		return err
	}
	s.cachePortfolio(ctx, p)
	return nil
}

// Ping verifies connectivity to both the cache and the primary.
func (s *CachedStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if pinger, ok := s.primary.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// --- Cache helpers ---

func (s *CachedStore) cachePortfolio(ctx context.Context, p *model.Portfolio) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, portfolioKey(p.UserID), data, s.ttl).Err(); err != nil {
		slog.Warn("portfolio cache write failed", "user", p.UserID, "err", err)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, userID string) {
	if err := s.rdb.Del(ctx, portfolioKey(userID)).Err(); err != nil {
		slog.Warn("portfolio cache invalidation failed", "user", userID, "err", err)
	}
}

func portfolioKey(userID string) string { return fmt.Sprintf("portfolio:%s", userID) }
