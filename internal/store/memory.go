package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nivesha/portfolio/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	portfolios map[string]*model.Portfolio
	now        func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*model.Portfolio),
		now:        time.Now,
	}
}

func (s *MemoryStore) GetPortfolio(_ context.Context, userID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	existing, ok := s.portfolios[p.UserID]
	if ok {
		current = existing.Version
	}
	if current != p.Version {
		return ErrVersionConflict
	}

	if ok {
		id := *existing.ID
		p.ID = &id
	} else {
		id := uuid.New().String()
		p.ID = &id
	}
	p.Version = current + 1
	now := s.now().UTC()
	p.UpdatedAt = &now

	// Store a copy to avoid external mutation.
	s.portfolios[p.UserID] = p.Clone()
	return nil
}

// Len returns the number of stored portfolios.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.portfolios)
}
