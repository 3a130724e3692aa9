// Package store defines the persistence interface for portfolios.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/nivesha/portfolio/internal/model"
)

var (
	// ErrNotFound is returned when no portfolio has been stored for a user.
	ErrNotFound = errors.New("store: portfolio not found")

	// ErrVersionConflict is returned by SavePortfolio when the stored
	// version no longer matches the version the caller loaded.
	ErrVersionConflict = errors.New("store: portfolio version conflict")
)

// Store is the persistence interface. One record per user holds the full
// holdings collection; symbols are stored as provided.
type Store interface {
	// GetPortfolio retrieves the portfolio for userID, or ErrNotFound.
	GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error)

	// SavePortfolio writes p if the stored version still equals p.Version
	// (0 for a portfolio that was never stored). On success p.ID, p.Version
	// and p.UpdatedAt reflect the stored record.
	SavePortfolio(ctx context.Context, p *model.Portfolio) error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}
