package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nivesha/portfolio/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Holdings are kept as a JSONB array on the user's row; the version column
// provides optimistic concurrency across service instances.
type PostgresStore struct {
	pool DB
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool DB) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	var (
		p         model.Portfolio
		id        string
		holdings  []byte
		updatedAt time.Time
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id::TEXT, user_id, holdings, version, updated_at
		 FROM portfolios WHERE user_id = $1`, userID).
		Scan(&id, &p.UserID, &holdings, &p.Version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", userID, err)
	}

	if err := json.Unmarshal(holdings, &p.Holdings); err != nil {
		return nil, fmt.Errorf("decode holdings for %s: %w", userID, err)
	}
	if p.Holdings == nil {
		p.Holdings = []model.Holding{}
	}
	p.ID = &id
	p.UpdatedAt = &updatedAt
	return &p, nil
}

func (s *PostgresStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	holdings := p.Holdings
	if holdings == nil {
		holdings = []model.Holding{}
	}
	data, err := json.Marshal(holdings)
	if err != nil {
		return fmt.Errorf("encode holdings for %s: %w", p.UserID, err)
	}

	var row pgx.Row
	if p.Version == 0 {
		row = s.pool.QueryRow(ctx,
			`INSERT INTO portfolios (id, user_id, holdings, version, updated_at)
			 VALUES ($1::UUID, $2, $3::JSONB, 1, NOW())
			 ON CONFLICT (user_id) DO NOTHING
			 RETURNING id::TEXT, version, updated_at`,
			uuid.New().String(), p.UserID, string(data),
		)
	} else {
		row = s.pool.QueryRow(ctx,
			`UPDATE portfolios
			 SET holdings = $2::JSONB, version = version + 1, updated_at = NOW()
			 WHERE user_id = $1 AND version = $3
			 RETURNING id::TEXT, version, updated_at`,
			p.UserID, string(data), p.Version,
		)
	}

	var (
		id        string
		version   int64
		updatedAt time.Time
	)
	err = row.Scan(&id, &version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the insert lost a race or the row moved past our version.
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("save portfolio %s: %w", p.UserID, err)
	}
	p.ID = &id
	p.Version = version
	p.UpdatedAt = &updatedAt
	return nil
}

// Ping verifies connectivity; used by the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
