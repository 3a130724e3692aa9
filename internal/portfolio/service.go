// Package portfolio provides the portfolio service: reading a user's
// holdings and applying buy/sell transactions through the position ledger,
// plus the HTTP handlers and WebSocket feed built on top of it.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nivesha/portfolio/internal/ledger"
	"github.com/nivesha/portfolio/internal/metrics"
	"github.com/nivesha/portfolio/internal/model"
	"github.com/nivesha/portfolio/internal/store"
)

// DefaultMaxApplyRetries bounds optimistic retries of one transaction.
const DefaultMaxApplyRetries = 5

// ErrTooManyConflicts is returned when every apply attempt lost the
// optimistic version check to another writer.
var ErrTooManyConflicts = errors.New("portfolio: too many concurrent updates")

// ErrInvalidTransaction is returned by Apply when the transaction cannot be
// represented in the user's holdings (quantity or cost out of range).
var ErrInvalidTransaction = errors.New("portfolio: transaction out of range")

// Service applies transactions and serves portfolio views.
//
// Applies for the same user are serialized twice over: an in-process
// per-user lock orders requests reaching this instance, and the store's
// version check catches writers on other instances, in which case the whole
// load-merge-save is retried. Different users never share a lock.
type Service struct {
	store      store.Store
	hub        *WSHub // optional WebSocket hub for holding events
	locks      *keyedMutex
	maxRetries int
}

// Option configures a Service.
type Option func(*Service)

// WithMaxRetries sets how many times a conflicting apply is retried.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewService creates a new portfolio service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *WSHub, opts ...Option) *Service {
	s := &Service{
		store:      st,
		hub:        hub,
		locks:      newKeyedMutex(),
		maxRetries: DefaultMaxApplyRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored portfolio for userID, or an empty unpersisted one.
// A missing portfolio is not an error.
func (s *Service) Get(ctx context.Context, userID string) (*model.Portfolio, error) {
	p, err := s.store.GetPortfolio(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.NewEmptyPortfolio(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	if p.Holdings == nil {
		p.Holdings = []model.Holding{}
	}
	return p, nil
}

// Summary returns just the holdings of userID's portfolio.
func (s *Service) Summary(ctx context.Context, userID string) ([]model.Holding, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Holdings, nil
}

// Totals returns the invested capital across all holdings.
func (s *Service) Totals(ctx context.Context, userID string) (model.Totals, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return model.Totals{}, err
	}

	totals := model.Totals{
		UserID:    userID,
		Positions: len(p.Holdings),
		TotalCost: decimal.Zero,
	}
	for _, h := range p.Holdings {
		if math.IsInf(h.AverageCost, 0) || math.IsNaN(h.AverageCost) {
			return model.Totals{}, fmt.Errorf("holding %s of %s has average cost %v", h.Symbol, userID, h.AverageCost)
		}
		totals.TotalQuantity += h.Quantity
		cost := decimal.NewFromInt(h.Quantity).Mul(decimal.NewFromFloat(h.AverageCost))
		totals.TotalCost = totals.TotalCost.Add(cost)
	}
	totals.TotalCost = totals.TotalCost.Round(2)
	return totals, nil
}

// Apply merges tx into userID's holdings and persists the result. The
// portfolio is materialized on the first call for a user, even if the
// transaction itself is ignored.
func (s *Service) Apply(ctx context.Context, userID string, tx model.Transaction) (*model.Portfolio, error) {
	start := time.Now()
	defer func() {
		metrics.ApplyLatency.Observe(time.Since(start).Seconds())
	}()

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		current, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		holdings, outcome, err := ledger.MergeWithOutcome(current.Holdings, tx)
		if err != nil {
			slog.Warn("transaction rejected",
				"user", userID,
				"symbol", tx.Symbol,
				"qty", tx.Quantity,
				"price", tx.Price,
				"err", err,
			)
			metrics.TransactionsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
		}
		if err := ledger.Validate(holdings); err != nil {
			// Only reachable when the stored record was already inconsistent.
			slog.Error("holdings invariant violated", "user", userID, "err", err)
		}

		next := current.Clone()
		next.Holdings = holdings

		err = s.store.SavePortfolio(ctx, next)
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
			slog.Debug("portfolio version conflict, retrying",
				"user", userID,
				"attempt", attempt,
				"version", current.Version,
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save portfolio: %w", err)
		}

		metrics.TransactionsTotal.WithLabelValues(string(outcome)).Inc()
		slog.Info("transaction applied",
			"user", userID,
			"symbol", tx.Symbol,
			"qty", tx.Quantity,
			"price", tx.Price,
			"outcome", string(outcome),
			"version", next.Version,
			"created", !current.Persisted(),
		)
		s.publish(next, tx, outcome)
		return next, nil
	}

	return nil, fmt.Errorf("%w: user %s after %d attempts", ErrTooManyConflicts, userID, s.maxRetries)
}

func (s *Service) publish(p *model.Portfolio, tx model.Transaction, outcome ledger.Outcome) {
	if s.hub == nil || outcome == ledger.OutcomeIgnored {
		return
	}

	event := HoldingEvent{
		Type:    "holding_" + string(outcome),
		UserID:  p.UserID,
		Symbol:  tx.Symbol,
		Version: p.Version,
	}
	if h, ok := ledger.Find(p.Holdings, tx.Symbol); ok {
		event.Symbol = h.Symbol
		event.Quantity = h.Quantity
		event.AverageCost = h.AverageCost
	}
	s.hub.Publish(event)
}
