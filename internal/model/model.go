// Package model defines the core domain types shared across the portfolio service.
//
// Average cost is kept as float64: the merge formula must match the double
// arithmetic that existing clients were built against. Aggregated money
// figures (Totals) are computed with shopspring/decimal.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a user's current position in one symbol.
// Symbol matching is case-insensitive; the symbol is stored as first provided.
type Holding struct {
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`    // always > 0 once persisted
	AverageCost float64 `json:"averageCost"` // cost per unit of the held quantity
}

// Portfolio is the full holding set of one user. It is materialized on the
// first successful transaction; before that reads synthesize an empty one
// with a nil ID.
type Portfolio struct {
	ID        *string    `json:"id"`
	UserID    string     `json:"userId"`
	Holdings  []Holding  `json:"holdings"`
	Version   int64      `json:"version"` // optimistic concurrency token, 0 = never stored
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// NewEmptyPortfolio returns the unpersisted view served for users that have
// never recorded a transaction.
func NewEmptyPortfolio(userID string) *Portfolio {
	return &Portfolio{
		UserID:   userID,
		Holdings: []Holding{},
	}
}

// Clone returns a deep copy so callers can mutate holdings without touching
// the original.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	if p.ID != nil {
		id := *p.ID
		c.ID = &id
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	c.Holdings = make([]Holding, len(p.Holdings))
	copy(c.Holdings, p.Holdings)
	return &c
}

// Persisted reports whether the portfolio has been stored at least once.
func (p *Portfolio) Persisted() bool {
	return p.ID != nil
}

// Transaction is an incoming buy (positive quantity) or sell (negative
// quantity) applied to a holding.
type Transaction struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"averageCost"` // wire name kept from the holding shape
}

// Totals summarizes a portfolio's invested capital.
type Totals struct {
	UserID        string          `json:"userId"`
	Positions     int             `json:"positions"`
	TotalQuantity int64           `json:"totalQuantity"`
	TotalCost     decimal.Decimal `json:"totalCost"` // Σ quantity × averageCost, 2dp
}
