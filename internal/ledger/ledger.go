// Package ledger implements the position ledger: merging a signed
// quantity/price delta into a user's holdings while keeping a running
// weighted-average cost basis.
//
// The merge is a pure function. It never mutates its input and always
// returns a freshly allocated slice, so callers can hold on to the previous
// state (e.g. for an optimistic retry) without aliasing surprises.
//
// Cost basis formula, applied to buys and sells alike:
//
//	totalValue    = h.Quantity*h.AverageCost + tx.Quantity*tx.Price
//	totalQuantity = h.Quantity + tx.Quantity
//	averageCost   = totalValue / totalQuantity
//
// A sell therefore contributes tx.Price to the remaining basis. Callers that
// want the basis of the remaining units unchanged must pass the current
// average cost as the sell price; passing 0 raises the recorded average.
//
// A transaction whose quantity would overflow int64, or whose resulting
// average cost is not a finite number, is rejected and leaves the holdings
// as they were.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nivesha/portfolio/internal/model"
)

var (
	// ErrDuplicateSymbol is returned by Validate when two holdings share a
	// case-insensitive symbol.
	ErrDuplicateSymbol = errors.New("ledger: duplicate symbol in holdings")

	// ErrNonPositiveQuantity is returned by Validate when a holding has a
	// quantity of zero or below.
	ErrNonPositiveQuantity = errors.New("ledger: holding quantity must be positive")

	// ErrQuantityOverflow is returned when a transaction would push a
	// holding's quantity past the int64 range.
	ErrQuantityOverflow = errors.New("ledger: quantity out of range")

	// ErrNonFiniteCost is returned when a merge would record an infinite or
	// NaN average cost.
	ErrNonFiniteCost = errors.New("ledger: average cost out of range")
)

// Outcome describes what a merge did to the touched holding.
type Outcome string

const (
	OutcomeOpened    Outcome = "opened"    // new holding appended
	OutcomeIncreased Outcome = "increased" // existing holding, quantity went up
	OutcomeReduced   Outcome = "reduced"   // existing holding, quantity went down but stays open
	OutcomeUnchanged Outcome = "unchanged" // existing holding, zero-quantity transaction
	OutcomeClosed    Outcome = "closed"    // existing holding removed
	OutcomeIgnored   Outcome = "ignored"   // sell against an unheld symbol
)

// NormalizeSymbol returns the canonical form used for symbol matching.
// Whitespace is significant: "AAPL " and "AAPL" are different symbols.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(symbol)
}

// SameSymbol reports whether two symbols refer to the same instrument.
func SameSymbol(a, b string) bool {
	return NormalizeSymbol(a) == NormalizeSymbol(b)
}

// Merge applies tx to holdings and returns the resulting holdings.
//
// Untouched holdings keep their relative order, a newly opened holding is
// appended at the end, and a closed holding leaves no gap. A rejected
// transaction returns an unchanged copy of holdings.
func Merge(holdings []model.Holding, tx model.Transaction) []model.Holding {
	result, _, _ := merge(holdings, tx)
	return result
}

// MergeWithOutcome is Merge plus a description of the change, used for
// metrics and event fan-out. It reports ErrQuantityOverflow or
// ErrNonFiniteCost instead of applying a transaction the holdings cannot
// represent.
func MergeWithOutcome(holdings []model.Holding, tx model.Transaction) ([]model.Holding, Outcome, error) {
	return merge(holdings, tx)
}

func merge(holdings []model.Holding, tx model.Transaction) ([]model.Holding, Outcome, error) {
	key := NormalizeSymbol(tx.Symbol)

	result := make([]model.Holding, 0, len(holdings)+1)
	outcome := OutcomeIgnored
	matched := false

	for _, h := range holdings {
		if matched || NormalizeSymbol(h.Symbol) != key {
			result = append(result, h)
			continue
		}
		matched = true

		totalQuantity, ok := addQuantity(h.Quantity, tx.Quantity)
		if !ok {
			return rejected(holdings, fmt.Errorf("%w: %s %d%+d", ErrQuantityOverflow, h.Symbol, h.Quantity, tx.Quantity))
		}
		totalValue := float64(h.Quantity)*h.AverageCost + float64(tx.Quantity)*tx.Price

		if totalQuantity <= 0 {
			// Residual value is discarded; short positions are not tracked.
			outcome = OutcomeClosed
			continue
		}

		averageCost := totalValue / float64(totalQuantity)
		if !finite(averageCost) {
			return rejected(holdings, fmt.Errorf("%w: %s", ErrNonFiniteCost, h.Symbol))
		}

		switch {
		case tx.Quantity > 0:
			outcome = OutcomeIncreased
		case tx.Quantity < 0:
			outcome = OutcomeReduced
		default:
			outcome = OutcomeUnchanged
		}
		result = append(result, model.Holding{
			Symbol:      h.Symbol,
			Quantity:    totalQuantity,
			AverageCost: averageCost,
		})
	}

	if !matched && tx.Quantity > 0 {
		if !finite(tx.Price) {
			return rejected(holdings, fmt.Errorf("%w: %s", ErrNonFiniteCost, tx.Symbol))
		}
		result = append(result, model.Holding{
			Symbol:      tx.Symbol,
			Quantity:    tx.Quantity,
			AverageCost: tx.Price,
		})
		outcome = OutcomeOpened
	}

	return result, outcome, nil
}

// addQuantity returns a+b and false when the sum overflows int64.
func addQuantity(a, b int64) (int64, bool) {
	sum := a + b
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
		return 0, false
	}
	return sum, true
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func rejected(holdings []model.Holding, err error) ([]model.Holding, Outcome, error) {
	result := make([]model.Holding, len(holdings))
	copy(result, holdings)
	return result, OutcomeIgnored, err
}

// Find returns the holding matching symbol, if any.
func Find(holdings []model.Holding, symbol string) (model.Holding, bool) {
	for _, h := range holdings {
		if SameSymbol(h.Symbol, symbol) {
			return h, true
		}
	}
	return model.Holding{}, false
}

// Validate checks that holdings carry at most one entry per
// case-insensitive symbol and that every quantity is positive.
func Validate(holdings []model.Holding) error {
	seen := make(map[string]struct{}, len(holdings))
	for _, h := range holdings {
		if h.Quantity <= 0 {
			return fmt.Errorf("%w: %s has %d", ErrNonPositiveQuantity, h.Symbol, h.Quantity)
		}
		key := NormalizeSymbol(h.Symbol)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, h.Symbol)
		}
		seen[key] = struct{}{}
	}
	return nil
}
