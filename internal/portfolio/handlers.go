package portfolio

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nivesha/portfolio/internal/auth"
	"github.com/nivesha/portfolio/internal/model"
)

// --- HTTP Handlers ---
//
// Every handler expects auth.Middleware in front of it; the verified user ID
// is read from the request context once and passed explicitly to the service.

// GetPortfolio handles GET /api/portfolio
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := s.Get(r.Context(), userID)
	if err != nil {
		slog.Error("load portfolio failed", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load portfolio")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// AddHolding handles POST /api/portfolio/add
// The body has the holding shape; averageCost carries the transaction price.
func (s *Service) AddHolding(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var tx model.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	p, err := s.Apply(r.Context(), userID, tx)
	if errors.Is(err, ErrInvalidTransaction) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_transaction", "quantity or cost out of range")
		return
	}
	if err != nil {
		slog.Error("apply transaction failed",
			"user", userID,
			"symbol", tx.Symbol,
			"qty", tx.Quantity,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update portfolio")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetSummary handles GET /api/portfolio/summary
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	holdings, err := s.Summary(r.Context(), userID)
	if err != nil {
		slog.Error("load summary failed", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load portfolio")
		return
	}

	writeJSON(w, http.StatusOK, holdings)
}

// GetTotals handles GET /api/portfolio/totals
func (s *Service) GetTotals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	totals, err := s.Totals(r.Context(), userID)
	if err != nil {
		slog.Error("load totals failed", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load portfolio")
		return
	}

	writeJSON(w, http.StatusOK, totals)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
	}
	return userID, ok
}

// writeJSON encodes data before touching the response so an unencodable
// value turns into a 500 rather than an empty 200.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("encode response failed", "err", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal_error","message":"failed to encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
