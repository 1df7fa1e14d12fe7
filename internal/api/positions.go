package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"journal/internal/domain"
	"journal/internal/marks"
	"journal/internal/position"
)

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(r.URL.Query().Get("status"))
	if status == "" {
		status = "all"
	}

	// Validate status
	var want domain.PositionStatus
	if status != "all" {
		want = domain.PositionStatus(strings.ToUpper(status))
		if !want.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status: must be open, partial, closed, or all")
			return
		}
	}

	ctx := r.Context()
	records, err := s.store.ListPositions(ctx)
	if err != nil {
		writeStoreError(w, r, err, "positions")
		return
	}

	prices := make(map[string]*float64)
	inputs := make([]position.Input, len(records))
	for i, rec := range records {
		price, seen := prices[rec.Meta.Symbol]
		if !seen {
			price = s.markPrice(ctx, rec.Meta.Symbol)
			prices[rec.Meta.Symbol] = price
		}
		inputs[i] = position.Input{
			Meta:         rec.Meta,
			Transactions: rec.Transactions,
			CurrentPrice: price,
		}
	}

	computed, err := position.ComputeAll(ctx, inputs)
	if err != nil {
		writeStoreError(w, r, err, "positions")
		return
	}

	positions := make([]*domain.Position, 0, len(computed))
	for _, p := range computed {
		if want == "" || p.Status == want {
			positions = append(positions, p)
		}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req CreatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, first, err := req.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pos, err := s.store.CreatePosition(r.Context(), meta, first)
	if err != nil {
		writeStoreError(w, r, err, "position")
		return
	}

	log.Info().
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Int64("shares", first.Shares).
		Float64("price", first.Price).
		Msg("position opened")
	writeJSON(w, http.StatusCreated, pos)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	price, err := parseCurrentPrice(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.GetPosition(r.Context(), chi.URLParam(r, "positionId"))
	if err != nil {
		writeStoreError(w, r, err, "position")
		return
	}
	if price == nil {
		price = s.markPrice(r.Context(), rec.Meta.Symbol)
	}

	pos, err := position.Compute(rec.Meta, rec.Transactions, priceOptions(price)...)
	if err != nil {
		writeStoreError(w, r, err, "position")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionId")
	if err := s.store.DeletePosition(r.Context(), id); err != nil {
		writeStoreError(w, r, err, "position")
		return
	}
	log.Info().Str("position_id", id).Msg("position deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "position deleted",
	})
}

func (s *Server) handleAppendTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txn, err := req.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	pos, err := s.store.AppendTransaction(ctx, chi.URLParam(r, "positionId"), txn)
	if err != nil {
		writeStoreError(w, r, err, "position")
		return
	}

	log.Info().
		Str("position_id", pos.ID).
		Str("type", string(txn.Kind)).
		Int64("shares", txn.Shares).
		Float64("price", txn.Price).
		Str("status", string(pos.Status)).
		Msg("transaction appended")

	if price := s.markPrice(ctx, pos.Symbol); price != nil {
		if marked, err := position.Compute(pos.PositionMeta, pos.Transactions, position.WithCurrentPrice(*price)); err == nil {
			pos = marked
		}
	}
	writeJSON(w, http.StatusCreated, pos)
}

func (s *Server) handlePositionMetrics(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetPosition(r.Context(), chi.URLParam(r, "positionId"))
	if err != nil {
		writeStoreError(w, r, err, "position")
		return
	}
	pos, err := position.Compute(rec.Meta, rec.Transactions)
	if err != nil {
		writeStoreError(w, r, err, "position")
		return
	}
	writeJSON(w, http.StatusOK, position.Metrics(pos))
}

func (s *Server) handleGetMark(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	mark, ok, err := s.marks.Get(r.Context(), symbol)
	if err != nil {
		writeStoreError(w, r, err, "mark")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "mark not found")
		return
	}
	writeJSON(w, http.StatusOK, mark)
}

func (s *Server) handleSetMark(w http.ResponseWriter, r *http.Request) {
	var req MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("price must be positive, got %v", req.Price))
		return
	}

	mark := marks.Mark{
		Symbol: marks.NormalizeSymbol(chi.URLParam(r, "symbol")),
		Price:  req.Price,
		At:     time.Now().UTC(),
	}
	if req.At != "" {
		at, err := parseDate("at", req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mark.At = at
	}

	if err := s.marks.Set(r.Context(), mark); err != nil {
		writeStoreError(w, r, err, "mark")
		return
	}
	writeJSON(w, http.StatusOK, mark)
}
