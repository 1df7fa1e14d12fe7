package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"journal/internal/domain"
	"journal/internal/position"
	"journal/internal/stats"
	"journal/internal/store"
)

const maxTradePageSize = 200

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Check store
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "store unreachable",
		})
		return
	}

	// Check mark source, when it has a backend to reach
	if p, ok := s.marks.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "error",
				"error":  "mark store unreachable",
			})
			return
		}
	}

	// Check NATS
	if s.nc != nil && !s.nc.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "NATS disconnected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTrades returns matching trades as a JSON array. With limit set,
// at most limit trades are returned and X-Next-Cursor carries the cursor for
// the next page when there is one.
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TradeFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Cursor: q.Get("cursor"),
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTradePageSize {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q (must be 1-%d)", raw, maxTradePageSize))
			return
		}
		limit = n
		// one extra to check if there's a next page
		filter.Limit = n + 1
	}

	if filter.Status != "" && !domain.TradeStatus(filter.Status).Valid() {
		writeError(w, http.StatusBadRequest, "invalid status: must be open or closed")
		return
	}
	if filter.Type != "" && !domain.TradeType(filter.Type).Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid type: %q", filter.Type))
		return
	}

	trades, err := s.store.ListTrades(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err, "trades")
		return
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
		w.Header().Set("X-Next-Cursor", store.TradeCursor(&trades[limit-1]))
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trade, err := req.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateTrade(r.Context(), trade); err != nil {
		writeStoreError(w, r, err, "trade")
		return
	}

	log.Info().
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Int64("shares", trade.Shares).
		Msg("trade created")
	writeJSON(w, http.StatusCreated, trade)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := s.store.GetTrade(r.Context(), chi.URLParam(r, "tradeId"))
	if err != nil {
		writeStoreError(w, r, err, "trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (s *Server) handleUpdateTrade(w http.ResponseWriter, r *http.Request) {
	var req UpdateTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trade, err := s.store.UpdateTrade(r.Context(), chi.URLParam(r, "tradeId"), patch)
	if err != nil {
		writeStoreError(w, r, err, "trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tradeId")
	if err := s.store.DeleteTrade(r.Context(), id); err != nil {
		writeStoreError(w, r, err, "trade")
		return
	}
	log.Info().Str("trade_id", id).Msg("trade deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "trade deleted",
	})
}

func (s *Server) handleTradeStats(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.ListTrades(r.Context(), store.TradeFilter{})
	if err != nil {
		writeStoreError(w, r, err, "trade stats")
		return
	}
	writeJSON(w, http.StatusOK, stats.Calculate(trades))
}

// handleTradePosition returns the position view of a flat trade record.
func (s *Server) handleTradePosition(w http.ResponseWriter, r *http.Request) {
	price, err := parseCurrentPrice(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trade, err := s.store.GetTrade(r.Context(), chi.URLParam(r, "tradeId"))
	if err != nil {
		writeStoreError(w, r, err, "trade")
		return
	}
	if price == nil {
		price = s.markPrice(r.Context(), trade.Symbol)
	}

	pos, err := position.ForTrade(trade, priceOptions(price)...)
	if err != nil {
		writeStoreError(w, r, err, "trade position")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// parseCurrentPrice reads the optional current_price query parameter.
func parseCurrentPrice(r *http.Request) (*float64, error) {
	raw := r.URL.Query().Get("current_price")
	if raw == "" {
		return nil, nil
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("invalid current_price: %q (must be a positive finite number)", raw)
	}
	return &price, nil
}

// markPrice returns the recorded mark for symbol, or nil when none is
// available. Mark lookups never fail a request.
func (s *Server) markPrice(ctx context.Context, symbol string) *float64 {
	if s.marks == nil {
		return nil
	}
	mark, ok, err := s.marks.Get(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("mark lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	return &mark.Price
}

func priceOptions(price *float64) []position.Option {
	if price == nil {
		return nil
	}
	return []position.Option{position.WithCurrentPrice(*price)}
}
