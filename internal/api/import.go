package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"

	"journal/internal/domain"
	"journal/internal/store"
)

const maxImportTrades = 1000

// ImportRequest is the request body for POST /api/v1/import.
type ImportRequest struct {
	Trades []TradeRequest `json:"trades"`
}

// ImportResult holds the result of a single trade import.
type ImportResult struct {
	TradeID string `json:"trade_id,omitempty"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"` // "inserted", "duplicate", "error"
	Error   string `json:"error,omitempty"`
}

// ImportResponse is the response body for POST /api/v1/import.
type ImportResponse struct {
	Total      int            `json:"total"`
	Inserted   int            `json:"inserted"`
	Duplicates int            `json:"duplicates"`
	Errors     int            `json:"errors"`
	Results    []ImportResult `json:"results"`
}

func (s *Server) handleImportTrades(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if len(req.Trades) == 0 {
		writeError(w, http.StatusBadRequest, "trades array is empty")
		return
	}

	if len(req.Trades) > maxImportTrades {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many trades: max %d per request", maxImportTrades))
		return
	}

	// Validate all trades up front before inserting any
	trades := make([]*domain.Trade, len(req.Trades))
	for i := range req.Trades {
		if err := req.Trades[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("trade[%d] (%s): %v", i, req.Trades[i].Symbol, err))
			return
		}
		trade, err := req.Trades[i].ToDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("trade[%d] (%s): %v", i, req.Trades[i].Symbol, err))
			return
		}
		trades[i] = trade
	}

	// Oldest first, so the journal's creation order follows the trading history
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].EntryDate.Before(trades[j].EntryDate)
	})

	ctx := r.Context()
	resp := ImportResponse{
		Total:   len(trades),
		Results: make([]ImportResult, 0, len(trades)),
	}

	for _, trade := range trades {
		result := ImportResult{TradeID: trade.ID, Symbol: trade.Symbol}

		err := s.store.CreateTrade(ctx, trade)
		switch {
		case err == nil:
			result.TradeID = trade.ID
			result.Status = "inserted"
			resp.Inserted++
		case errors.Is(err, store.ErrAlreadyExists):
			result.Status = "duplicate"
			resp.Duplicates++
		default:
			result.Status = "error"
			result.Error = err.Error()
			resp.Errors++
		}
		resp.Results = append(resp.Results, result)
	}

	log.Info().
		Int("total", resp.Total).
		Int("inserted", resp.Inserted).
		Int("duplicates", resp.Duplicates).
		Int("errors", resp.Errors).
		Msg("trade import finished")

	status := http.StatusOK
	if resp.Errors > 0 && resp.Inserted == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}
