package api

import (
	"fmt"
	"strings"
	"time"

	"journal/internal/domain"
	"journal/internal/store"
)

// Dates are accepted either as RFC 3339 timestamps or as plain calendar days.
const dayLayout = "2006-01-02"

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing required field: %s", field)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dayLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q (must be RFC 3339 or YYYY-MM-DD)", field, value)
	}
	return t, nil
}

// TradeRequest is the request body for creating or importing a trade.
type TradeRequest struct {
	ID          string   `json:"id,omitempty"`
	Symbol      string   `json:"symbol"`
	Type        string   `json:"type"`
	Status      string   `json:"status,omitempty"`
	Shares      int64    `json:"shares"`
	Side        string   `json:"side"`
	Broker      string   `json:"broker,omitempty"`
	EntryDate   string   `json:"entryDate"`
	EntryPrice  float64  `json:"entryPrice"`
	EntryShares *int64   `json:"entryShares,omitempty"`
	ExitDate    string   `json:"exitDate,omitempty"`
	ExitPrice   *float64 `json:"exitPrice,omitempty"`
	ExitShares  *int64   `json:"exitShares,omitempty"`
}

// Validate checks required fields and enum values.
func (req *TradeRequest) Validate() error {
	if strings.TrimSpace(req.Symbol) == "" {
		return fmt.Errorf("missing required field: symbol")
	}
	if !domain.TradeType(req.Type).Valid() {
		return fmt.Errorf("invalid type: %q", req.Type)
	}
	if req.Status != "" && !domain.TradeStatus(req.Status).Valid() {
		return fmt.Errorf("invalid status: %q (must be open or closed)", req.Status)
	}
	if req.Shares <= 0 {
		return fmt.Errorf("shares must be positive, got %d", req.Shares)
	}
	if !domain.Side(req.Side).Valid() {
		return fmt.Errorf("invalid side: %q (must be Long or Short)", req.Side)
	}
	if !domain.Broker(req.Broker).Valid() {
		return fmt.Errorf("invalid broker: %q", req.Broker)
	}
	if req.EntryPrice <= 0 {
		return fmt.Errorf("entryPrice must be positive, got %v", req.EntryPrice)
	}
	if req.EntryShares != nil && *req.EntryShares <= 0 {
		return fmt.Errorf("entryShares must be positive, got %d", *req.EntryShares)
	}
	if _, err := parseDate("entryDate", req.EntryDate); err != nil {
		return err
	}

	hasExitDate := req.ExitDate != ""
	if hasExitDate != (req.ExitPrice != nil) {
		return fmt.Errorf("exitDate and exitPrice must be given together")
	}
	if req.ExitPrice != nil && *req.ExitPrice <= 0 {
		return fmt.Errorf("exitPrice must be positive, got %v", *req.ExitPrice)
	}
	if req.ExitShares != nil && *req.ExitShares < 0 {
		return fmt.Errorf("exitShares must not be negative, got %d", *req.ExitShares)
	}
	if hasExitDate {
		if _, err := parseDate("exitDate", req.ExitDate); err != nil {
			return err
		}
	}
	return nil
}

// ToDomain converts a validated request to a domain trade.
func (req *TradeRequest) ToDomain() (*domain.Trade, error) {
	entryDate, err := parseDate("entryDate", req.EntryDate)
	if err != nil {
		return nil, err
	}

	trade := &domain.Trade{
		ID:          req.ID,
		Symbol:      strings.TrimSpace(req.Symbol),
		Type:        domain.TradeType(req.Type),
		Status:      domain.TradeStatus(req.Status),
		Shares:      req.Shares,
		Side:        domain.Side(req.Side),
		Broker:      domain.Broker(req.Broker),
		EntryDate:   entryDate,
		EntryPrice:  req.EntryPrice,
		EntryShares: req.EntryShares,
		ExitPrice:   req.ExitPrice,
		ExitShares:  req.ExitShares,
	}
	if req.ExitDate != "" {
		exitDate, err := parseDate("exitDate", req.ExitDate)
		if err != nil {
			return nil, err
		}
		trade.ExitDate = &exitDate
	}
	return trade, nil
}

// UpdateTradeRequest is the request body for PATCH /api/v1/trades/{id}.
// Absent fields are left unchanged.
type UpdateTradeRequest struct {
	Symbol      *string  `json:"symbol,omitempty"`
	Type        *string  `json:"type,omitempty"`
	Status      *string  `json:"status,omitempty"`
	Shares      *int64   `json:"shares,omitempty"`
	Side        *string  `json:"side,omitempty"`
	Broker      *string  `json:"broker,omitempty"`
	EntryDate   *string  `json:"entryDate,omitempty"`
	EntryPrice  *float64 `json:"entryPrice,omitempty"`
	EntryShares *int64   `json:"entryShares,omitempty"`
	ExitDate    *string  `json:"exitDate,omitempty"`
	ExitPrice   *float64 `json:"exitPrice,omitempty"`
	ExitShares  *int64   `json:"exitShares,omitempty"`
}

// ToPatch validates the set fields and converts them to a store patch.
func (req *UpdateTradeRequest) ToPatch() (store.TradePatch, error) {
	var p store.TradePatch

	if req.Symbol != nil {
		symbol := strings.TrimSpace(*req.Symbol)
		if symbol == "" {
			return p, fmt.Errorf("symbol must not be empty")
		}
		p.Symbol = &symbol
	}
	if req.Type != nil {
		v := domain.TradeType(*req.Type)
		if !v.Valid() {
			return p, fmt.Errorf("invalid type: %q", *req.Type)
		}
		p.Type = &v
	}
	if req.Status != nil {
		v := domain.TradeStatus(*req.Status)
		if !v.Valid() {
			return p, fmt.Errorf("invalid status: %q (must be open or closed)", *req.Status)
		}
		p.Status = &v
	}
	if req.Shares != nil {
		if *req.Shares <= 0 {
			return p, fmt.Errorf("shares must be positive, got %d", *req.Shares)
		}
		p.Shares = req.Shares
	}
	if req.Side != nil {
		v := domain.Side(*req.Side)
		if !v.Valid() {
			return p, fmt.Errorf("invalid side: %q (must be Long or Short)", *req.Side)
		}
		p.Side = &v
	}
	if req.Broker != nil {
		v := domain.Broker(*req.Broker)
		if !v.Valid() {
			return p, fmt.Errorf("invalid broker: %q", *req.Broker)
		}
		p.Broker = &v
	}
	if req.EntryDate != nil {
		t, err := parseDate("entryDate", *req.EntryDate)
		if err != nil {
			return p, err
		}
		p.EntryDate = &t
	}
	if req.EntryPrice != nil {
		if *req.EntryPrice <= 0 {
			return p, fmt.Errorf("entryPrice must be positive, got %v", *req.EntryPrice)
		}
		p.EntryPrice = req.EntryPrice
	}
	if req.EntryShares != nil {
		if *req.EntryShares <= 0 {
			return p, fmt.Errorf("entryShares must be positive, got %d", *req.EntryShares)
		}
		p.EntryShares = req.EntryShares
	}
	if req.ExitDate != nil {
		t, err := parseDate("exitDate", *req.ExitDate)
		if err != nil {
			return p, err
		}
		p.ExitDate = &t
	}
	if req.ExitPrice != nil {
		if *req.ExitPrice <= 0 {
			return p, fmt.Errorf("exitPrice must be positive, got %v", *req.ExitPrice)
		}
		p.ExitPrice = req.ExitPrice
	}
	if req.ExitShares != nil {
		if *req.ExitShares < 0 {
			return p, fmt.Errorf("exitShares must not be negative, got %d", *req.ExitShares)
		}
		p.ExitShares = req.ExitShares
	}
	return p, nil
}

// CreatePositionRequest is the request body for POST /api/v1/positions. It
// opens the position with its first entry fill.
type CreatePositionRequest struct {
	ID     string  `json:"id,omitempty"`
	Symbol string  `json:"symbol"`
	Type   string  `json:"type"`
	Side   string  `json:"side"`
	Broker string  `json:"broker,omitempty"`
	Date   string  `json:"date"`
	Shares int64   `json:"shares"`
	Price  float64 `json:"price"`
	Notes  string  `json:"notes,omitempty"`
}

// Validate checks required fields and enum values.
func (req *CreatePositionRequest) Validate() error {
	if strings.TrimSpace(req.Symbol) == "" {
		return fmt.Errorf("missing required field: symbol")
	}
	if !domain.TradeType(req.Type).Valid() {
		return fmt.Errorf("invalid type: %q", req.Type)
	}
	if !domain.Side(req.Side).Valid() {
		return fmt.Errorf("invalid side: %q (must be Long or Short)", req.Side)
	}
	if !domain.Broker(req.Broker).Valid() {
		return fmt.Errorf("invalid broker: %q", req.Broker)
	}
	return validateFill(req.Date, req.Shares, req.Price)
}

// ToDomain converts a validated request to position metadata and its
// opening entry.
func (req *CreatePositionRequest) ToDomain() (domain.PositionMeta, domain.Transaction, error) {
	date, err := parseDate("date", req.Date)
	if err != nil {
		return domain.PositionMeta{}, domain.Transaction{}, err
	}
	meta := domain.PositionMeta{
		ID:     req.ID,
		Symbol: strings.TrimSpace(req.Symbol),
		Type:   domain.TradeType(req.Type),
		Side:   domain.Side(req.Side),
		Broker: domain.Broker(req.Broker),
	}
	first := domain.Transaction{
		Kind:      domain.TransactionEntry,
		Timestamp: date,
		Shares:    req.Shares,
		Price:     req.Price,
		Notes:     req.Notes,
	}
	return meta, first, nil
}

// TransactionRequest is the request body for appending a fill to a position.
type TransactionRequest struct {
	ID     string  `json:"id,omitempty"`
	Type   string  `json:"type"`
	Date   string  `json:"date"`
	Shares int64   `json:"shares"`
	Price  float64 `json:"price"`
	Notes  string  `json:"notes,omitempty"`
}

// Validate checks required fields and the transaction kind.
func (req *TransactionRequest) Validate() error {
	if !domain.TransactionKind(req.Type).Valid() {
		return fmt.Errorf("invalid type: %q (must be ENTRY or EXIT)", req.Type)
	}
	return validateFill(req.Date, req.Shares, req.Price)
}

// ToDomain converts a validated request to a domain transaction.
func (req *TransactionRequest) ToDomain() (domain.Transaction, error) {
	date, err := parseDate("date", req.Date)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		ID:        req.ID,
		Kind:      domain.TransactionKind(req.Type),
		Timestamp: date,
		Shares:    req.Shares,
		Price:     req.Price,
		Notes:     req.Notes,
	}, nil
}

func validateFill(date string, shares int64, price float64) error {
	if shares <= 0 {
		return fmt.Errorf("shares must be positive, got %d", shares)
	}
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	_, err := parseDate("date", date)
	return err
}

// MarkRequest is the request body for PUT /api/v1/marks/{symbol}.
type MarkRequest struct {
	Price float64 `json:"price"`
	At    string  `json:"at,omitempty"`
}
