package domain

import (
	"fmt"
	"time"
)

// TradeType represents the instrument class of a trade.
type TradeType string

const (
	TradeTypeStock       TradeType = "Aktie"
	TradeTypeCertificate TradeType = "Zertifikat"
	TradeTypeWarrant     TradeType = "Optionsschein"
	TradeTypeCrypto      TradeType = "Krypto"
)

// Valid reports whether t is a known trade type.
func (t TradeType) Valid() bool {
	switch t {
	case TradeTypeStock, TradeTypeCertificate, TradeTypeWarrant, TradeTypeCrypto:
		return true
	}
	return false
}

// Side represents the direction of a trade or position.
type Side string

const (
	SideLong  Side = "Long"
	SideShort Side = "Short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	switch s {
	case SideLong, SideShort:
		return true
	}
	return false
}

// Multiplier returns +1 for long and -1 for short positions.
func (s Side) Multiplier() (int64, error) {
	switch s {
	case SideLong:
		return 1, nil
	case SideShort:
		return -1, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// Broker identifies where a trade was executed.
type Broker string

const (
	BrokerTradeRepublic      Broker = "Trade Republic"
	BrokerScalableCapital    Broker = "Scalable Capital"
	BrokerInteractiveBrokers Broker = "Interactive Brokers"
	BrokerDegiro             Broker = "DEGIRO"
	BrokerComdirect          Broker = "comdirect"
	BrokerING                Broker = "ING"
	BrokerConsorsbank        Broker = "Consorsbank"
	BrokerSmartbroker        Broker = "Smartbroker"
	BrokerFlatex             Broker = "flatex"
	BrokerEToro              Broker = "eToro"
	BrokerBinance            Broker = "Binance"
	BrokerKraken             Broker = "Kraken"
	BrokerCoinbase           Broker = "Coinbase"
	BrokerOther              Broker = "Sonstige"
)

// Valid reports whether b is a known broker. The empty broker is valid
// because the field is optional.
func (b Broker) Valid() bool {
	switch b {
	case "",
		BrokerTradeRepublic, BrokerScalableCapital, BrokerInteractiveBrokers,
		BrokerDegiro, BrokerComdirect, BrokerING, BrokerConsorsbank,
		BrokerSmartbroker, BrokerFlatex, BrokerEToro, BrokerBinance,
		BrokerKraken, BrokerCoinbase, BrokerOther:
		return true
	}
	return false
}

// TradeStatus is the user-facing status of a flat trade record.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// Valid reports whether s is a known trade status.
func (s TradeStatus) Valid() bool {
	switch s {
	case TradeStatusOpen, TradeStatusClosed:
		return true
	}
	return false
}

// TransactionKind distinguishes opening fills from closing fills.
type TransactionKind string

const (
	TransactionEntry TransactionKind = "ENTRY"
	TransactionExit  TransactionKind = "EXIT"
)

// Valid reports whether k is a known transaction kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionEntry, TransactionExit:
		return true
	}
	return false
}

// PositionStatus represents how much of a position has been closed.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "OPEN"
	PositionStatusPartial PositionStatus = "PARTIAL"
	PositionStatusClosed  PositionStatus = "CLOSED"
)

// Valid reports whether s is a known position status.
func (s PositionStatus) Valid() bool {
	switch s {
	case PositionStatusOpen, PositionStatusPartial, PositionStatusClosed:
		return true
	}
	return false
}

// Trade is a flat journal record: entry fields plus optional exit fields.
type Trade struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Type        TradeType   `json:"type"`
	Status      TradeStatus `json:"status"`
	Shares      int64       `json:"shares"`
	Side        Side        `json:"side"`
	Broker      Broker      `json:"broker,omitempty"`
	EntryDate   time.Time   `json:"entryDate"`
	EntryPrice  float64     `json:"entryPrice"`
	EntryShares *int64      `json:"entryShares,omitempty"`
	ExitDate    *time.Time  `json:"exitDate,omitempty"`
	ExitPrice   *float64    `json:"exitPrice,omitempty"`
	ExitShares  *int64      `json:"exitShares,omitempty"`
	PnL         *float64    `json:"pnl,omitempty"`
	PnLPercent  *float64    `json:"pnlPercent,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// OpeningShares returns the number of shares bought or sold to open the trade.
func (t *Trade) OpeningShares() int64 {
	if t.EntryShares != nil {
		return *t.EntryShares
	}
	return t.Shares
}

// ClosingShares returns the number of shares closed by the exit. Without an
// explicit exit quantity the whole entry is treated as closed.
func (t *Trade) ClosingShares() int64 {
	if t.ExitShares != nil {
		return *t.ExitShares
	}
	return t.OpeningShares()
}

// HasExit reports whether the trade carries a usable exit fill.
func (t *Trade) HasExit() bool {
	return t.ExitPrice != nil && t.ExitDate != nil && t.ClosingShares() > 0
}

// Transaction is a single entry or exit fill belonging to a position.
type Transaction struct {
	ID         string          `json:"id"`
	PositionID string          `json:"positionId"`
	Kind       TransactionKind `json:"type"`
	Timestamp  time.Time       `json:"date"`
	Shares     int64           `json:"shares"`
	Price      float64         `json:"price"`
	Value      float64         `json:"value"`

	// Exit only
	PnL        *float64 `json:"pnl,omitempty"`
	PnLPercent *float64 `json:"pnlPercent,omitempty"`

	// Position state after this transaction
	PositionAvgPrice    float64 `json:"positionAvgPrice"`
	PositionTotalShares int64   `json:"positionTotalShares"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PositionMeta holds the identity of a position, everything that is not
// derived from its transactions.
type PositionMeta struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Type      TradeType `json:"type"`
	Side      Side      `json:"side"`
	Broker    Broker    `json:"broker,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Position is the aggregate over all transactions of one position.
type Position struct {
	PositionMeta

	Status PositionStatus `json:"status"`

	TotalEntryShares int64 `json:"totalEntryShares"`
	TotalExitShares  int64 `json:"totalExitShares"`
	RemainingShares  int64 `json:"remainingShares"`

	AvgEntryPrice float64  `json:"avgEntryPrice"`
	AvgExitPrice  *float64 `json:"avgExitPrice,omitempty"`

	TotalEntryValue float64  `json:"totalEntryValue"`
	TotalExitValue  *float64 `json:"totalExitValue,omitempty"`

	RealizedPnL     float64 `json:"realizedPnL"`
	UnrealizedPnL   float64 `json:"unrealizedPnL"`
	TotalPnL        float64 `json:"totalPnL"`
	TotalPnLPercent float64 `json:"totalPnLPercent"`

	Transactions []Transaction `json:"transactions"`

	FirstEntryDate time.Time  `json:"firstEntryDate"`
	LastExitDate   *time.Time `json:"lastExitDate,omitempty"`
}

// PositionMetrics summarizes the fill structure of a position.
type PositionMetrics struct {
	EntryCount      int     `json:"entryCount"`
	ExitCount       int     `json:"exitCount"`
	AvgEntryPrice   float64 `json:"avgEntryPrice"`
	AvgExitPrice    float64 `json:"avgExitPrice"`
	RemainingShares int64   `json:"remainingShares"`
	ClosedPercent   float64 `json:"closedPercent"`
	OpenPercent     float64 `json:"openPercent"`
}

// TradeStats is the rollup over a collection of trades.
type TradeStats struct {
	TotalTrades  int     `json:"totalTrades"`
	OpenTrades   int     `json:"openTrades"`
	ClosedTrades int     `json:"closedTrades"`
	TotalPnL     float64 `json:"totalPnL"`
	WinRate      float64 `json:"winRate"`
	AvgWin       float64 `json:"avgWin"`
	AvgLoss      float64 `json:"avgLoss"`
	LargestWin   float64 `json:"largestWin"`
	LargestLoss  float64 `json:"largestLoss"`
}
