// Package marks stores the latest known market price per symbol. A mark is
// only used when one has been explicitly recorded; nothing here fetches
// market data.
package marks

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Mark is a recorded market price.
type Mark struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// NormalizeSymbol returns the form symbols are stored under, so lookups
// ignore case and surrounding whitespace.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Source looks up and records marks. Symbols are matched case-insensitively.
type Source interface {
	Get(ctx context.Context, symbol string) (Mark, bool, error)
	Set(ctx context.Context, mark Mark) error
}

// MemorySource keeps marks in process memory.
type MemorySource struct {
	mu    sync.RWMutex
	marks map[string]Mark
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{marks: make(map[string]Mark)}
}

func (m *MemorySource) Get(ctx context.Context, symbol string) (Mark, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mark, ok := m.marks[NormalizeSymbol(symbol)]
	return mark, ok, nil
}

func (m *MemorySource) Set(ctx context.Context, mark Mark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mark.Symbol = NormalizeSymbol(mark.Symbol)
	m.marks[mark.Symbol] = mark
	return nil
}
