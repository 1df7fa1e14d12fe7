package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"journal/internal/domain"
	"journal/internal/position"
	"journal/internal/store"
)

// ErrRejected marks events that can never be applied. Transports drop them
// instead of redelivering.
var ErrRejected = errors.New("event rejected")

// Processor applies encoded transaction events to the store. It is shared by
// the NATS and Kafka transports.
type Processor struct {
	store  store.Store
	logger zerolog.Logger
}

// NewProcessor creates a Processor writing to st.
func NewProcessor(st store.Store) *Processor {
	return &Processor{
		store:  st,
		logger: log.With().Str("component", "ingest").Logger(),
	}
}

// Process applies one encoded event. Duplicates are accepted without change.
// Errors wrapping ErrRejected are permanent; any other error may succeed on
// a later attempt.
func (p *Processor) Process(ctx context.Context, data []byte) error {
	var event TransactionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrRejected, err)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: event %s: %v", ErrRejected, event.EventID, err)
	}
	txn, err := event.ToTransaction()
	if err != nil {
		return fmt.Errorf("%w: event %s: %v", ErrRejected, event.EventID, err)
	}

	var pos *domain.Position
	if event.Opens() {
		pos, err = p.store.CreatePosition(ctx, event.ToMeta(), txn)
	} else {
		pos, err = p.store.AppendTransaction(ctx, event.PositionID, txn)
	}

	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		p.logger.Debug().
			Str("event_id", event.EventID).
			Msg("duplicate transaction event, skipped")
		return nil
	case errors.Is(err, position.ErrInvalidTransactionSequence),
		errors.Is(err, position.ErrInvalidTransaction):
		return fmt.Errorf("%w: %v", ErrRejected, err)
	case err != nil:
		// Unknown positions are retried too: the opening event may still be
		// in flight.
		return fmt.Errorf("apply event %s: %w", event.EventID, err)
	}

	p.logger.Info().
		Str("event_id", event.EventID).
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Str("kind", string(txn.Kind)).
		Int64("shares", txn.Shares).
		Float64("price", txn.Price).
		Str("status", string(pos.Status)).
		Msg("ingested transaction")
	return nil
}
