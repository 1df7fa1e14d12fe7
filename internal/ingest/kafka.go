package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"journal/internal/store"
)

// KafkaConfig configures the Kafka transport.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaConsumer reads transaction events from a Kafka topic. Offsets are
// committed after an event has been applied or rejected, so events are
// delivered at least once.
type KafkaConsumer struct {
	reader *kafka.Reader
	proc   *Processor
	logger zerolog.Logger
}

// NewKafkaConsumer creates a consumer group reader for cfg.Topic.
func NewKafkaConsumer(cfg KafkaConfig, st store.Store) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
			MaxWait:  500 * time.Millisecond,
		}),
		proc:   NewProcessor(st),
		logger: log.With().Str("component", "kafka-ingest").Str("topic", cfg.Topic).Logger(),
	}
}

// Start consumes events until ctx is cancelled.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info().Msg("started consuming transaction events from Kafka")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("stopped consuming transaction events")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.handleMessage(ctx, m)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
	}
}

// handleMessage applies one message, retrying transient failures with
// backoff up to maxDeliver attempts.
func (c *KafkaConsumer) handleMessage(ctx context.Context, m kafka.Message) {
	backoff := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := c.proc.Process(ctx, m.Value)
		switch {
		case err == nil:
			return
		case errors.Is(err, ErrRejected):
			c.logger.Warn().Err(err).
				Int64("offset", m.Offset).
				Msg("invalid transaction event, skipping")
			return
		case attempt >= maxDeliver:
			c.logger.Error().Err(err).
				Int64("offset", m.Offset).
				Int("attempts", attempt).
				Msg("giving up on transaction event")
			return
		}

		c.logger.Warn().Err(err).
			Int64("offset", m.Offset).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("failed to handle transaction event, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
