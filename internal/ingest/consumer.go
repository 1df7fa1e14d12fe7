package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"journal/internal/store"
)

const (
	// StreamName is the JetStream stream name for journal fills.
	StreamName = "JOURNAL_TRANSACTIONS"
	// SubjectPrefix is the NATS subject prefix for transaction events.
	SubjectPrefix = "journal.transactions."
	// SubjectWildcard subscribes to all transaction subjects.
	SubjectWildcard = "journal.transactions.>"
	// ConsumerName is the durable consumer name.
	ConsumerName = "journal-transaction-consumer"

	// maxDeliver bounds how often a failing event is attempted.
	maxDeliver = 5
)

// Consumer subscribes to transaction events via NATS JetStream.
type Consumer struct {
	nc     *nats.Conn
	proc   *Processor
	logger zerolog.Logger
}

// NewConsumer creates a new NATS transaction consumer.
func NewConsumer(nc *nats.Conn, st store.Store) *Consumer {
	return &Consumer{
		nc:     nc,
		proc:   NewProcessor(st),
		logger: log.With().Str("component", "ingest").Logger(),
	}
}

// Start begins consuming transaction events. Blocks until context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	js, err := jetstream.New(c.nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	// Create or update the stream
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectWildcard},
		Storage:  jetstream.FileStorage,
		MaxBytes: 100 * 1024 * 1024, // 100MB
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	// Create durable consumer
	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	c.logger.Info().Msg("started consuming transaction events from NATS JetStream")

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	// Wait for context cancellation
	<-ctx.Done()
	cc.Stop()
	c.logger.Info().Msg("stopped consuming transaction events")
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	err := c.proc.Process(ctx, msg.Data())
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, ErrRejected):
		c.logger.Warn().Err(err).
			Str("subject", msg.Subject()).
			Msg("invalid transaction event, rejecting")
		msg.Term()
	default:
		c.logger.Error().Err(err).
			Str("subject", msg.Subject()).
			Msg("failed to handle transaction message")
		// NAK for redelivery on store errors
		msg.Nak()
	}
}

// ConnectNATS connects to NATS, retrying with exponential backoff until the
// connection succeeds or ctx is cancelled.
func ConnectNATS(ctx context.Context, urls, credsFile, creds string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("journal"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	credsOpt, err := credentialsOption(credsFile, creds)
	if err != nil {
		return nil, err
	}
	if credsOpt != nil {
		opts = append(opts, credsOpt)
	}

	backoff := 100 * time.Millisecond
	maxBackoff := 30 * time.Second

	for attempt := 1; ; attempt++ {
		nc, err := nats.Connect(urls, opts...)
		if err == nil {
			log.Info().Str("url", nc.ConnectedUrl()).Int("attempt", attempt).Msg("connected to NATS")
			return nc, nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("failed to connect to NATS, retrying...")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to NATS: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// credentialsOption prefers inline credentials over a credentials file.
func credentialsOption(credsFile, creds string) (nats.Option, error) {
	if creds == "" {
		if credsFile == "" {
			return nil, nil
		}
		return nats.UserCredentials(credsFile), nil
	}

	tmpFile, err := os.CreateTemp("", "nats-creds-*.creds")
	if err != nil {
		return nil, fmt.Errorf("create temp credentials file: %w", err)
	}
	if _, err := tmpFile.WriteString(creds); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("write credentials: %w", err)
	}
	tmpFile.Close()
	return nats.UserCredentials(tmpFile.Name()), nil
}
