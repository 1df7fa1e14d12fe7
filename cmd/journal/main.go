package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"journal/internal/api"
	"journal/internal/config"
	"journal/internal/ingest"
	"journal/internal/marks"
	"journal/internal/store"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Str("store", cfg.StoreBackend).
		Msg("starting journal service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	st := openStore(ctx, cfg)
	defer st.Close()

	if cfg.SeedDemoData {
		if err := store.Seed(ctx, st); err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo data")
		}
		log.Info().Msg("seeded demo trades and positions")
	}

	ms := openMarks(ctx, cfg)

	// Connect to NATS (optional)
	var nc *nats.Conn
	if cfg.NATSURLs != "" {
		nc, err = ingest.ConnectNATS(ctx, cfg.NATSURLs, cfg.NATSCredsFile, cfg.NATSCreds)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Close()

		consumer := ingest.NewConsumer(nc, st)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("NATS consumer error")
			}
		}()
	} else {
		log.Info().Msg("NATS_URLS not set, NATS ingest disabled")
	}

	// Kafka consumer (optional)
	if len(cfg.KafkaBrokers) > 0 {
		consumer := ingest.NewKafkaConsumer(ingest.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, st)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Kafka consumer error")
			}
		}()
	}

	// Start HTTP server
	srv := api.NewServer(st, ms, nc, api.WithWriteRateLimit(cfg.RateLimitPerMinute))
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if closer, ok := ms.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("mark store close error")
		}
	}

	log.Info().Msg("shutdown complete")
}

// openStore connects the configured record store. PostgreSQL is migrated
// before use.
func openStore(ctx context.Context, cfg *config.Config) store.Store {
	if cfg.StoreBackend == config.StoreMemory {
		log.Warn().Msg("using in-memory store, records are lost on restart")
		return store.NewMemoryStore()
	}

	repo, err := store.NewRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := repo.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("connected to PostgreSQL")

	applied, err := store.RunMigrations(ctx, repo.Pool())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Int("applied", applied).Msg("migrations complete")
	return repo
}

// openMarks connects Redis when configured and falls back to process memory.
func openMarks(ctx context.Context, cfg *config.Config) marks.Source {
	if cfg.RedisAddr == "" {
		return marks.NewMemorySource()
	}
	rs, err := marks.NewRedisSource(ctx, marks.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.MarkTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis mark store")
	return rs
}
