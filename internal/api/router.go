package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"journal/internal/marks"
	"journal/internal/position"
	"journal/internal/store"
)

// Server holds the HTTP server dependencies.
type Server struct {
	store   store.Store
	marks   marks.Source
	nc      *nats.Conn
	limiter *rateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithWriteRateLimit limits each client to perMinute write requests.
// Zero or less disables the limit.
func WithWriteRateLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute > 0 {
			s.limiter = newRateLimiter(perMinute)
		}
	}
}

// NewServer creates a new API server. nc may be nil when NATS ingest is
// disabled.
func NewServer(st store.Store, ms marks.Source, nc *nats.Conn, opts ...Option) *Server {
	s := &Server{store: st, marks: ms, nc: nc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Next-Cursor"},
		MaxAge:         300,
	}))
	r.MethodNotAllowed(methodNotAllowed)
	r.NotFound(notFound)

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/import", s.handleImportTrades)

		r.Route("/trades", func(r chi.Router) {
			r.Get("/", s.handleListTrades)
			r.Post("/", s.handleCreateTrade)
			r.Get("/stats", s.handleTradeStats)
			r.Route("/{tradeId}", func(r chi.Router) {
				r.Get("/", s.handleGetTrade)
				r.Patch("/", s.handleUpdateTrade)
				r.Delete("/", s.handleDeleteTrade)
				r.Get("/position", s.handleTradePosition)
			})
		})

		r.Route("/positions", func(r chi.Router) {
			r.Get("/", s.handleListPositions)
			r.Post("/", s.handleCreatePosition)
			r.Route("/{positionId}", func(r chi.Router) {
				r.Get("/", s.handleGetPosition)
				r.Delete("/", s.handleDeletePosition)
				r.Post("/transactions", s.handleAppendTransaction)
				r.Get("/metrics", s.handlePositionMetrics)
			})
		})

		r.Get("/marks/{symbol}", s.handleGetMark)
		r.Put("/marks/{symbol}", s.handleSetMark)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store and aggregation errors to HTTP responses.
// Sequence and fill validation failures are client errors; an empty
// transaction list means stored data is broken and is reported as a 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, position.ErrInvalidTransactionSequence),
		errors.Is(err, position.ErrInvalidTransaction),
		errors.Is(err, store.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "failed to process "+what)
	}
}
