// Package httpapi implements the node's HTTP server surface (§6.1):
// /tickers, /tickers/group, /gossip, /public/gossip, /health. Adapted
// from the teacher's internal/interfaces/http server — same
// gorilla/mux router, request-ID and logging middleware chain, and
// port-busy check at construction — generalized from a read-only
// candidates API to the ingestion/query surface this node exposes,
// with zerolog replacing the teacher's log.Printf calls and
// golang.org/x/time/rate gating the public gossip endpoint.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sawpanic/vnmarket/internal/ingest"
	"github.com/sawpanic/vnmarket/internal/reputation"
	"github.com/sawpanic/vnmarket/internal/store"
	"github.com/sawpanic/vnmarket/internal/telemetry"
	"github.com/sawpanic/vnmarket/internal/tickergroup"
	"github.com/sawpanic/vnmarket/internal/upstream"
)

// publicGossipRPS and publicGossipBurst implement §5's "public
// endpoint rate limiting: a per-second token-bucket limiter (≈10
// requests/s, burst 20) applied before any other check."
const (
	publicGossipRPS   = 10
	publicGossipBurst = 20
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Config configures a Server.
type Config struct {
	Host        string
	Port        int
	Pipeline    *ingest.Pipeline
	Store       *store.Store
	Registry    *reputation.Registry
	Metrics     *telemetry.Metrics
	TickerGroup tickergroup.Catalogue
	// UpstreamClient is nil in follower mode, which has no Upstream
	// Client and so reports no breaker state at /health.
	UpstreamClient *upstream.Client
	NodeName       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Logger         zerolog.Logger
	startedAt      time.Time
}

// Server is the node's HTTP listener.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers
	cfg      Config
	log      zerolog.Logger
}

// NewServer constructs a Server, binding to confirm the port is free
// (matching the teacher's fail-fast-on-port-busy behavior) without
// holding the listener — http.Server binds again on Start.
func NewServer(cfg Config) (*Server, error) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	cfg.startedAt = time.Now()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	router := mux.NewRouter()
	h := &handlers{
		pipeline:       cfg.Pipeline,
		store:          cfg.Store,
		registry:       cfg.Registry,
		metrics:        cfg.Metrics,
		tickerGroup:    cfg.TickerGroup,
		upstreamClient: cfg.UpstreamClient,
		nodeName:       cfg.NodeName,
		startedAt:      cfg.startedAt,
		log:            cfg.Logger,
		publicLim:      rate.NewLimiter(rate.Limit(publicGossipRPS), publicGossipBurst),
	}

	s := &Server{router: router, handlers: h, cfg: cfg, log: cfg.Logger}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/tickers", s.handlers.Tickers).Methods(http.MethodGet)
	api.HandleFunc("/tickers/group", s.handlers.TickerGroups).Methods(http.MethodGet)
	api.HandleFunc("/gossip", s.handlers.InternalGossip).Methods(http.MethodPost)
	api.HandleFunc("/public/gossip", s.handlers.PublicGossip).Methods(http.MethodPost)
	api.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.cfg.Metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.log.Info().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}
