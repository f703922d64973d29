// Package httpapi implements the read-only HTTP query surface: routing,
// per-IP rate limiting, request validation, and bounded JSON responses over
// the time-series store, cache, aggregator, and health monitor.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mklimuk/sensord/cache"
	"github.com/mklimuk/sensord/health"
	"github.com/mklimuk/sensord/record"
	"github.com/mklimuk/sensord/store"
)

// maxHeaderBytes bounds the request line + headers, per the request
// pipeline's 8 KB limit.
const maxHeaderBytes = 8 * 1024

// StoreReader is the subset of store.Store the query surface depends on;
// the HTTP surface is read-only (see spec.md §1 Non-goals: no write path).
type StoreReader interface {
	GetRecent(ctx context.Context, count int) ([]record.Reading, error)
	GetRange(ctx context.Context, start, end time.Time, maxResults int) ([]record.Reading, error)
	Info(ctx context.Context) (store.Info, error)
}

// Server is the HTTP query surface described in spec.md §4.5.
type Server struct {
	addr    string
	store   StoreReader
	cache   *cache.Cache
	monitor *cache.Monitor
	health  *health.Monitor
	logger  *slog.Logger

	limiter *rateLimiter
	startTime time.Time

	httpServer *http.Server
}

// Config configures a Server.
type Config struct {
	Addr string
}

func New(cfg Config, store StoreReader, queryCache *cache.Cache, perfMonitor *cache.Monitor, healthMonitor *health.Monitor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:      cfg.Addr,
		store:     store,
		cache:     queryCache,
		monitor:   perfMonitor,
		health:    healthMonitor,
		logger:    logger,
		limiter:   newRateLimiter(60, 1000),
		startTime: time.Now().UTC(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/diagnostic", s.handleDiagnostic)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/alive", s.handleAlive)
	mux.HandleFunc("/data/recent", s.handleDataRecent)
	mux.HandleFunc("/data/range", s.handleDataRange)
	mux.HandleFunc("/data/aggregates", s.handleDataAggregates)
	mux.HandleFunc("/data/info", s.handleDataInfo)
	mux.HandleFunc("/", s.handleNotFound)

	s.httpServer = &http.Server{
		Addr:           cfg.Addr,
		Handler:        s.pipeline(mux),
		MaxHeaderBytes: maxHeaderBytes,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
	}

	return s
}

// ListenAndServe starts the server; it blocks until the server is closed or
// fails to start.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http query surface listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
