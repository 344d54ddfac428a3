// Package http serves the receipt review and ledger JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"gagyebu/internal/cache"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/middleware/security"
	"gagyebu/internal/middleware/trace"
	"gagyebu/internal/ocr"
	"gagyebu/internal/services"
)

const (
	defaultMaxUploadBytes = 20 << 20
	cacheSweepInterval    = 5 * time.Minute
	readyTimeout          = 5 * time.Second
)

type Config struct {
	Addr              string
	MaxUploadBytes    int64
	CORSAllowedOrigin string
	RateLimitPerMin   int
	TrustedProxies    []string
}

// Server wires the review and ledger services to HTTP.
type Server struct {
	http.Server
	reviews  *services.ReviewService
	ledger   *services.TransactionService
	analyzer ocr.Analyzer
	logger   *log.Logger

	maxUploadBytes int64
	clientIP       *security.ClientIP
	limiter        *ratelimit.Limiter
	tracer         *trace.Middleware
	caches         *cache.Manager
	now            func() time.Time

	shutdownOnce sync.Once
}

func NewServer(cfg Config, reviews *services.ReviewService, ledger *services.TransactionService, analyzer ocr.Analyzer, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	clientIP := security.NewClientIP()
	for _, cidr := range cfg.TrustedProxies {
		if err := clientIP.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		reviews:        reviews,
		ledger:         ledger,
		analyzer:       analyzer,
		logger:         logger.WithComponent(log.ComponentHTTP),
		maxUploadBytes: cfg.MaxUploadBytes,
		clientIP:       clientIP,
		limiter:        ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMin}),
		tracer:         trace.NewMiddleware(logger, clientIP.Extract),
		caches:         cache.NewManager(logger),
		now:            time.Now,
	}
	s.caches.Register(reviews.Sessions())
	s.caches.Register(ledger.OverviewCache())
	s.caches.StartCleanup(cacheSweepInterval)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.middleware(s.routes(), cfg.CORSAllowedOrigin),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/v1/ocr", s.handleOCR)
	mux.HandleFunc("GET /api/v1/previews/{id}", s.handlePreview)

	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/files", s.handleAddFiles)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/files/{index}", s.handleRemoveFile)
	mux.HandleFunc("POST /api/v1/sessions/{id}/current/{index}", s.handleSetCurrent)
	mux.HandleFunc("POST /api/v1/sessions/{id}/select/{index}", s.handleToggleSelect)
	mux.HandleFunc("POST /api/v1/sessions/{id}/undo/{index}", s.handleUndo)
	mux.HandleFunc("POST /api/v1/sessions/{id}/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/v1/sessions/{id}/retry", s.handleRetry)
	mux.HandleFunc("POST /api/v1/sessions/{id}/retry-failed", s.handleRetryFailed)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/v1/sessions/{id}/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/v1/sessions/{id}/skip", s.handleSkip)
	mux.HandleFunc("POST /api/v1/sessions/{id}/bulk-delete", s.handleBulkDelete)
	mux.HandleFunc("POST /api/v1/sessions/{id}/bulk-save", s.handleBulkSave)

	mux.HandleFunc("POST /api/v1/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/v1/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/v1/transactions/{id}/receipt", s.handleReceipt)
	mux.HandleFunc("GET /api/v1/overview", s.handleOverview)

	return mux
}

// middleware wraps h so that recovery runs outermost and rate limiting last.
func (s *Server) middleware(h http.Handler, corsOrigin string) http.Handler {
	h = s.limiter.Middleware(s.clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", Code: "rate_limited"})
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = security.CORS(corsOrigin)(h)
	h = s.tracer.Middleware(h)
	return s.recoverer(h)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.ErrorContext(r.Context(), "Panic serving request",
					log.FieldPath, r.URL.Path,
					log.FieldError, fmt.Sprint(rec),
					"stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops accepting requests, then closes every review session and
// the background sweepers. Later calls are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		s.caches.Stop()
		s.limiter.Stop()
		s.reviews.CloseAll()
		m := s.tracer.GetMetrics()
		s.logger.InfoContext(ctx, "HTTP server stopped",
			log.FieldOperation, log.OpShutdown,
			"total_requests", m.TotalRequests,
			"rate_limited", s.limiter.Rejected())
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks that the ledger answers a month query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{"ledger": "ok", "analyzer": "ok"}
	status, code := "ready", http.StatusOK

	now := s.now()
	if _, err := s.ledger.ListMonth(ctx, now.Year(), int(now.Month())); err != nil {
		checks["ledger"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	if s.analyzer == nil {
		checks["analyzer"] = "not configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// ListenAndServe runs the server until Shutdown, treating a clean stop as success.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
