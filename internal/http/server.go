// Package http exposes the ledger over a JSON API: account, entry, obligation
// and plan CRUD, transfers, and the cached dashboard projection.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/services"
	"bilancio/internal/storage"
	"bilancio/internal/stream"
)

type Server struct {
	http.Server

	storage   *storage.Repository
	ledger    *services.LedgerService
	transfers *services.TransferCoordinator
	amortizer *services.Amortizer
	broker    *stream.Broker

	rateLimiter *rateLimiter

	// Dashboard projections are cached per date and invalidated on any
	// ledger change pushed through the broker.
	dashCache *cache.LRUCache[services.BudgetProjection]

	cancelChanges    func()
	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and the dashboard cache, returning a
// ready-to-run http.Server.
func NewServer(addr string, repo *storage.Repository, ledger *services.LedgerService, transfers *services.TransferCoordinator, amortizer *services.Amortizer, broker *stream.Broker) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		storage:          repo,
		ledger:           ledger,
		transfers:        transfers,
		amortizer:        amortizer,
		broker:           broker,
		rateLimiter:      newRateLimiter(),
		dashCache:        cache.NewLRUCache[services.BudgetProjection](32, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()
	s.watchChanges()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/dashboard", s.withRequestContext(s.handleDashboard))

	mux.HandleFunc("GET /api/accounts", s.withRequestContext(s.handleListAccounts))
	mux.HandleFunc("POST /api/accounts", s.withRequestContext(s.handleCreateAccount))
	mux.HandleFunc("GET /api/accounts/{id}", s.withRequestContext(s.handleGetAccount))
	mux.HandleFunc("PUT /api/accounts/{id}", s.withRequestContext(s.handleUpdateAccount))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.withRequestContext(s.handleDeleteAccount))
	mux.HandleFunc("GET /api/accounts/{id}/entries", s.withRequestContext(s.handleListEntries))
	mux.HandleFunc("GET /api/accounts/{id}/transfers", s.withRequestContext(s.handleListTransfers))

	mux.HandleFunc("POST /api/entries", s.withRequestContext(s.handleCreateEntry))
	mux.HandleFunc("PUT /api/entries/{id}", s.withRequestContext(s.handleUpdateEntry))
	mux.HandleFunc("DELETE /api/entries/{id}", s.withRequestContext(s.handleDeleteEntry))

	mux.HandleFunc("GET /api/obligations", s.withRequestContext(s.handleListObligations))
	mux.HandleFunc("POST /api/obligations", s.withRequestContext(s.handleCreateObligation))
	mux.HandleFunc("PUT /api/obligations/{id}", s.withRequestContext(s.handleUpdateObligation))
	mux.HandleFunc("DELETE /api/obligations/{id}", s.withRequestContext(s.handleDeleteObligation))

	mux.HandleFunc("GET /api/plans", s.withRequestContext(s.handleListPlans))
	mux.HandleFunc("POST /api/plans", s.withRequestContext(s.handleCreatePlan))
	mux.HandleFunc("PUT /api/plans/{id}", s.withRequestContext(s.handleEditPlan))
	mux.HandleFunc("DELETE /api/plans/{id}", s.withRequestContext(s.handleCancelPlan))

	mux.HandleFunc("POST /api/transfers", s.withRequestContext(s.handleCreateTransfer))

	return s
}

// watchChanges subscribes to the in-process change stream and drops all cached
// projections whenever the ledger mutates.
func (s *Server) watchChanges() {
	if s.broker == nil {
		return
	}
	ch, cancel := s.broker.Subscribe()
	s.cancelChanges = cancel
	go func() {
		for c := range ch {
			slog.Debug("Invalidating dashboard cache", "account_id", c.AccountID, "change", c.Kind)
			s.dashCache.Clear()
		}
	}()
}

// invalidate publishes a change on the broker so every subscriber, this
// server's cache included, reacts to mutations that bypass the ledger service.
func (s *Server) invalidate(accountID int64, kind string) {
	if s.broker != nil {
		s.broker.Publish(stream.Change{AccountID: accountID, Kind: kind})
		return
	}
	s.dashCache.Clear()
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.dashCache.CleanExpired(); removed > 0 {
				slog.Debug("Cache cleanup completed", "removed", removed)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		if s.cancelChanges != nil {
			s.cancelChanges()
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady pings the database so the readiness probe fails when SQLite is
// unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.storage.ListAccounts(r.Context()); err != nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// withRequestContext adds request tracing, rate limiting on mutations, and
// completion logging.
func (s *Server) withRequestContext(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// rateLimiter is a simple per-client in-memory limiter for mutating requests.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Up to 60 mutating requests per minute per client.
	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
