// Package ops exposes the operational HTTP surface of a crawl run:
// health, Prometheus metrics, the latest run summary, and a trending
// query over the master table.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hqnguyen/trendwatch/internal/coordinator"
	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/metrics"
	"github.com/hqnguyen/trendwatch/internal/store"
)

// TrendingStore is the read slice of the persistence engine the server
// needs.
type TrendingStore interface {
	Trending(ctx context.Context, platform, metric string, limit int) ([]store.MasterRecord, error)
}

// Server serves the ops endpoints during and after a run.
type Server struct {
	router chi.Router
	engine TrendingStore
	logger *zap.Logger

	mu      sync.RWMutex
	summary *coordinator.Summary
}

// NewServer builds the ops server.
func NewServer(engine TrendingStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/v1/summary", s.getSummary)
	r.Get("/v1/trending", s.getTrending)
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// Serve runs the server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("ops server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// SetSummary records the latest finished run for /v1/summary.
func (s *Server) SetSummary(sum coordinator.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &sum
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSummary(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	sum := s.summary
	s.mu.RUnlock()
	if sum == nil {
		s.writeError(w, http.StatusNotFound, "no run finished yet")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getTrending(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = entity.MetricViews
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	recs, err := s.engine.Trending(r.Context(), platform, metric, limit)
	if err != nil {
		s.logger.Error("trending query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "trending query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"platform": platform,
		"metric":   metric,
		"records":  recs,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
