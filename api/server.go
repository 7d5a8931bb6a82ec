// Package api provides the HTTP REST API server for chainpulse.
//
// It exposes endpoints for snapshot ingestion, PCR series, strike deltas,
// OI ranks, bias verdicts, flow shifts, heatmaps, strike series, runtime
// configuration, Prometheus metrics and WebSocket streaming.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/chainpulse/internal/analysis/derivatives"
	"github.com/seenimoa/chainpulse/internal/config"
	"github.com/seenimoa/chainpulse/internal/dashboard"
	"github.com/seenimoa/chainpulse/internal/infra"
	"github.com/seenimoa/chainpulse/internal/logging"
	"github.com/seenimoa/chainpulse/internal/store"
	"github.com/seenimoa/chainpulse/pkg/models"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

// Version is reported by /health. Set by the binary at startup.
var Version = "dev"

// maxSnapshotBytes caps an ingest request body.
const maxSnapshotBytes = 8 << 20

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	svc     *dashboard.Service
	wsHub   *WSHub
	logger  zerolog.Logger
	limiter atomic.Pointer[infra.KeyedLimiter]

	cfgMu sync.RWMutex
	cfg   *config.Config
}

// NewServer creates a configured API server with all routes and middleware.
// Every snapshot the service ingests is pushed to WebSocket clients.
func NewServer(cfg *config.Config, svc *dashboard.Service, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		wsHub:  NewWSHub(),
		logger: logging.WithComponent(logger, "api"),
	}
	s.limiter.Store(infra.NewKeyedLimiter(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst))
	svc.SetPublisher(s.publishAggregate)
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub { return s.wsHub }

// config returns the running configuration.
func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// ListenAndServe starts the HTTP server and shuts it down gracefully when
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start WebSocket hub
	go s.wsHub.Run()
	go s.pruneLimiter(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) pruneLimiter(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.limiter.Load().Prune()
		}
	}
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	cfg := s.config()

	timeout := time.Duration(cfg.API.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	// CORS
	origins := []string{"*"}
	if len(cfg.API.CORSOrigins) > 0 {
		origins = cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.svc.Metrics().Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/symbols", s.handleSymbols)
		r.Get("/overview", s.handleOverview)

		// Snapshots
		r.With(s.rateLimit).Post("/snapshots/{symbol}", s.handleIngest)
		r.Get("/snapshots/{symbol}", s.handleListSnapshots)
		r.Delete("/snapshots/{symbol}", s.handleClearSnapshots)

		// Analytics
		r.Get("/pcr", s.handleAllPCR)
		r.Get("/pcr/{symbol}", s.handlePCR)
		r.Get("/net/{symbol}", s.handleNet)
		r.Get("/deltas/{symbol}", s.handleDeltas)
		r.Get("/ranks/{symbol}", s.handleRanks)
		r.Get("/bias/{symbol}", s.handleBias)
		r.Get("/flow/{symbol}", s.handleFlow)
		r.Get("/heatmap/{symbol}", s.handleHeatmap)
		r.Get("/strike/{symbol}/{strike}/{metric}", s.handleStrikeSeries)

		// Configuration
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handleUpdateConfig)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// requestLogger logs each request through zerolog and records it in the
// HTTP metrics, labelled by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		l := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), l)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		d := time.Since(start)
		logging.LogRequest(l, r.Method, r.URL.Path, status, ww.BytesWritten(), d)
		s.svc.Metrics().ObserveRequest(r.Method, route, status, d)
	})
}

// rateLimit throttles per client address.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Load().Allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// IngestResponse is returned by POST /api/v1/snapshots/{symbol}.
type IngestResponse struct {
	ID        string              `json:"id"`
	Symbol    string              `json:"symbol"`
	Seq       int64               `json:"seq"`
	Timestamp string              `json:"timestamp"`
	Rows      int                 `json:"rows"`
	Aggregate models.AggregateRow `json:"aggregate"`
}

// ClearResponse is returned by DELETE /api/v1/snapshots/{symbol}.
type ClearResponse struct {
	Symbol  string `json:"symbol"`
	Removed int    `json:"removed"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := utils.NowIST()
	phase, _ := utils.PhaseAt(now)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":        "ok",
			"version":       Version,
			"market_phase":  phase,
			"market_status": utils.MarketStatusAt(now),
			"time_ist":      now.Format(time.RFC3339),
			"ws_clients":    s.wsHub.ClientCount(),
		},
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	infos, err := s.svc.Symbols(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: infos})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.svc.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: ov})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var snap models.RawSnapshot
	body := http.MaxBytesReader(w, r.Body, maxSnapshotBytes)
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot body: "+err.Error())
		return
	}

	rec, agg, err := s.svc.Ingest(r.Context(), chi.URLParam(r, "symbol"), snap)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data: IngestResponse{
			ID:        rec.ID,
			Symbol:    rec.Symbol,
			Seq:       rec.Seq,
			Timestamp: rec.Snapshot.Timestamp,
			Rows:      len(rec.Snapshot.Rows),
			Aggregate: agg,
		},
	})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	var desc bool
	switch r.URL.Query().Get("sort") {
	case "", "asc":
	case "desc":
		desc = true
	default:
		writeError(w, http.StatusBadRequest, "sort must be asc or desc")
		return
	}

	recs, err := s.svc.Records(r.Context(), chi.URLParam(r, "symbol"), store.ListOptions{Limit: limit, Desc: desc})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: recs})
}

func (s *Server) handleClearSnapshots(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	n, err := s.svc.Clear(r.Context(), symbol)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	canon, _ := utils.NormalizeSymbol(symbol)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: ClearResponse{Symbol: canon, Removed: n}})
}

func (s *Server) handlePCR(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.svc.Aggregates(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: aggs})
}

func (s *Server) handleAllPCR(w http.ResponseWriter, r *http.Request) {
	all, err := s.svc.AllAggregates(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: all})
}

func (s *Server) handleNet(w http.ResponseWriter, r *http.Request) {
	net, err := s.svc.NetSummary(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: net})
}

func (s *Server) handleDeltas(w http.ResponseWriter, r *http.Request) {
	ref, err := parseReference(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.svc.Deltas(r.Context(), chi.URLParam(r, "symbol"), ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: rep})
}

func (s *Server) handleRanks(w http.ResponseWriter, r *http.Request) {
	side := models.Side(r.URL.Query().Get("side"))
	switch side {
	case "":
		side = models.SideCall
	case models.SideCall, models.SidePut:
	default:
		writeError(w, http.StatusBadRequest, "side must be call or put")
		return
	}
	ref, err := parseReference(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.svc.Ranks(r.Context(), chi.URLParam(r, "symbol"), side, ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: rep})
}

func (s *Server) handleBias(w http.ResponseWriter, r *http.Request) {
	start, err := queryInt(r, "start", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be an integer")
		return
	}
	end, err := queryInt(r, "end", -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be an integer")
		return
	}
	v, err := s.svc.Bias(r.Context(), chi.URLParam(r, "symbol"), start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: v})
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	ref, err := parseReference(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := s.svc.Settings().Flow
	if cfg.TopN, err = queryInt(r, "top", cfg.TopN); err != nil || cfg.TopN < 1 {
		writeError(w, http.StatusBadRequest, "top must be a positive integer")
		return
	}
	if cfg.MinAbsChange, err = queryFloat(r, "min", cfg.MinAbsChange); err != nil || cfg.MinAbsChange < 0 {
		writeError(w, http.StatusBadRequest, "min must be a non-negative number")
		return
	}
	shift, err := s.svc.Flow(r.Context(), chi.URLParam(r, "symbol"), ref, cfg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: shift})
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	ref, err := parseReference(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spot, err := queryFloat(r, "spot", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "spot must be a number")
		return
	}
	hm, err := s.svc.Heatmap(r.Context(), chi.URLParam(r, "symbol"), ref, spot)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: hm})
}

func (s *Server) handleStrikeSeries(w http.ResponseWriter, r *http.Request) {
	metric, err := derivatives.ParseMetric(chi.URLParam(r, "metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.svc.StrikeSeries(r.Context(), chi.URLParam(r, "symbol"), chi.URLParam(r, "strike"), metric)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: rep})
}

// ============================================================
// Helpers
// ============================================================

// parseReference reads ?ref=previous|start|index&idx=N.
func parseReference(r *http.Request) (dashboard.Reference, error) {
	mode, err := derivatives.ParseReferenceMode(r.URL.Query().Get("ref"))
	if err != nil {
		return dashboard.Reference{}, err
	}
	ref := dashboard.Reference{Mode: mode}
	if mode == derivatives.RefIndex {
		idx, err := queryInt(r, "idx", -1)
		if err != nil || idx < 0 {
			return dashboard.Reference{}, errors.New("ref=index needs a non-negative idx")
		}
		ref.Index = idx
	}
	return ref, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrUnknownSymbol), errors.Is(err, store.ErrEmptySnapshot):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicateSnapshot):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrNotEnoughData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
