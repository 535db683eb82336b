// Package api hosts the local HTTP control plane: status, logs, target
// selection, history and metrics. It is the headless presentation layer
// consuming what the core emits.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quietloop/repackmon/internal/domain"
	"github.com/quietloop/repackmon/internal/logging"
	"github.com/quietloop/repackmon/internal/watcher"
)

// Constants for route prefixing. Versioning is explicit to allow
// non-breaking additions.
const (
	APIVersion     = "v1"
	DefaultAddress = "127.0.0.1:7737"
)

// ServerOptions configures the HTTP server. Timeouts are conservative
// defaults suitable for a local control-plane server.
type ServerOptions struct {
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the HTTP API for the daemon.
type Server struct {
	http    *http.Server
	watcher *watcher.Watcher
	feed    *logging.Feed
	history domain.HistoryStore
	store   domain.TargetStore
	logger  *zap.Logger
	opts    ServerOptions
}

// NewServer constructs the API server bound to the watcher. history and
// feed may be nil; their routes then report empty results.
func NewServer(
	w *watcher.Watcher,
	feed *logging.Feed,
	history domain.HistoryStore,
	store domain.TargetStore,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
	opts ServerOptions,
) *Server {
	if w == nil {
		panic("api.NewServer: watcher is nil")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddress
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 2 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	mux := http.NewServeMux()
	s := &Server{
		watcher: w,
		feed:    feed,
		history: history,
		store:   store,
		logger:  logger,
		opts:    opts,
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
		},
	}

	mux.HandleFunc("/"+APIVersion+"/healthz", s.handleHealthz)
	mux.HandleFunc("/"+APIVersion+"/status", s.handleStatus)
	mux.HandleFunc("/"+APIVersion+"/logs", s.handleLogs)
	mux.HandleFunc("/"+APIVersion+"/history", s.handleHistory)
	mux.HandleFunc("/"+APIVersion+"/target", s.handleTarget)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

// Start begins serving HTTP in a background goroutine. It returns
// immediately; use Stop for graceful shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("api listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server, waiting up to ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Handler exposes the mux (for tests).
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

type statusResponse struct {
	Target            string         `json:"target"`
	SkipFirstKill     bool           `json:"skip_first_kill"`
	HasRepackedOnce   bool           `json:"has_repacked_once"`
	WarnedKillFailure bool           `json:"warned_kill_failure"`
	TargetRunning     bool           `json:"target_running"`
	LastFingerprint   string         `json:"last_fingerprint"`
	LastCycle         *cycleResponse `json:"last_cycle,omitempty"`
}

type cycleResponse struct {
	Action      string    `json:"action"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	ToolOutcome string    `json:"tool_outcome,omitempty"`
	Relaunched  bool      `json:"relaunched"`
	ExecutedAt  time.Time `json:"executed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.watcher.Snapshot()
	resp := statusResponse{
		Target:            snap.Target.Path,
		SkipFirstKill:     snap.State.SkipFirstKill,
		HasRepackedOnce:   snap.State.HasRepackedOnce,
		WarnedKillFailure: snap.State.WarnedKillFailure,
		TargetRunning:     snap.State.WasRunning,
		LastFingerprint:   string(snap.State.LastFingerprint),
	}
	if snap.LastCycle != nil {
		c := cycleResponse{
			Action:      string(snap.LastCycle.Action),
			Fingerprint: string(snap.LastCycle.Fingerprint),
			Relaunched:  snap.LastCycle.Relaunched,
			ExecutedAt:  snap.LastCycle.ExecutedAt,
			DurationMs:  snap.LastCycle.Duration.Milliseconds(),
		}
		if snap.LastCycle.Tool != nil {
			c.ToolOutcome = snap.LastCycle.Tool.Outcome.String()
		}
		resp.LastCycle = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := queryLimit(r, 50)
	events := []domain.LogEvent{}
	if s.feed != nil {
		events = s.feed.Recent(limit)
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := queryLimit(r, 20)
	records := []domain.RepackRecord{}
	if s.history != nil {
		var err error
		records, err = s.history.Recent(limit)
		if err != nil {
			s.logger.Warn("history query failed", zap.Error(err))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, records)
}

type targetRequest struct {
	Path string `json:"path"`
}

// handleTarget serves the current watch target and accepts the explicit
// save action. A PUT installs the new target into the watcher atomically
// and persists it, matching the foreground save in the original design.
func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := s.watcher.Snapshot()
		writeJSON(w, http.StatusOK, targetRequest{Path: snap.Target.Path})

	case http.MethodPut, http.MethodPost:
		var req targetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.watcher.SetTarget(req.Path); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		if s.store != nil {
			if err := s.store.Save(domain.WatchTarget{Path: req.Path}); err != nil {
				s.logger.Error("failed to persist watch target", zap.Error(err))
				http.Error(w, "target active but not persisted", http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, http.StatusOK, targetRequest{Path: req.Path})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
