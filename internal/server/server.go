package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sosinternet/internal/history"
	"sosinternet/internal/metrics"
	"sosinternet/internal/models"
	"sosinternet/internal/watchdog"
)

const maxTimelinePoints = 500

// Monitor is the part of the watchdog the HTTP surface drives.
type Monitor interface {
	Start()
	Stop()
	Snapshot() watchdog.Snapshot
}

// Server wraps HTTP serving of the status API, event stream and metrics.
type Server struct {
	httpServer   *http.Server
	monitor      Monitor
	recorder     *history.Recorder
	hub          *Hub
	gatherer     prometheus.Gatherer
	clock        clock.Clock
	logger       *zap.Logger
	historyLimit int
}

// Option customises a Server.
type Option func(*Server)

// WithGatherer exposes the registry at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithClock replaces the wall clock used for response timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a configured HTTP server for the watchdog.
func New(addr string, monitor Monitor, recorder *history.Recorder, hub *Hub, opts ...Option) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		monitor:      monitor,
		recorder:     recorder,
		hub:          hub,
		clock:        clock.New(),
		logger:       zap.NewNop(),
		historyLimit: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes(mux)
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic. It returns nil after Shutdown.
func (s *Server) Run() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts the server down and closes event streams.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/events/ws", s.handleEventsWS)
	mux.HandleFunc("GET /api/uptime", s.handleUptime)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("POST /api/monitoring/start", s.handleStart)
	mux.HandleFunc("POST /api/monitoring/stop", s.handleStop)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

type statusResponse struct {
	watchdog.Snapshot
	GeneratedAt time.Time `json:"generated_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// status reports the monitor snapshot. Before the monitor has checked
// anything itself, the latest recorded status stands in.
func (s *Server) status() statusResponse {
	snap := s.monitor.Snapshot()
	if snap.Latest == nil {
		if latest, ok := s.recorder.Latest(); ok {
			snap.Latest = &latest
		}
	}
	return statusResponse{
		Snapshot:    snap,
		GeneratedAt: s.clock.Now().UTC(),
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.recorder.History()
	limit := parseLimit(r, s.historyLimit)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []models.ConnectionStatus{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.recorder.Events(parseLimit(r, s.historyLimit))
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	window := parseHours(r, 24)
	entries := s.recorder.HistorySince(s.clock.Now().Add(-window))
	writeJSON(w, http.StatusOK, metrics.ComputeUptime(entries))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	end := s.clock.Now().UTC()
	start := end.Add(-parseHours(r, 24))
	points := history.DefaultTimelinePoints
	if v, err := strconv.Atoi(r.URL.Query().Get("points")); err == nil && v > 0 && v <= maxTimelinePoints {
		points = v
	}
	entries := s.recorder.HistorySince(start)
	writeJSON(w, http.StatusOK, map[string]any{
		"range_start": start,
		"range_end":   end,
		"timeline":    history.BuildConnectivityTimeline(entries, start, end, points),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.monitor.Start()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.monitor.Stop()
	writeJSON(w, http.StatusOK, s.status())
}

func parseLimit(r *http.Request, fallback int) int {
	if fallback <= 0 {
		return fallback
	}
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > fallback {
		return fallback
	}
	return value
}

// parseHours reads ?hours= as a look-back window, capped at 30 days.
func parseHours(r *http.Request, fallback int) time.Duration {
	hours := fallback
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			hours = value
		}
	}
	if hours > 30*24 {
		hours = 30 * 24
	}
	return time.Duration(hours) * time.Hour
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
