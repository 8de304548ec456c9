package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hazz-dev/shipcheck/internal/bot"
	"github.com/hazz-dev/shipcheck/internal/evidence"
	"github.com/hazz-dev/shipcheck/internal/logger"
	"github.com/hazz-dev/shipcheck/internal/verify"
)

// SecretHeader carries the webhook secret configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Runner performs one verification run.
type Runner interface {
	Run(ctx context.Context, phase string) *verify.Run
}

// Reports gives access to the newest stored report.
type Reports interface {
	LatestReport() (path, text string, err error)
}

// UpdateHandler processes a bot update received over the webhook.
type UpdateHandler interface {
	Handle(ctx context.Context, u bot.Update) error
}

// Options selects the optional routes.
type Options struct {
	// Phase labels runs triggered without an explicit phase.
	Phase string
	// Bot enables POST /telegram/webhook.
	Bot UpdateHandler
	// WebhookSecret, when set, must match the SecretHeader of every update.
	WebhookSecret string
	// Metrics enables GET /metrics.
	Metrics http.Handler
}

// Server holds the chi router and its dependencies.
type Server struct {
	runner  Runner
	reports Reports
	opts    Options
	router  chi.Router
	logger  *zap.Logger
}

// New creates a new Server and registers all routes. Pass nil logger to
// discard logs.
func New(runner Runner, reports Reports, opts Options, log *zap.Logger) *Server {
	s := &Server{
		runner:  runner,
		reports: reports,
		opts:    opts,
		router:  chi.NewRouter(),
		logger:  logger.OrNop(log),
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/report/latest", s.handleLatestReport)
	r.Post("/api/runs", s.handleCreateRun)
	if s.opts.Bot != nil {
		r.Post("/telegram/webhook", s.handleWebhook)
	}
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("address", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type reportResponse struct {
	Path   string `json:"path"`
	Report string `json:"report"`
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	path, text, err := s.reports.LatestReport()
	if errors.Is(err, evidence.ErrNoReport) {
		writeError(w, http.StatusNotFound, "no report yet")
		return
	}
	if err != nil {
		s.logger.Error("LatestReport", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Path: path, Report: text})
}

type runRequest struct {
	Phase string `json:"phase"`
}

type checkSummary struct {
	Name       string  `json:"check_name"`
	Status     string  `json:"status"`
	Summary    string  `json:"summary"`
	DurationMs float64 `json:"duration_ms"`
}

type runResponse struct {
	RunID          string         `json:"run_id"`
	Phase          string         `json:"phase"`
	Overall        string         `json:"overall_status"`
	Passed         int            `json:"passed"`
	Total          int            `json:"total"`
	Checks         []checkSummary `json:"checks"`
	ReportPath     string         `json:"report_path"`
	EvidenceErrors []string       `json:"evidence_errors"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	req := runRequest{Phase: s.opts.Phase}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Phase == "" {
		req.Phase = s.opts.Phase
	}

	run := s.runner.Run(r.Context(), req.Phase)

	resp := runResponse{
		RunID:          run.ID,
		Phase:          run.Phase,
		Overall:        string(run.Overall),
		Passed:         run.Passed(),
		Total:          len(run.Results),
		Checks:         make([]checkSummary, 0, len(run.Results)),
		ReportPath:     run.ReportPath,
		EvidenceErrors: []string{},
	}
	for _, res := range run.Results {
		resp.Checks = append(resp.Checks, checkSummary{
			Name:       res.Name,
			Status:     string(res.Status),
			Summary:    res.Summary,
			DurationMs: res.DurationMs(),
		})
	}
	for _, a := range run.EvidenceErrors() {
		resp.EvidenceErrors = append(resp.EvidenceErrors, fmt.Sprintf("%s: %v", a.Name, a.Err))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.opts.WebhookSecret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid secret token")
			return
		}
	}

	var u bot.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update")
		return
	}

	// Telegram redelivers on non-2xx, so reply failures are only logged.
	if err := s.opts.Bot.Handle(r.Context(), u); err != nil {
		s.logger.Warn("handling webhook update", zap.Int64("update_id", u.UpdateID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
