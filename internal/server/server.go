package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/monitor"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/report"
)

// Monitor is the scheduler surface the command endpoints drive.
type Monitor interface {
	Snapshot(ctx context.Context) (*model.ResourceSnapshot, error)
	Digest(ctx context.Context, send bool) (*report.Digest, error)
	CheckNow(ctx context.Context) (*monitor.CheckResult, error)
	Status() monitor.Status
}

// ThresholdStore reads and updates the persisted thresholds.
type ThresholdStore interface {
	Current() model.Thresholds
	Set(name string, value float64) (model.Thresholds, error)
}

// Server provides health, command and metrics endpoints.
type Server struct {
	monitor    Monitor
	thresholds ThresholdStore
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a command server.
func NewServer(m Monitor, th ThresholdStore, logger *slog.Logger) *Server {
	s := &Server{
		monitor:    m,
		thresholds: th,
		mux:        http.NewServeMux(),
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/resources", s.handleResources)
	s.mux.HandleFunc("POST /api/v1/check", s.handleCheck)
	s.mux.HandleFunc("POST /api/v1/report", s.handleReport)
	s.mux.HandleFunc("GET /api/v1/thresholds", s.handleThresholds)
	s.mux.HandleFunc("PUT /api/v1/thresholds", s.handleSetThreshold)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("command server started", "listen", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	s.logger.Info("command server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"scheduler": s.monitor.Status(),
	})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	snap, err := s.monitor.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("fetch resources", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.monitor.CheckNow(r.Context())
	if err != nil {
		s.logger.Error("check resources", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	send := true
	if v := r.URL.Query().Get("send"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid send value %q", v))
			return
		}
		send = parsed
	}

	d, err := s.monitor.Digest(r.Context(), send)
	switch {
	case errors.Is(err, monitor.ErrDigestDisabled):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil && d == nil:
		s.logger.Error("build digest", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	case err != nil:
		// Built but not delivered.
		s.logger.Error("deliver digest", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"digest": d, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.thresholds.Current())
}

type setThresholdRequest struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req setThresholdRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Name == "" || req.Value == nil {
		writeError(w, http.StatusBadRequest, errors.New("name and value are required"))
		return
	}

	th, err := s.thresholds.Set(req.Name, *req.Value)
	if err != nil {
		if model.IsKind(err, model.KindConfig) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.Error("update threshold", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, th)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
