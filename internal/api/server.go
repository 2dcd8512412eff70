// Package api serves stored lap runs over HTTP.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/laptime/internal/db"
	"github.com/banshee-data/laptime/internal/httputil"
	"github.com/banshee-data/laptime/internal/monitoring"
	"github.com/banshee-data/laptime/internal/version"
)

// RunStore is the read side of the run database.
type RunStore interface {
	Runs(ctx context.Context) ([]db.Run, error)
	Laps(ctx context.Context, runID string) ([]db.StoredLap, error)
	DeleteRun(ctx context.Context, runID string) error
}

// Info describes the processing setup the server was started with.
type Info struct {
	Version        string   `json:"version"`
	SampleInterval float64  `json:"sample_interval"`
	Columns        []string `json:"columns"`
	Sectors        int      `json:"sectors"`
}

type Server struct {
	store RunStore
	info  Info
}

func NewServer(store RunStore, info Info) *Server {
	if info.Version == "" {
		info.Version = version.Version
	}
	return &Server{store: store, info: info}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.RequestURI(),
			"status":  lrw.statusCode,
			"elapsed": fmt.Sprintf("%.2fms", float64(time.Since(start).Nanoseconds())/1e6),
		}).Debug("http request")
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.deleteRun)
	mux.HandleFunc("/api/runs/{id}/laps", s.listLaps)
	return mux
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.info)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	runs, err := s.store.Runs(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) listLaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.PathValue("id")
	stored, err := s.store.Laps(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve laps: %v", err))
		return
	}
	if len(stored) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no laps stored for run %s", id))
		return
	}
	httputil.WriteJSONOK(w, stored)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.PathValue("id")
	err := s.store.DeleteRun(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httputil.NotFound(w, fmt.Sprintf("run %s not found", id))
	case err != nil:
		httputil.InternalServerError(w, fmt.Sprintf("failed to delete run: %v", err))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
