// Package api exposes a read-only HTTP interface over completed runs and
// checkpoints for the downstream presentation app.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/riq-labs/faculty-pipeline/internal/checkpoint"
	"github.com/riq-labs/faculty-pipeline/internal/config"
	"github.com/riq-labs/faculty-pipeline/internal/model"
)

// Server serves run results out of the checkpoint store. It never mutates
// pipeline state.
type Server struct {
	router chi.Router
	store  checkpoint.Store
	insts  map[string]config.Institution
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store checkpoint.Store, insts map[string]config.Institution) *Server {
	s := &Server{store: store, insts: insts}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Use(loggingMiddleware)

	r.Get("/healthz", s.healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/institutions", s.listInstitutions)
		r.Get("/runs", s.listRuns)
		r.Route("/institutions/{key}", func(r chi.Router) {
			r.Get("/result", s.getResult)
			r.Get("/checkpoint", s.getCheckpoint)
		})
	})
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listInstitutions(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	out := make([]entry, 0, len(s.insts))
	for _, key := range config.InstitutionKeys(s.insts) {
		out = append(out, entry{Key: key, Name: s.insts[key].Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.RunMetadata{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.institution(w, r)
	if !ok {
		return
	}
	result, err := s.store.LoadFinal(r.Context(), inst.Name)
	if err != nil {
		zap.L().Error("load result failed", zap.String("institution", inst.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load result failed")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "no completed run for institution")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.institution(w, r)
	if !ok {
		return
	}
	snap, err := s.store.Latest(r.Context(), inst.Name)
	if err != nil {
		zap.L().Error("load checkpoint failed", zap.String("institution", inst.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load checkpoint failed")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no checkpoint for institution")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"institution": snap.Institution,
		"phase":       snap.Phase,
		"status":      snap.Result.Status,
		"roster_size": len(snap.Roster),
		"saved_at":    snap.SavedAt,
	})
}

func (s *Server) institution(w http.ResponseWriter, r *http.Request) (config.Institution, bool) {
	key := chi.URLParam(r, "key")
	inst, ok := s.insts[key]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown institution")
		return config.Institution{}, false
	}
	return inst, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}
