package live

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Handler returns the HTTP handler for the server.
//
// Routes:
//   - GET  /healthz          liveness probe
//   - GET  /cells            snapshot of every cell
//   - GET  /cells/{key}      one cell's value
//   - PUT  /cells/{key}      set one cell (JSON body is the value)
//   - POST /cells            set many cells in one batch (JSON object body)
//   - GET  /ws               WebSocket feed of snapshot + changes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/cells", s.handleSnapshot)
	r.Get("/cells/{key}", s.handleGet)
	r.Put("/cells/{key}", s.handleSet)
	r.Post("/cells", s.handleSetMany)
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap map[string]any
	err := s.do(r.Context(), "cells.snapshot", func() {
		snap = s.store.Snapshot()
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var (
		value any
		found bool
	)
	err := s.do(r.Context(), "cells.get", func() {
		if found = s.store.Has(key); found {
			value = s.store.Peek(key)
		}
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown cell: " + key})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	err := s.do(r.Context(), "cells.set", func() {
		s.store.Set(key, value)
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.logger.Debug("cell set", "key", key)
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

func (s *Server) handleSetMany(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	err := s.do(r.Context(), "cells.set_many", func() {
		s.store.SetMany(values)
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.logger.Debug("cells set", "count", len(values))
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(values)})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("request failed", "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
