package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/sieve/internal/queryable"
	"github.com/roach88/sieve/internal/registry"
	"github.com/roach88/sieve/internal/service"
	"github.com/roach88/sieve/internal/store"
)

type handlers struct {
	svc    *service.Service
	logger *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listQueries(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]string{"queries": h.svc.Registry().Names()})
}

func (h *handlers) runQuery(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, service.RunOptions{})
}

func (h *handlers) countQuery(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, service.RunOptions{CountOnly: true})
}

func (h *handlers) run(w http.ResponseWriter, r *http.Request, opts service.RunOptions) {
	name := chi.URLParam(r, "name")
	resp, err := h.svc.Run(r.Context(), name, r.URL.Query(), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Definition: r.URL.Query().Get("definition")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		filter.Limit = n
	}

	runs, err := h.svc.History(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]store.Run{"runs": runs})
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *handlers) replay(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var noDef *registry.NoDefinitionError
	switch {
	case errors.As(err, &noDef), errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	case queryable.IsMissingSource(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
