package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nikicat/extimer-bridge/internal/logging"
	"github.com/nikicat/extimer-bridge/internal/timer"
)

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	ext   Extension
	timer Timer
	calls *logging.Logger
}

// NewHandlers creates handlers for ext and t. A nil calls logger logs
// through slog.Default.
func NewHandlers(ext Extension, t Timer, calls *logging.Logger) *Handlers {
	if calls == nil {
		calls = logging.New(nil, "api")
	}
	return &Handlers{ext: ext, timer: t, calls: calls}
}

// HandleStatus handles GET /api/v1/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, statusOf(h.ext))
}

// HandleTimer handles GET /api/v1/timer.
func (h *Handlers) HandleTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := h.timer.Snapshot(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, snap)
}

// HandleTimerCall handles POST /api/v1/timer/{method}.
func (h *Handlers) HandleTimerCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	method := r.PathValue("method")
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := timer.Invoke(r.Context(), h.timer, method, req.Args)
	h.calls.LogCall(r.Context(), method, req.Args, err)

	switch {
	case err == nil:
		writeJSON(w, ActionResponse{Status: "ok"})
	case errors.Is(err, timer.ErrUnknownMethod):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, timer.ErrBadArguments):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeError(w, err.Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
