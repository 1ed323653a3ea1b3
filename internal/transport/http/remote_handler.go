package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/logging"
	"chapter-quiz-service/internal/remote"
)

const maxBodyBytes = 1 << 20

// RemoteHandler serves the remote progress store API.
type RemoteHandler struct {
	service    *remote.Service
	adminToken string
	logger     *slog.Logger
}

func NewRemoteHandler(service *remote.Service, adminToken string, logger *slog.Logger) *RemoteHandler {
	return &RemoteHandler{service: service, adminToken: adminToken, logger: logging.OrDefault(logger)}
}

// Register mounts the API routes on mux.
func (h *RemoteHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/attempts", h.submitAttempt)
	mux.HandleFunc("POST /api/sync", h.bulkSync)
	mux.HandleFunc("GET /api/progress", h.progress)
	mux.HandleFunc("POST /api/merge", h.merge)
	mux.HandleFunc("GET /api/admin/records", h.requireAdmin(h.records))
}

type errorBody struct {
	Error   string                  `json:"error"`
	Details remote.ValidationErrors `json:"details,omitempty"`
}

func (h *RemoteHandler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	var sub domain.AttemptSubmission
	if !h.decode(w, r, &sub) {
		return
	}
	if err := h.service.SubmitAttempt(r.Context(), sub); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *RemoteHandler) bulkSync(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncRequest
	if !h.decode(w, r, &req) {
		return
	}
	report, err := h.service.BulkSync(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *RemoteHandler) progress(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Progress(r.Context(), r.URL.Query().Get("identity"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RemoteHandler) merge(w http.ResponseWriter, r *http.Request) {
	var req domain.MergeRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.Merge(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RemoteHandler) records(w http.ResponseWriter, r *http.Request) {
	if identity := r.URL.Query().Get("identity"); identity != "" {
		rec, err := h.service.Record(r.Context(), identity)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	recs, err := h.service.Records(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *RemoteHandler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if h.adminToken == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: domain.ErrUnauthorized.Error()})
			return
		}
		next(w, r)
	}
}

func (h *RemoteHandler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (h *RemoteHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs remote.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verrs.Error(), Details: verrs})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		h.logger.Error("remote api request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
