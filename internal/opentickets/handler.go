package opentickets

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Handler exposes ticket operations over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns a chi router mounted under /open-tickets.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Issue)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/convert", h.Convert)
	r.Post("/{id}/survey", h.Survey)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var in IssueInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, err := h.svc.Issue(r.Context(), in)
	if err != nil {
		h.fail(w, "issue", "", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get", id, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in ConvertInput
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	res, err := h.svc.ConvertToAppointment(r.Context(), id, in)
	if err != nil {
		h.fail(w, "convert", id, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) Survey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in SurveyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, err := h.svc.RecordSurvey(r.Context(), id, in)
	if err != nil {
		h.fail(w, "survey", id, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	t, err := h.svc.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, "cancel", id, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) fail(w http.ResponseWriter, op, id string, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("open ticket request failed", "operation", op, "ticket_id", id, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// StatusCode maps package errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownPatient):
		return http.StatusBadRequest
	case errors.Is(err, ErrSurveyAlreadyRecorded), errors.Is(err, ErrCannotCancelUsedTicket):
		return http.StatusConflict
	case errors.Is(err, ErrTicketNotUsable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
