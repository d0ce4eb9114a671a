package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Handler exposes the state machine over HTTP.
type Handler struct {
	machine *Machine
	logger  *logging.Logger
}

// NewHandler creates a new appointments handler.
func NewHandler(machine *Machine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{machine: machine, logger: logger}
}

// Routes returns a chi router mounted under /appointments.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Book)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/confirm", h.Confirm)
	r.Post("/{id}/arrival", h.RegisterArrival)
	r.Post("/{id}/reschedule", h.Reschedule)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/start", h.StartService)
	r.Post("/{id}/complete", h.Complete)
	return r
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a, err := h.machine.Book(r.Context(), in)
	if err != nil {
		h.fail(w, "book", "", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.machine.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get", id, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.machine.Confirm(r.Context(), id)
	if err != nil {
		h.fail(w, "confirm", id, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type arrivalRequest struct {
	ArrivalTime *time.Time `json:"arrival_time,omitempty"`
}

// RegisterArrival handles POST /appointments/{id}/arrival. An empty body means
// the patient arrived now.
func (h *Handler) RegisterArrival(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req arrivalRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	var at time.Time
	if req.ArrivalTime != nil {
		at = *req.ArrivalTime
	}
	res, err := h.machine.RegisterArrival(r.Context(), id, at)
	if err != nil {
		h.fail(w, "register_arrival", id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in RescheduleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.machine.Reschedule(r.Context(), id, in)
	if err != nil {
		h.fail(w, "reschedule", id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a, err := h.machine.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, "cancel", id, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) StartService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.machine.StartService(r.Context(), id)
	if err != nil {
		h.fail(w, "start_service", id, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.machine.Complete(r.Context(), id)
	if err != nil {
		h.fail(w, "complete", id, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) fail(w http.ResponseWriter, op, id string, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("appointment request failed", "operation", op, "appointment_id", id, "error", err)
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
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoCapacity):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition):
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
