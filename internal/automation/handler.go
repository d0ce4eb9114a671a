package automation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/http/middleware"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// AdminRole is required to create or edit rules.
const AdminRole = "admin"

// Handler exposes rule management, simulation and on-demand passes.
type Handler struct {
	rules    RuleStore
	logs     LogStore
	orch     *Orchestrator
	subjects SubjectSource
	logger   *logging.Logger
	now      func() time.Time
}

func NewHandler(rules RuleStore, logs LogStore, orch *Orchestrator, subjects SubjectSource, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{rules: rules, logs: logs, orch: orch, subjects: subjects, logger: logger, now: time.Now}
}

// Routes returns a chi router mounted under /automation.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/rules", h.ListRules)
	r.Get("/rules/{id}", h.GetRule)
	r.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireRole(AdminRole))
		admin.Post("/rules", h.CreateRule)
		admin.Put("/rules/{id}", h.UpdateRule)
	})
	r.Post("/rules/{id}/simulate", h.SimulateRule)
	r.Post("/run", h.Run)
	r.Get("/logs", h.ListLogs)
	return r
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		h.fail(w, "list rules", err)
		return
	}
	if rules == nil {
		rules = []*Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := h.now().UTC()
	rule.CreatedAt, rule.UpdatedAt = now, now
	if err := rule.Validate(); err != nil {
		h.fail(w, "create rule", err)
		return
	}
	if err := h.rules.Save(r.Context(), &rule); err != nil {
		h.fail(w, "create rule", err)
		return
	}
	h.logger.Info("automation rule created", "rule_id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.rules.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "update rule", err)
		return
	}
	var rule Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rule.ID = id
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = h.now().UTC()
	if err := rule.Validate(); err != nil {
		h.fail(w, "update rule", err)
		return
	}
	if err := h.rules.Save(r.Context(), &rule); err != nil {
		h.fail(w, "update rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type simulateRequest struct {
	Subjects []*Subject `json:"subjects,omitempty"`
}

// simulateSampleSize caps the stored subjects a dry run is scored against.
const simulateSampleSize = 500

// SimulateRule previews matches over the posted subjects, or over the first
// page from the subject source when none are posted.
func (h *Handler) SimulateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "simulate rule", err)
		return
	}
	var req simulateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	subjects := req.Subjects
	if len(subjects) == 0 && h.subjects != nil {
		subjects, err = h.subjects.ListSubjects(r.Context(), 0, simulateSampleSize)
		if err != nil {
			h.fail(w, "simulate rule", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, Simulate(rule, subjects, h.now()))
}

type runResponse struct {
	Subject *Subject `json:"subject"`
	Logs    []Log    `json:"logs"`
}

// Run executes a pass for the posted subject under the caller's role and
// persists the result when a subject source is configured.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var subject Subject
	if err := json.NewDecoder(r.Body).Decode(&subject); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(subject.ID) == "" {
		writeError(w, http.StatusBadRequest, "subject id is required")
		return
	}
	role, _ := middleware.RoleFromContext(r.Context())
	logs, err := h.orch.RunStored(r.Context(), &subject, role, h.now())
	if err != nil {
		h.fail(w, "run", err)
		return
	}
	if h.subjects != nil && len(logs) > 0 {
		if err := h.subjects.SaveSubject(r.Context(), &subject); err != nil {
			h.fail(w, "run", err)
			return
		}
	}
	if logs == nil {
		logs = []Log{}
	}
	writeJSON(w, http.StatusOK, runResponse{Subject: &subject, Logs: logs})
}

func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := LogFilter{RuleID: q.Get("rule_id"), SubjectID: q.Get("subject_id"), Limit: 100}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	logs, err := h.logs.List(r.Context(), f)
	if err != nil {
		h.fail(w, "list logs", err)
		return
	}
	if logs == nil {
		logs = []Log{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrRuleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("automation request failed", "operation", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
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
