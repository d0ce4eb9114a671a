package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
)

var automationTracer = otel.Tracer("clinicops.internal.automation")

// Outcome of a matched rule.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// LogSnapshot freezes the rule definition at run time.
type LogSnapshot struct {
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// Log is one audit record per matched rule per pass.
type Log struct {
	ID            string      `json:"id"`
	RuleID        string      `json:"rule_id"`
	RuleName      string      `json:"rule_name"`
	SubjectID     string      `json:"subject_id"`
	SubjectName   string      `json:"subject_name"`
	ActionSummary string      `json:"action_summary"`
	Outcome       Outcome     `json:"outcome"`
	Message       string      `json:"message"`
	Timestamp     time.Time   `json:"timestamp"`
	Snapshot      LogSnapshot `json:"snapshot"`
}

// Orchestrator runs every applicable rule against a subject.
type Orchestrator struct {
	gates    *Gates
	executor *Executor
	rules    RuleStore
	logs     LogStore
	metrics  *metrics.EngineMetrics
	logger   *logging.Logger
}

func NewOrchestrator(gates *Gates, executor *Executor, rules RuleStore, logs LogStore, logger *logging.Logger) *Orchestrator {
	if gates == nil || executor == nil || logs == nil {
		panic("automation: gates, executor and log store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		gates:    gates,
		executor: executor,
		rules:    rules,
		logs:     logs,
		logger:   logger,
	}
}

func (o *Orchestrator) WithMetrics(m *metrics.EngineMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// SortRules keeps active rules ordered by priority rank then declared order.
// Equal keys keep their input order.
func SortRules(rules []*Rule) []*Rule {
	active := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		ri, rj := active[i].Priority.Rank(), active[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return active[i].Order < active[j].Order
	})
	return active
}

// RunPass evaluates the rules against the subject and executes each match.
// A failing rule never stops the pass. Produced logs are appended to the log
// store and returned.
func (o *Orchestrator) RunPass(ctx context.Context, s *Subject, rules []*Rule, role string, now time.Time) []Log {
	ctx, span := automationTracer.Start(ctx, "automation.run_pass")
	defer span.End()
	span.SetAttributes(attribute.String("clinicops.subject_id", s.ID))

	start := time.Now()
	defer func() { o.metrics.ObservePassLatency(time.Since(start).Seconds()) }()

	var produced []Log
	for _, r := range SortRules(rules) {
		if !o.gates.Allow(r, s, role, now) || !ConditionsHold(r, s, now) {
			continue
		}
		res := o.executor.Execute(ctx, r, s, now)
		entry := buildLog(r, s, res, now)
		if err := o.logs.Append(ctx, entry); err != nil {
			o.logger.Error("automation log append failed", "rule_id", r.ID, "subject_id", s.ID, "error", err)
		}
		o.metrics.ObserveRuleRun(string(entry.Outcome))
		if entry.Outcome == OutcomeFailure {
			o.logger.Warn("automation rule failed", "rule_id", r.ID, "subject_id", s.ID, "error", res.Err)
		} else {
			o.logger.Debug("automation rule applied", "rule_id", r.ID, "subject_id", s.ID, "actions", len(res.Completed))
		}
		produced = append(produced, entry)
	}
	return produced
}

// RunStored runs a pass with the rules currently in the rule store.
func (o *Orchestrator) RunStored(ctx context.Context, s *Subject, role string, now time.Time) ([]Log, error) {
	if o.rules == nil {
		return nil, fmt.Errorf("automation: run stored: no rule store configured")
	}
	rules, err := o.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("automation: load rules: %w", err)
	}
	return o.RunPass(ctx, s, rules, role, now), nil
}

func buildLog(r *Rule, s *Subject, res ExecutionResult, now time.Time) Log {
	summaries := make([]string, 0, len(res.Completed))
	for _, step := range res.Completed {
		summaries = append(summaries, fmt.Sprintf("%s: %s", step.Action, step.Summary))
	}
	entry := Log{
		ID:            uuid.NewString(),
		RuleID:        r.ID,
		RuleName:      r.Name,
		SubjectID:     s.ID,
		SubjectName:   s.Name,
		ActionSummary: strings.Join(summaries, "; "),
		Outcome:       OutcomeSuccess,
		Timestamp:     now,
		Snapshot: LogSnapshot{
			Conditions: append([]Condition(nil), r.Conditions...),
			Actions:    append([]Action(nil), r.Actions...),
		},
	}
	if res.Err != nil {
		entry.Outcome = OutcomeFailure
		entry.Message = fmt.Sprintf("stopped at %s after %d of %d actions: %v", res.Failed.Type, len(res.Completed), len(r.Actions), res.Err)
		return entry
	}
	entry.Message = fmt.Sprintf("%d actions completed", len(res.Completed))
	return entry
}
