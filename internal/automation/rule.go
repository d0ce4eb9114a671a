package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Priority orders rules within a pass.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps priority to sort order; unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// ConditionKind is the closed set of condition types.
type ConditionKind string

const (
	ConditionTimeInStatus      ConditionKind = "time-in-status"
	ConditionEstimatedValue    ConditionKind = "estimated-value"
	ConditionChannel           ConditionKind = "channel"
	ConditionTag               ConditionKind = "tag"
	ConditionStatus            ConditionKind = "status"
	ConditionBranch            ConditionKind = "branch"
	ConditionCampaign          ConditionKind = "campaign"
	ConditionService           ConditionKind = "service"
	ConditionSource            ConditionKind = "source"
	ConditionAttempts          ConditionKind = "attempts"
	ConditionDaysSinceResponse ConditionKind = "days-since-response"
	ConditionMessagingWindow   ConditionKind = "messaging-window"
	ConditionContent           ConditionKind = "content"
)

func (k ConditionKind) Valid() bool {
	switch k {
	case ConditionTimeInStatus, ConditionEstimatedValue, ConditionChannel, ConditionTag,
		ConditionStatus, ConditionBranch, ConditionCampaign, ConditionService, ConditionSource,
		ConditionAttempts, ConditionDaysSinceResponse, ConditionMessagingWindow, ConditionContent:
		return true
	}
	return false
}

// ActionKind is the closed set of action types.
type ActionKind string

const (
	ActionMoveStatus            ActionKind = "move-status"
	ActionAddTag                ActionKind = "add-tag"
	ActionRemoveTag             ActionKind = "remove-tag"
	ActionAssign                ActionKind = "assign"
	ActionSendNotification      ActionKind = "send-notification"
	ActionCreateTask            ActionKind = "create-task"
	ActionNotifySupervisor      ActionKind = "notify-supervisor"
	ActionIntegration           ActionKind = "integration"
	ActionBlockConversation     ActionKind = "block-conversation"
	ActionUnblockConversation   ActionKind = "unblock-conversation"
	ActionConfirmAppointment    ActionKind = "confirm-appointment"
	ActionRegisterArrival       ActionKind = "register-arrival"
	ActionRescheduleAppointment ActionKind = "reschedule-appointment"
)

func (k ActionKind) Valid() bool {
	switch k {
	case ActionMoveStatus, ActionAddTag, ActionRemoveTag, ActionAssign, ActionSendNotification,
		ActionCreateTask, ActionNotifySupervisor, ActionIntegration, ActionBlockConversation,
		ActionUnblockConversation, ActionConfirmAppointment, ActionRegisterArrival,
		ActionRescheduleAppointment:
		return true
	}
	return false
}

// Operator compares a subject fact against a condition value.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not-in"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not-contains"
)

// Value is a condition or action argument. JSON numbers and booleans are
// accepted and kept in their text form.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Value(s)
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = ""
	case float64:
		*v = Value(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		*v = Value(strconv.FormatBool(x))
	default:
		return fmt.Errorf("automation: unsupported value %s", string(data))
	}
	return nil
}

func (v Value) String() string { return string(v) }

// Float parses the value as a number.
func (v Value) Float() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	return f, err == nil
}

type Condition struct {
	Type     ConditionKind `json:"type"`
	Operator Operator      `json:"operator"`
	Value    Value         `json:"value"`
	Label    string        `json:"label,omitempty"`
}

type Action struct {
	Type        ActionKind `json:"type"`
	Value       Value      `json:"value"`
	Description string     `json:"description,omitempty"`
}

// Schedule restricts when a rule may fire, in the engine's local time. Days
// uses time.Weekday numbering; the window is [StartTime, EndTime) and may
// cross midnight.
type Schedule struct {
	Days      []time.Weekday `json:"days,omitempty"`
	StartTime string         `json:"start_time,omitempty"`
	EndTime   string         `json:"end_time,omitempty"`
}

// Pause target types.
const (
	PauseTargetAll     = "all"
	PauseTargetBranch  = "branch"
	PauseTargetSubject = "subject"
)

// PauseWindow suspends a rule for matching subjects during [From, To).
type PauseWindow struct {
	TargetType string    `json:"target_type,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
}

// ABTest splits send-notification messages between two variants. Ratio is
// the percentage of draws that pick VariantA.
type ABTest struct {
	Enabled  bool   `json:"enabled"`
	Ratio    int    `json:"ratio"`
	VariantA string `json:"variant_a"`
	VariantB string `json:"variant_b"`
}

// Rule is a declarative IF-THEN automation.
type Rule struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Active       bool           `json:"active"`
	Category     string         `json:"category,omitempty"`
	Priority     Priority       `json:"priority"`
	BranchScope  string         `json:"branch_scope,omitempty"`
	Schedule     *Schedule      `json:"schedule,omitempty"`
	SLAByStage   map[string]int `json:"sla_by_stage,omitempty"`
	PauseWindow  *PauseWindow   `json:"pause_window,omitempty"`
	AllowedRoles []string       `json:"allowed_roles,omitempty"`
	ABTest       *ABTest        `json:"ab_test,omitempty"`
	Conditions   []Condition    `json:"conditions"`
	Actions      []Action       `json:"actions"`
	Order        int            `json:"order"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Validate checks the rule definition before it is stored.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	switch r.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	case "":
		r.Priority = PriorityMedium
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRule, r.Priority)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidRule)
	}
	for i, c := range r.Conditions {
		if !c.Type.Valid() {
			return fmt.Errorf("%w: condition %d: unknown type %q", ErrInvalidRule, i, c.Type)
		}
	}
	for i, a := range r.Actions {
		if !a.Type.Valid() {
			return fmt.Errorf("%w: action %d: unknown type %q", ErrInvalidRule, i, a.Type)
		}
	}
	if s := r.Schedule; s != nil {
		for _, d := range s.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: schedule day %d out of range", ErrInvalidRule, d)
			}
		}
		if (s.StartTime == "") != (s.EndTime == "") {
			return fmt.Errorf("%w: schedule needs both start and end time or neither", ErrInvalidRule)
		}
		for _, clock := range []string{s.StartTime, s.EndTime} {
			if clock == "" {
				continue
			}
			if _, err := parseClock(clock); err != nil {
				return fmt.Errorf("%w: schedule time %q: %v", ErrInvalidRule, clock, err)
			}
		}
	}
	if p := r.PauseWindow; p != nil && !p.To.After(p.From) {
		return fmt.Errorf("%w: pause window must end after it starts", ErrInvalidRule)
	}
	if ab := r.ABTest; ab != nil && ab.Enabled && (ab.Ratio < 0 || ab.Ratio > 100) {
		return fmt.Errorf("%w: a/b ratio must be between 0 and 100", ErrInvalidRule)
	}
	return nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
