package automation

import (
	"strings"
	"time"
)

// Evaluate reports whether a single condition holds for the subject at now.
// It has no side effects.
func Evaluate(s *Subject, c Condition, now time.Time) bool {
	switch c.Type {
	case ConditionTimeInStatus:
		return compareNumber(s.HoursInStatus(now), c.Operator, c.Value)
	case ConditionEstimatedValue:
		return compareNumber(s.EstimatedValue, c.Operator, c.Value)
	case ConditionChannel:
		return evalChannel(s.Channel, c.Operator, c.Value)
	case ConditionTag:
		return evalTag(s, c.Operator, c.Value)
	case ConditionStatus:
		return evalEquality(s.Status, c.Operator, c.Value)
	case ConditionBranch:
		return evalText(s.Field(FieldBranch), c.Operator, c.Value)
	case ConditionCampaign:
		return evalText(s.Field(FieldCampaign), c.Operator, c.Value)
	case ConditionService:
		return evalText(s.Field(FieldService), c.Operator, c.Value)
	case ConditionSource:
		return evalText(s.Field(FieldSource), c.Operator, c.Value)
	case ConditionAttempts:
		return compareNumber(float64(s.Attempts), c.Operator, c.Value)
	case ConditionDaysSinceResponse:
		return compareNumber(float64(s.DaysSinceResponse(now)), c.Operator, c.Value)
	case ConditionMessagingWindow:
		if !IsSocialChannel(s.Channel) {
			return true
		}
		return compareNumber(float64(s.DaysSinceResponse(now)), c.Operator, c.Value)
	case ConditionContent:
		return evalContent(s, c.Operator, c.Value)
	}
	return false
}

func compareNumber(actual float64, op Operator, v Value) bool {
	want, ok := v.Float()
	if !ok {
		return false
	}
	switch op {
	case OpGreater:
		return actual > want
	case OpGreaterEqual:
		return actual >= want
	case OpLess:
		return actual < want
	case OpLessEqual:
		return actual <= want
	case OpEqual:
		return actual == want
	case OpNotEqual:
		return actual != want
	}
	return false
}

// expandChannels splits a comma list and expands "social".
func expandChannels(v Value) []string {
	var out []string
	for _, part := range strings.Split(string(v), ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "":
		case "social":
			out = append(out, socialChannels...)
		default:
			out = append(out, part)
		}
	}
	return out
}

func evalChannel(channel string, op Operator, v Value) bool {
	member := false
	for _, c := range expandChannels(v) {
		if strings.EqualFold(channel, c) {
			member = true
			break
		}
	}
	switch op {
	case OpEqual, OpIn:
		return member
	case OpNotEqual, OpNotIn:
		return !member
	}
	return false
}

func evalTag(s *Subject, op Operator, v Value) bool {
	has := s.HasTag(strings.TrimSpace(string(v)))
	switch op {
	case OpContains, OpEqual:
		return has
	case OpNotContains, OpNotEqual:
		return !has
	}
	return false
}

func evalEquality(actual string, op Operator, v Value) bool {
	eq := strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(string(v)))
	switch op {
	case OpEqual:
		return eq
	case OpNotEqual:
		return !eq
	}
	return false
}

func evalText(actual string, op Operator, v Value) bool {
	if op == OpContains {
		needle := strings.ToLower(strings.TrimSpace(string(v)))
		return needle != "" && strings.Contains(strings.ToLower(actual), needle)
	}
	return evalEquality(actual, op, v)
}

func evalContent(s *Subject, op Operator, v Value) bool {
	keyword := strings.ToLower(strings.TrimSpace(string(v)))
	if keyword == "" {
		return false
	}
	haystack := strings.ToLower(s.Notes + " " + strings.Join(s.Tags, " "))
	found := strings.Contains(haystack, keyword)
	switch op {
	case OpContains:
		return found
	case OpNotContains:
		return !found
	}
	return false
}

// Gates holds the rule-level checks that apply in addition to conditions.
type Gates struct {
	loc *time.Location
}

// NewGates evaluates schedules in loc.
func NewGates(loc *time.Location) *Gates {
	if loc == nil {
		loc = time.UTC
	}
	return &Gates{loc: loc}
}

// Allow reports whether schedule, pause window, role and branch scope all
// permit the rule to run for the subject.
func (g *Gates) Allow(r *Rule, s *Subject, role string, now time.Time) bool {
	return g.InSchedule(r.Schedule, now) &&
		!Paused(r.PauseWindow, s, now) &&
		RoleAllowed(r.AllowedRoles, role) &&
		InBranchScope(r, s)
}

// InSchedule checks the weekday whitelist and [start, end) minute window. A
// nil or empty schedule always passes. A missing start or end bound stands for
// the start or end of the day.
func (g *Gates) InSchedule(sch *Schedule, now time.Time) bool {
	if sch == nil {
		return true
	}
	local := now.In(g.loc)
	if len(sch.Days) > 0 {
		found := false
		for _, d := range sch.Days {
			if d == local.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if sch.StartTime == "" && sch.EndTime == "" {
		return true
	}
	start, end := 0, 24*60
	var err error
	if sch.StartTime != "" {
		if start, err = parseClock(sch.StartTime); err != nil {
			return false
		}
	}
	if sch.EndTime != "" {
		if end, err = parseClock(sch.EndTime); err != nil {
			return false
		}
	}
	minutes := local.Hour()*60 + local.Minute()
	if start == end {
		return true
	}
	if start < end {
		return minutes >= start && minutes < end
	}
	// Window crosses midnight.
	return minutes >= start || minutes < end
}

// Paused reports whether an active pause window targets the subject.
func Paused(p *PauseWindow, s *Subject, now time.Time) bool {
	if p == nil || now.Before(p.From) || !now.Before(p.To) {
		return false
	}
	switch p.TargetType {
	case "", PauseTargetAll:
		return true
	case PauseTargetBranch:
		return strings.EqualFold(s.Field(FieldBranch), p.TargetID)
	case PauseTargetSubject:
		return s.ID == p.TargetID
	}
	return false
}

// RoleAllowed treats an empty list as unrestricted.
func RoleAllowed(allowed []string, role string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// InBranchScope requires the subject branch to equal the rule scope when set.
func InBranchScope(r *Rule, s *Subject) bool {
	if strings.TrimSpace(r.BranchScope) == "" {
		return true
	}
	return strings.EqualFold(s.Field(FieldBranch), r.BranchScope)
}

// ConditionsHold reports whether every condition of the rule holds. A rule
// without conditions always matches.
func ConditionsHold(r *Rule, s *Subject, now time.Time) bool {
	for _, c := range r.Conditions {
		if !Evaluate(s, c, now) {
			return false
		}
	}
	return true
}
