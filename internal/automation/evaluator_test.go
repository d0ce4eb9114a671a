package automation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := evalNow.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func baseSubject() *Subject {
	return &Subject{
		ID:              "lead-1",
		Name:            "Ana Torres",
		Kind:            SubjectLead,
		Status:          "new",
		StatusChangedAt: evalNow.Add(-30 * time.Hour),
		Channel:         "whatsapp",
		Tags:            []string{"VIP", "Ortho"},
		Notes:           "Asked about braces pricing",
		EstimatedValue:  1200,
		Attempts:        2,
		LastContactAt:   daysAgo(3),
		CustomFields: map[string]string{
			FieldBranch:   "centro",
			FieldCampaign: "spring-smile",
			FieldService:  "orthodontics",
			FieldSource:   "landing-page",
		},
		CreatedAt: evalNow.Add(-72 * time.Hour),
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Subject)
		cond   Condition
		want   bool
	}{
		{name: "time in status above threshold", cond: Condition{Type: ConditionTimeInStatus, Operator: OpGreater, Value: "24"}, want: true},
		{name: "time in status below threshold", cond: Condition{Type: ConditionTimeInStatus, Operator: OpGreater, Value: "48"}, want: false},
		{
			name:   "time in status falls back to creation",
			mutate: func(s *Subject) { s.StatusChangedAt = time.Time{} },
			cond:   Condition{Type: ConditionTimeInStatus, Operator: OpGreaterEqual, Value: "72"},
			want:   true,
		},
		{name: "estimated value", cond: Condition{Type: ConditionEstimatedValue, Operator: OpGreaterEqual, Value: "1200"}, want: true},
		{name: "non numeric value never matches", cond: Condition{Type: ConditionEstimatedValue, Operator: OpGreater, Value: "lots"}, want: false},
		{name: "channel equals", cond: Condition{Type: ConditionChannel, Operator: OpEqual, Value: "WhatsApp"}, want: true},
		{name: "channel in list", cond: Condition{Type: ConditionChannel, Operator: OpIn, Value: "email, whatsapp"}, want: true},
		{name: "channel not in social", cond: Condition{Type: ConditionChannel, Operator: OpNotIn, Value: "social"}, want: true},
		{
			name:   "social expands to instagram",
			mutate: func(s *Subject) { s.Channel = "instagram" },
			cond:   Condition{Type: ConditionChannel, Operator: OpIn, Value: "social"},
			want:   true,
		},
		{name: "tag contains ignores case", cond: Condition{Type: ConditionTag, Operator: OpContains, Value: "vip"}, want: true},
		{name: "tag not contains", cond: Condition{Type: ConditionTag, Operator: OpNotContains, Value: "Lead"}, want: true},
		{name: "status equals", cond: Condition{Type: ConditionStatus, Operator: OpEqual, Value: "new"}, want: true},
		{name: "status not equals", cond: Condition{Type: ConditionStatus, Operator: OpNotEqual, Value: "new"}, want: false},
		{name: "branch equals", cond: Condition{Type: ConditionBranch, Operator: OpEqual, Value: "Centro"}, want: true},
		{name: "campaign contains", cond: Condition{Type: ConditionCampaign, Operator: OpContains, Value: "smile"}, want: true},
		{name: "service equals", cond: Condition{Type: ConditionService, Operator: OpEqual, Value: "whitening"}, want: false},
		{name: "source equals", cond: Condition{Type: ConditionSource, Operator: OpEqual, Value: "landing-page"}, want: true},
		{name: "attempts below", cond: Condition{Type: ConditionAttempts, Operator: OpLess, Value: "3"}, want: true},
		{name: "days since response", cond: Condition{Type: ConditionDaysSinceResponse, Operator: OpEqual, Value: "3"}, want: true},
		{
			name:   "days since response without contact uses creation",
			mutate: func(s *Subject) { s.LastContactAt = nil },
			cond:   Condition{Type: ConditionDaysSinceResponse, Operator: OpEqual, Value: "3"},
			want:   true,
		},
		{
			name:   "messaging window ignores non social channels",
			mutate: func(s *Subject) { s.Channel = "email"; s.LastContactAt = daysAgo(10) },
			cond:   Condition{Type: ConditionMessagingWindow, Operator: OpLessEqual, Value: "7"},
			want:   true,
		},
		{
			name:   "messaging window closed on facebook",
			mutate: func(s *Subject) { s.Channel = "facebook"; s.LastContactAt = daysAgo(10) },
			cond:   Condition{Type: ConditionMessagingWindow, Operator: OpLessEqual, Value: "7"},
			want:   false,
		},
		{
			name:   "messaging window open on facebook",
			mutate: func(s *Subject) { s.Channel = "facebook"; s.LastContactAt = daysAgo(7) },
			cond:   Condition{Type: ConditionMessagingWindow, Operator: OpLessEqual, Value: "7"},
			want:   true,
		},
		{name: "content in notes", cond: Condition{Type: ConditionContent, Operator: OpContains, Value: "PRICING"}, want: true},
		{name: "content in tags", cond: Condition{Type: ConditionContent, Operator: OpContains, Value: "ortho"}, want: true},
		{name: "content absent", cond: Condition{Type: ConditionContent, Operator: OpNotContains, Value: "refund"}, want: true},
		{name: "unknown condition", cond: Condition{Type: "weather", Operator: OpEqual, Value: "sunny"}, want: false},
		{name: "unsupported operator", cond: Condition{Type: ConditionStatus, Operator: OpGreater, Value: "new"}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := baseSubject()
			if tc.mutate != nil {
				tc.mutate(s)
			}
			before := s.Clone()
			assert.Equal(t, tc.want, Evaluate(s, tc.cond, evalNow))
			assert.Equal(t, before, s, "evaluation must not mutate the subject")
		})
	}
}

func TestConditionsHold(t *testing.T) {
	s := baseSubject()
	r := &Rule{Conditions: []Condition{
		{Type: ConditionStatus, Operator: OpEqual, Value: "new"},
		{Type: ConditionAttempts, Operator: OpGreater, Value: "5"},
	}}
	assert.False(t, ConditionsHold(r, s, evalNow))

	r.Conditions = r.Conditions[:1]
	assert.True(t, ConditionsHold(r, s, evalNow))

	assert.True(t, ConditionsHold(&Rule{}, s, evalNow), "rule without conditions always matches")
}

func TestGatesInSchedule(t *testing.T) {
	g := NewGates(time.UTC)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC) } // Tuesday

	t.Run("nil schedule passes", func(t *testing.T) {
		assert.True(t, g.InSchedule(nil, at(3, 0)))
	})

	t.Run("day whitelist", func(t *testing.T) {
		sch := &Schedule{Days: []time.Weekday{time.Monday, time.Wednesday}}
		assert.False(t, g.InSchedule(sch, at(10, 0)))
		sch.Days = append(sch.Days, time.Tuesday)
		assert.True(t, g.InSchedule(sch, at(10, 0)))
	})

	t.Run("daytime window is half open", func(t *testing.T) {
		sch := &Schedule{StartTime: "09:00", EndTime: "17:00"}
		assert.False(t, g.InSchedule(sch, at(8, 59)))
		assert.True(t, g.InSchedule(sch, at(9, 0)))
		assert.True(t, g.InSchedule(sch, at(16, 59)))
		assert.False(t, g.InSchedule(sch, at(17, 0)))
	})

	t.Run("window crossing midnight", func(t *testing.T) {
		sch := &Schedule{StartTime: "22:00", EndTime: "06:00"}
		assert.True(t, g.InSchedule(sch, at(23, 30)))
		assert.True(t, g.InSchedule(sch, at(5, 59)))
		assert.False(t, g.InSchedule(sch, at(6, 0)))
		assert.False(t, g.InSchedule(sch, at(12, 0)))
	})

	t.Run("equal bounds are always open", func(t *testing.T) {
		assert.True(t, g.InSchedule(&Schedule{StartTime: "08:00", EndTime: "08:00"}, at(20, 0)))
	})

	t.Run("missing bound stands for the day edge", func(t *testing.T) {
		from := &Schedule{StartTime: "09:00"}
		assert.False(t, g.InSchedule(from, at(8, 59)))
		assert.True(t, g.InSchedule(from, at(12, 0)))
		assert.True(t, g.InSchedule(from, at(23, 59)))

		until := &Schedule{EndTime: "17:00"}
		assert.True(t, g.InSchedule(until, at(0, 0)))
		assert.False(t, g.InSchedule(until, at(17, 0)))
	})

	t.Run("schedule is read in the engine location", func(t *testing.T) {
		local := NewGates(time.FixedZone("CST", -6*60*60))
		sch := &Schedule{StartTime: "09:00", EndTime: "17:00"}
		// 16:00 UTC is 10:00 CST.
		assert.True(t, local.InSchedule(sch, at(16, 0)))
		assert.False(t, local.InSchedule(sch, at(10, 0)))
	})
}

func TestPaused(t *testing.T) {
	s := baseSubject()
	window := func(target, id string) *PauseWindow {
		return &PauseWindow{TargetType: target, TargetID: id, From: evalNow.Add(-time.Hour), To: evalNow.Add(time.Hour)}
	}

	assert.False(t, Paused(nil, s, evalNow))
	assert.True(t, Paused(window(PauseTargetAll, ""), s, evalNow))
	assert.True(t, Paused(window(PauseTargetBranch, "CENTRO"), s, evalNow))
	assert.False(t, Paused(window(PauseTargetBranch, "norte"), s, evalNow))
	assert.True(t, Paused(window(PauseTargetSubject, "lead-1"), s, evalNow))
	assert.False(t, Paused(window(PauseTargetSubject, "lead-2"), s, evalNow))

	expired := window(PauseTargetAll, "")
	assert.False(t, Paused(expired, s, expired.To), "end of window is exclusive")
}

func TestGatesAllow(t *testing.T) {
	g := NewGates(time.UTC)
	s := baseSubject()

	assert.True(t, g.Allow(&Rule{}, s, "agent", evalNow))
	assert.False(t, g.Allow(&Rule{AllowedRoles: []string{"admin"}}, s, "agent", evalNow))
	assert.True(t, g.Allow(&Rule{AllowedRoles: []string{"Admin", "agent"}}, s, "AGENT", evalNow))
	assert.False(t, g.Allow(&Rule{BranchScope: "norte"}, s, "agent", evalNow))
	assert.True(t, g.Allow(&Rule{BranchScope: "centro"}, s, "agent", evalNow))
}

func TestValueUnmarshalAcceptsNumbers(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"type":"attempts","operator":">","value":3}`), &c))
	assert.Equal(t, Value("3"), c.Value)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"attempts","operator":">","value":true}`), &c))
	assert.Equal(t, Value("true"), c.Value)

	assert.Error(t, json.Unmarshal([]byte(`{"value":{"nested":1}}`), &c))
}

func TestRuleValidate(t *testing.T) {
	valid := func() *Rule {
		return &Rule{Name: "Welcome", Actions: []Action{{Type: ActionAddTag, Value: "Lead"}}}
	}

	r := valid()
	require.NoError(t, r.Validate())
	assert.Equal(t, PriorityMedium, r.Priority)

	cases := map[string]func(r *Rule){
		"missing name":        func(r *Rule) { r.Name = " " },
		"no actions":          func(r *Rule) { r.Actions = nil },
		"unknown priority":    func(r *Rule) { r.Priority = "urgent" },
		"unknown condition":   func(r *Rule) { r.Conditions = []Condition{{Type: "weather"}} },
		"unknown action":      func(r *Rule) { r.Actions = []Action{{Type: "teleport"}} },
		"bad schedule clock":  func(r *Rule) { r.Schedule = &Schedule{StartTime: "25:00", EndTime: "06:00"} },
		"start without end":   func(r *Rule) { r.Schedule = &Schedule{StartTime: "09:00"} },
		"end without start":   func(r *Rule) { r.Schedule = &Schedule{EndTime: "17:00"} },
		"inverted pause":      func(r *Rule) { r.PauseWindow = &PauseWindow{From: evalNow, To: evalNow.Add(-time.Hour)} },
		"ab ratio over range": func(r *Rule) { r.ABTest = &ABTest{Enabled: true, Ratio: 120} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := valid()
			mutate(r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRule)
		})
	}
}
