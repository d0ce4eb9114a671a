package automation

import "time"

// SimulationResult previews how many subjects a rule would match.
type SimulationResult struct {
	RuleID     string   `json:"rule_id"`
	Total      int      `json:"total"`
	Matched    int      `json:"matched"`
	SubjectIDs []string `json:"subject_ids"`
}

// Simulate counts subjects whose facts satisfy the rule's conditions and
// branch scope. Activation state, schedule, pause window and roles are
// ignored, and nothing is executed.
func Simulate(r *Rule, subjects []*Subject, now time.Time) SimulationResult {
	res := SimulationResult{RuleID: r.ID, Total: len(subjects), SubjectIDs: []string{}}
	for _, s := range subjects {
		if InBranchScope(r, s) && ConditionsHold(r, s, now) {
			res.Matched++
			res.SubjectIDs = append(res.SubjectIDs, s.ID)
		}
	}
	return res
}
