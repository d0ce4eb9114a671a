package appointments

import "time"

// ArrivalOutcome classifies lateness at check-in.
type ArrivalOutcome string

const (
	ArrivalOnTime              ArrivalOutcome = "on_time"
	ArrivalLateWithinTolerance ArrivalOutcome = "late_within_tolerance"
	ArrivalWaitlisted          ArrivalOutcome = "waitlisted"
)

// DefaultArrivalTolerance is the inclusive grace period after the scheduled time.
const DefaultArrivalTolerance = 15 * time.Minute

// ArrivalResult is returned by RegisterArrival.
type ArrivalResult struct {
	Appointment     *Appointment   `json:"appointment"`
	Outcome         ArrivalOutcome `json:"outcome"`
	LatenessMinutes int            `json:"lateness_minutes"`
}

// latenessMinutes truncates toward zero, so 15m59s counts as 15.
func latenessMinutes(scheduled, arrival time.Time) int {
	return int(arrival.Sub(scheduled) / time.Minute)
}

func classifyArrival(lateness int, tolerance time.Duration) ArrivalOutcome {
	switch {
	case lateness <= 0:
		return ArrivalOnTime
	case lateness <= int(tolerance/time.Minute):
		return ArrivalLateWithinTolerance
	default:
		return ArrivalWaitlisted
	}
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
