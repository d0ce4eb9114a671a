package appointments

// PromotionOutcome is reported to callers of Reschedule so the front end can
// explain a lost promotion.
type PromotionOutcome struct {
	PromotionLost bool  `json:"promotion_lost"`
	OldPriceCents int64 `json:"old_price_cents"`
	NewPriceCents int64 `json:"new_price_cents"`
}

// applyReschedulePolicy mutates price and promotion fields for one reschedule.
// The first move keeps a promotion; any later move drops it and resets the
// price to the regular price.
func applyReschedulePolicy(a *Appointment) PromotionOutcome {
	out := PromotionOutcome{OldPriceCents: a.CostCents}
	if a.RescheduleCount == 0 {
		a.RescheduleCount = 1
		out.NewPriceCents = a.CostCents
		return out
	}

	out.PromotionLost = a.PromotionApplied
	a.PromotionApplied = false
	if a.RegularPriceCents > 0 {
		a.CostCents = a.RegularPriceCents
	}
	a.RescheduleCount++
	out.NewPriceCents = a.CostCents
	return out
}
