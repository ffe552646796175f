package model

import (
	"time"

	"pix-subscription-billing/internal/domain"
)

// Plan identifies a purchasable premium tier. Plans are fixed; there is no
// plan CRUD in this service.
type Plan string

const (
	PlanMonthly    Plan = "monthly"
	PlanQuarterly  Plan = "quarterly"
	PlanSemiannual Plan = "semiannual"
	PlanYearly     Plan = "yearly"
	PlanLifetime   Plan = "lifetime"
)

// planDurations maps each plan to its nominal duration in days. The day
// count is recorded on the ledger row; expiry itself is computed with
// calendar arithmetic, not by adding these values.
var planDurations = map[Plan]int{
	PlanMonthly:    30,
	PlanQuarterly:  90,
	PlanSemiannual: 180,
	PlanYearly:     365,
	PlanLifetime:   36500, // modeled as 100 years rather than a "never" sentinel
}

func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if _, ok := planDurations[p]; !ok {
		return "", domain.ErrInvalidArgument
	}
	return p, nil
}

// DurationDays returns the nominal day count stored on ledger rows.
func (p Plan) DurationDays() int { return planDurations[p] }

func (p Plan) Valid() bool {
	_, ok := planDurations[p]
	return ok
}

// ExpiryFrom computes the entitlement expiry for an activation at t.
// All plans use calendar month/year addition with end-of-month clamping:
// Jan 31 + 1 month = Feb 29 in a leap year, Feb 28 otherwise, never a
// normalized date in March. Yearly additions land on the same month/day
// (Jan 31 -> Jan 31) and only clamp Feb 29 starts in non-leap years.
func (p Plan) ExpiryFrom(t time.Time) time.Time {
	switch p {
	case PlanMonthly:
		return addMonthsClamped(t, 1)
	case PlanQuarterly:
		return addMonthsClamped(t, 3)
	case PlanSemiannual:
		return addMonthsClamped(t, 6)
	case PlanYearly:
		return addMonthsClamped(t, 12)
	case PlanLifetime:
		return addMonthsClamped(t, 12*100)
	default:
		return t
	}
}

// addMonthsClamped adds months keeping the day-of-month, clamping to the
// last day of the target month when the source day does not exist there.
// time.AddDate would normalize Jan 31 + 1 month into March; that drift is
// exactly what the clamped policy avoids.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	ty := y + (int(m)-1+months)/12
	tm := time.Month((int(m)-1+months)%12 + 1)
	if last := daysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
