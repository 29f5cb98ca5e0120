package action

import "threadline.app/agent/internal/model"

// ImmovabilityBonus is the flat addition for non-negotiable items. It
// is sized to dominate the multiplicative terms at their typical
// ranges so fixed deadlines always surface.
const ImmovabilityBonus = 1000.0

const (
	maxUrgency = 10.0
	maxPain    = 10.0
)

// Score computes a candidate's priority from extracted facts. Pure and
// deterministic; importance is decided here and nowhere else.
//
//	impact   = dollar_value * urgency
//	personal = pain_factor * (days_ignored + 1)^2
//	priority = impact + personal + bonus
func Score(facts model.ScoreFacts) model.ScoreBreakdown {
	value := facts.DollarValue
	if value < 0 {
		value = 0
	}
	urgency := clamp(facts.Urgency, 0, maxUrgency)
	pain := clamp(facts.PainFactor, 0, maxPain)

	days := facts.DaysIgnored
	if days < 0 {
		days = 0
	}
	waited := float64(days + 1)

	b := model.ScoreBreakdown{
		Impact:   value * urgency,
		Personal: pain * waited * waited,
	}
	if facts.Immovable {
		b.Bonus = ImmovabilityBonus
	}
	b.Priority = b.Impact + b.Personal + b.Bonus
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
