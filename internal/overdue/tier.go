package overdue

// Tier ranks how urgent a reminder is. It never changes assignment state.
type Tier string

const (
	TierNone     Tier = "none"
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

var tierRank = map[Tier]int{
	TierNone:     0,
	TierLow:      1,
	TierMedium:   2,
	TierHigh:     3,
	TierCritical: 4,
}

// TierFor maps whole days overdue to an escalation tier.
func TierFor(daysOverdue int) Tier {
	switch {
	case daysOverdue <= 0:
		return TierNone
	case daysOverdue <= 3:
		return TierLow
	case daysOverdue <= 7:
		return TierMedium
	case daysOverdue <= 14:
		return TierHigh
	default:
		return TierCritical
	}
}

func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// AtLeast reports whether t is as urgent as min.
func (t Tier) AtLeast(min Tier) bool {
	return tierRank[t] >= tierRank[min]
}
