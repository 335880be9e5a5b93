package dashboard

// Tier buckets dashboard events by how essential they are to an operator
// watching the ring, the same classify-into-interest-tiers shape as the
// teacher's networking.TierManager - but without any spatial distance math,
// since ring entities (robots, flavours) have no position to measure. A
// client subscribes with the lowest tier it wants (?tier=summary|detail|
// trace) and receives every event at or below that tier.
type Tier int

const (
	// TierSummary covers ring-shape-changing events: robot join/leave,
	// order confirmed/cancelled. The default tier for an unspecified
	// subscription.
	TierSummary Tier = iota
	// TierDetail adds token circulation and healing events.
	TierDetail
	// TierTrace adds every event the ring emits, including stash events,
	// intended for debugging rather than routine operation.
	TierTrace
)

func parseTierParam(raw string) Tier {
	switch raw {
	case "detail":
		return TierDetail
	case "trace":
		return TierTrace
	default:
		return TierSummary
	}
}

// TierManager classifies event kinds into tiers. It holds no per-client
// state - the teacher's TierManager recomputes per-observer visibility
// buckets from distance, but ring events have no observer-relative
// quantity to recompute, so the mapping here is a static table instead.
type TierManager struct {
	kindTiers map[string]Tier
}

// NewTierManager builds the default ring event-kind to tier mapping.
func NewTierManager() *TierManager {
	return &TierManager{
		kindTiers: map[string]Tier{
			"robot_joined":      TierSummary,
			"robot_left":        TierSummary,
			"order_confirmed":   TierSummary,
			"order_cancelled":   TierSummary,
			"order_rejected":    TierSummary,
			"order_intake":      TierDetail,
			"token_received":    TierDetail,
			"token_forwarded":   TierDetail,
			"healing_triggered": TierDetail,
			"end_of_use":        TierTrace,
			"token_stashed":     TierTrace,
		},
	}
}

// Classify reports the tier an event kind belongs to, defaulting to
// TierTrace for unrecognised kinds so nothing is hidden by omission.
func (m *TierManager) Classify(kind string) Tier {
	tier, ok := m.kindTiers[kind]
	if !ok {
		return TierTrace
	}
	return tier
}
