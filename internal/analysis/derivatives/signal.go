package derivatives

import "github.com/seenimoa/chainpulse/pkg/models"

// ClassifyStrike reads one strike side's move from the signs of its price
// and OI changes. A missing input gives NoData; a zero on either axis gives
// Neutral.
func ClassifyStrike(priceDelta, oiDelta *float64) models.Signal {
	if priceDelta == nil || oiDelta == nil {
		return models.NoData
	}
	p, oi := *priceDelta, *oiDelta
	switch {
	case p > 0 && oi > 0:
		return models.LongBuildUp
	case p < 0 && oi > 0:
		return models.ShortBuildUp
	case p > 0 && oi < 0:
		return models.ShortCovering
	case p < 0 && oi < 0:
		return models.LongUnwinding
	}
	return models.Neutral
}

// StrikeSignals classifies both sides of every strike in current against
// reference, in current's row order.
func StrikeSignals(current, reference models.Snapshot) []models.StrikeSignal {
	deltas := StrikeDeltas(current, reference)
	out := make([]models.StrikeSignal, len(deltas))
	for i, d := range deltas {
		out[i] = models.StrikeSignal{
			Key:        d.Key,
			Strike:     d.Strike,
			CallSignal: ClassifyStrike(d.Call.PriceDelta, d.Call.OIDelta),
			PutSignal:  ClassifyStrike(d.Put.PriceDelta, d.Put.OIDelta),
		}
	}
	return out
}
