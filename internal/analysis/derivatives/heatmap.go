package derivatives

import (
	"math"

	"github.com/seenimoa/chainpulse/pkg/models"
)

// ATMStrike returns the strike nearest to spot; the first row wins ties.
// It returns nil when spot is not positive or s has no rows.
func ATMStrike(s models.Snapshot, spot float64) *float64 {
	if spot <= 0 || len(s.Rows) == 0 {
		return nil
	}
	best := s.Rows[0].Strike
	bestDiff := math.Abs(best - spot)
	for _, r := range s.Rows[1:] {
		if d := math.Abs(r.Strike - spot); d < bestDiff {
			best, bestDiff = r.Strike, d
		}
	}
	return &best
}

// intensity scales |v| into [0, 1] against the largest move.
func intensity(v *float64, maxAbs float64) float64 {
	if v == nil || maxAbs == 0 {
		return 0
	}
	return math.Min(1, math.Abs(*v)/maxAbs)
}

// Heatmap lays out per-strike OI changes and build-up signals between
// reference and current. Intensities are relative to the largest absolute
// OI change on either side. A positive spot marks the ATM strike.
func Heatmap(current, reference models.Snapshot, spot float64) models.Heatmap {
	deltas := StrikeDeltas(current, reference)
	h := models.Heatmap{
		From:      reference.Timestamp,
		To:        current.Timestamp,
		ATMStrike: ATMStrike(current, spot),
		Cells:     make([]models.HeatCell, len(deltas)),
	}
	for _, d := range deltas {
		h.MaxAbsOI = math.Max(h.MaxAbsOI, math.Abs(orZero(d.Call.OIDelta)))
		h.MaxAbsOI = math.Max(h.MaxAbsOI, math.Abs(orZero(d.Put.OIDelta)))
	}
	for i, d := range deltas {
		h.Cells[i] = models.HeatCell{
			Key:            d.Key,
			Strike:         d.Strike,
			ATM:            h.ATMStrike != nil && d.Strike == *h.ATMStrike,
			CallOIDelta:    d.Call.OIDelta,
			CallPriceDelta: d.Call.PriceDelta,
			CallIntensity:  intensity(d.Call.OIDelta, h.MaxAbsOI),
			CallSignal:     ClassifyStrike(d.Call.PriceDelta, d.Call.OIDelta),
			PutOIDelta:     d.Put.OIDelta,
			PutPriceDelta:  d.Put.PriceDelta,
			PutIntensity:   intensity(d.Put.OIDelta, h.MaxAbsOI),
			PutSignal:      ClassifyStrike(d.Put.PriceDelta, d.Put.OIDelta),
		}
	}
	return h
}
