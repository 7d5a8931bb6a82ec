package derivatives

import (
	"fmt"
	"strings"

	"github.com/seenimoa/chainpulse/pkg/models"
)

// StrikeDeltas compares every strike of current with the same strike in
// reference, in current's row order. A strike missing from reference gets
// nil deltas on both sides so absence is distinguishable from no change.
func StrikeDeltas(current, reference models.Snapshot) []models.StrikeDelta {
	ref := IndexSnapshot(reference)
	out := make([]models.StrikeDelta, 0, len(current.Rows))
	for _, r := range current.Rows {
		d := models.StrikeDelta{Strike: r.Strike, Key: r.Key}
		if p, ok := ref.Lookup(r.Key); ok {
			d.InReference = true
			d.Call = models.SideDelta{
				OIDelta:     sub(r.CallOI, p.CallOI),
				VolumeDelta: sub(r.CallVolume, p.CallVolume),
				PriceDelta:  sub(r.CallLastPrice, p.CallLastPrice),
			}
			d.Put = models.SideDelta{
				OIDelta:     sub(r.PutOI, p.PutOI),
				VolumeDelta: sub(r.PutVolume, p.PutVolume),
				PriceDelta:  sub(r.PutLastPrice, p.PutLastPrice),
			}
		}
		out = append(out, d)
	}
	return out
}

// ReferenceMode selects which snapshot a delta is measured against.
type ReferenceMode string

const (
	RefPrevious ReferenceMode = "previous" // the snapshot just before current
	RefStart    ReferenceMode = "start"    // the first snapshot of the series
	RefIndex    ReferenceMode = "index"    // a caller-chosen position
)

// ParseReferenceMode maps user input to a mode; empty means previous.
func ParseReferenceMode(s string) (ReferenceMode, error) {
	switch ReferenceMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RefPrevious, "prev":
		return RefPrevious, nil
	case RefStart, "session":
		return RefStart, nil
	case RefIndex:
		return RefIndex, nil
	}
	return "", fmt.Errorf("unknown reference mode %q", s)
}

// SelectReference returns the position in a series of length n that current
// should be compared against. It reports false when no distinct, in-range
// reference exists.
func SelectReference(n, current int, mode ReferenceMode, idx int) (int, bool) {
	if current < 0 || current >= n {
		return 0, false
	}
	ref := current - 1
	switch mode {
	case RefStart:
		ref = 0
	case RefIndex:
		ref = idx
	}
	if ref < 0 || ref >= n || ref == current {
		return 0, false
	}
	return ref, true
}
