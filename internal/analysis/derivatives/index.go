package derivatives

import "github.com/seenimoa/chainpulse/pkg/models"

// Totals are chain-wide sums; a nil value contributes nothing.
type Totals struct {
	CallOI     float64 `json:"call_oi"`
	PutOI      float64 `json:"put_oi"`
	CallVolume float64 `json:"call_volume"`
	PutVolume  float64 `json:"put_volume"`
}

// Index is a strike-keyed lookup over one snapshot plus its totals.
type Index struct {
	ByStrike map[string]models.StrikeRow
	Totals   Totals
}

// IndexSnapshot builds the lookup for s. When the source repeats a strike
// the last row wins for lookups; totals still count every row.
func IndexSnapshot(s models.Snapshot) Index {
	idx := Index{ByStrike: make(map[string]models.StrikeRow, len(s.Rows))}
	for _, r := range s.Rows {
		idx.ByStrike[r.Key] = r
		idx.Totals.CallOI += orZero(r.CallOI)
		idx.Totals.PutOI += orZero(r.PutOI)
		idx.Totals.CallVolume += orZero(r.CallVolume)
		idx.Totals.PutVolume += orZero(r.PutVolume)
	}
	return idx
}

// Lookup returns the row for key, if present.
func (i Index) Lookup(key string) (models.StrikeRow, bool) {
	r, ok := i.ByStrike[key]
	return r, ok
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// sub returns a-b, or nil when either operand is missing.
func sub(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := *a - *b
	return &d
}
