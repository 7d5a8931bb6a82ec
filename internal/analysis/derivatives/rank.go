package derivatives

import (
	"sort"

	"github.com/seenimoa/chainpulse/pkg/models"
)

// Rank orders the strikes of one side by OI, highest first. Strikes with no
// OI are left out; equal OI keeps the snapshot's row order. Ranks are 1-based.
func Rank(s models.Snapshot, side models.Side) []models.RankEntry {
	out := make([]models.RankEntry, 0, len(s.Rows))
	for _, r := range s.Rows {
		oi := r.OI(side)
		if oi == nil {
			continue
		}
		out = append(out, models.RankEntry{Key: r.Key, Strike: r.Strike, OI: *oi})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OI > out[j].OI })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// rankMap indexes ranks by strike key; on duplicate keys the better rank
// (first seen) stays.
func rankMap(entries []models.RankEntry) map[string]int {
	m := make(map[string]int, len(entries))
	for _, e := range entries {
		if _, ok := m[e.Key]; !ok {
			m[e.Key] = e.Rank
		}
	}
	return m
}

// RankDeltas ranks both snapshots independently and returns
// referenceRank - currentRank for strikes ranked in both. Positive means the
// strike climbed. Strikes ranked in only one snapshot have no entry.
func RankDeltas(current, reference models.Snapshot, side models.Side) map[string]int {
	cur := rankMap(Rank(current, side))
	ref := rankMap(Rank(reference, side))
	out := make(map[string]int, len(cur))
	for k, c := range cur {
		if p, ok := ref[k]; ok {
			out[k] = p - c
		}
	}
	return out
}
