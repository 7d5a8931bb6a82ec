package derivatives

import (
	"math"
	"sort"

	"github.com/seenimoa/chainpulse/pkg/models"
)

// FlowConfig bounds the flow-shift tables.
type FlowConfig struct {
	TopN         int     `json:"top_n" mapstructure:"top_n" yaml:"top_n"`
	MinAbsChange float64 `json:"min_abs_change" mapstructure:"min_abs_change" yaml:"min_abs_change"`
}

// DefaultFlowConfig keeps eight rows per table and ignores OI moves under
// one thousand contracts.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{TopN: 8, MinAbsChange: 1000}
}

// flowRows builds one FlowRow per strike of current for the given side.
func flowRows(current, reference models.Snapshot, side models.Side) []models.FlowRow {
	ref := IndexSnapshot(reference)
	nowRanks := rankMap(Rank(current, side))
	prevRanks := rankMap(Rank(reference, side))

	out := make([]models.FlowRow, 0, len(current.Rows))
	for _, r := range current.Rows {
		row := models.FlowRow{
			Key:    r.Key,
			Strike: r.Strike,
			Side:   side,
			OINow:  r.OI(side),
			VolNow: r.Volume(side),
			LTPNow: r.LastPrice(side),
		}
		if p, ok := ref.Lookup(r.Key); ok {
			row.OIPrev = p.OI(side)
			row.VolPrev = p.Volume(side)
			row.LTPPrev = p.LastPrice(side)
		}
		row.OIDelta = sub(row.OINow, row.OIPrev)
		row.VolDelta = sub(row.VolNow, row.VolPrev)
		row.LTPDelta = sub(row.LTPNow, row.LTPPrev)

		if n, ok := nowRanks[r.Key]; ok {
			row.NowRank = intPtr(n)
		}
		if p, ok := prevRanks[r.Key]; ok {
			row.PrevRank = intPtr(p)
		}
		if row.NowRank != nil && row.PrevRank != nil {
			row.RankDelta = intPtr(*row.PrevRank - *row.NowRank)
		}
		out = append(out, row)
	}
	return out
}

func intPtr(v int) *int { return &v }

// pick filters rows, sorts the survivors stably and keeps the first n.
func pick(rows []models.FlowRow, keep func(models.FlowRow) bool, less func(a, b models.FlowRow) bool, n int) []models.FlowRow {
	out := make([]models.FlowRow, 0)
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func sideTables(rows []models.FlowRow, cfg FlowConfig) models.FlowTables {
	return models.FlowTables{
		Inflows: pick(rows,
			func(r models.FlowRow) bool { return r.OIDelta != nil && *r.OIDelta > 0 && *r.OIDelta >= cfg.MinAbsChange },
			func(a, b models.FlowRow) bool { return *a.OIDelta > *b.OIDelta }, cfg.TopN),
		Outflows: pick(rows,
			func(r models.FlowRow) bool { return r.OIDelta != nil && *r.OIDelta < 0 && -*r.OIDelta >= cfg.MinAbsChange },
			func(a, b models.FlowRow) bool { return *a.OIDelta < *b.OIDelta }, cfg.TopN),
		VolumeSpikes: pick(rows,
			func(r models.FlowRow) bool { return r.VolDelta != nil && *r.VolDelta > 0 },
			func(a, b models.FlowRow) bool { return *a.VolDelta > *b.VolDelta }, cfg.TopN),
		RankUp: pick(rows,
			func(r models.FlowRow) bool { return r.RankDelta != nil && *r.RankDelta > 0 },
			func(a, b models.FlowRow) bool { return *a.RankDelta > *b.RankDelta }, cfg.TopN),
		RankDown: pick(rows,
			func(r models.FlowRow) bool { return r.RankDelta != nil && *r.RankDelta < 0 },
			func(a, b models.FlowRow) bool { return *a.RankDelta < *b.RankDelta }, cfg.TopN),
	}
}

func all(models.FlowRow) bool { return true }

// combine merges the call and put tables. OI tables rank by |ΔOI|, the
// others keep their per-side ordering key. Call rows precede put rows on ties.
func combine(c, p models.FlowTables, n int) models.FlowTables {
	merge := func(a, b []models.FlowRow) []models.FlowRow {
		return append(append(make([]models.FlowRow, 0, len(a)+len(b)), a...), b...)
	}
	byAbsOI := func(a, b models.FlowRow) bool { return math.Abs(*a.OIDelta) > math.Abs(*b.OIDelta) }
	return models.FlowTables{
		Inflows:      pick(merge(c.Inflows, p.Inflows), all, byAbsOI, n),
		Outflows:     pick(merge(c.Outflows, p.Outflows), all, byAbsOI, n),
		VolumeSpikes: pick(merge(c.VolumeSpikes, p.VolumeSpikes), all, func(a, b models.FlowRow) bool { return *a.VolDelta > *b.VolDelta }, n),
		RankUp:       pick(merge(c.RankUp, p.RankUp), all, func(a, b models.FlowRow) bool { return *a.RankDelta > *b.RankDelta }, n),
		RankDown:     pick(merge(c.RankDown, p.RankDown), all, func(a, b models.FlowRow) bool { return *a.RankDelta < *b.RankDelta }, n),
	}
}

// AnalyzeFlow shows where open interest and volume moved between reference
// and current: the largest OI additions and removals, volume spikes and the
// strikes that climbed or dropped in OI rank, per side and merged. A TopN
// of zero or less falls back to the default.
func AnalyzeFlow(current, reference models.Snapshot, cfg FlowConfig) models.FlowShift {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultFlowConfig().TopN
	}
	if cfg.MinAbsChange < 0 {
		cfg.MinAbsChange = 0
	}
	calls := flowRows(current, reference, models.SideCall)
	puts := flowRows(current, reference, models.SidePut)

	fs := models.FlowShift{
		From: reference.Timestamp,
		To:   current.Timestamp,
		Call: sideTables(calls, cfg),
		Put:  sideTables(puts, cfg),
	}
	fs.Combined = combine(fs.Call, fs.Put, cfg.TopN)
	for _, r := range calls {
		fs.Nets.NetCallOI += orZero(r.OIDelta)
		fs.Nets.NetCallVolume += orZero(r.VolDelta)
	}
	for _, r := range puts {
		fs.Nets.NetPutOI += orZero(r.OIDelta)
		fs.Nets.NetPutVolume += orZero(r.VolDelta)
	}
	return fs
}
