package derivatives

import (
	"math"
	"reflect"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/seenimoa/chainpulse/pkg/models"
)

func propParams() *gopter.TestParameters {
	p := gopter.DefaultTestParameters()
	p.MinSuccessfulTests = 200
	return p
}

// genOI yields a missing value about one time in five.
func genOI() gopter.Gen {
	return gen.IntRange(-12, 50).Map(func(v int) *float64 {
		if v < 0 {
			return nil
		}
		x := float64(v)
		return &x
	})
}

func genSnapshot() gopter.Gen {
	return gen.SliceOf(genOI()).Map(func(ois []*float64) models.Snapshot {
		s := models.Snapshot{Timestamp: "t" + strconv.Itoa(len(ois))}
		for i, oi := range ois {
			strike := float64(100 * (i + 1))
			s.Rows = append(s.Rows, models.StrikeRow{
				Strike: strike, Key: strconv.FormatFloat(strike, 'f', -1, 64),
				CallOI: oi, PutOI: oi,
			})
		}
		return s
	})
}

func TestProperty_ParserTotality(t *testing.T) {
	properties := gopter.NewProperties(propParams())

	properties.Property("ParseNum returns nil or a finite number", prop.ForAll(
		func(s string) bool {
			v := ParseNum(s)
			return v == nil || !(math.IsNaN(*v) || math.IsInf(*v, 0))
		},
		gen.AnyString(),
	))

	properties.Property("formatted integers round-trip", prop.ForAll(
		func(n int64) bool {
			v := ParseNum(strconv.FormatInt(n, 10))
			return v != nil && *v == float64(n)
		},
		gen.Int64Range(-1e12, 1e12),
	))

	properties.TestingRun(t)
}

func TestProperty_AggregateOrderPreserved(t *testing.T) {
	properties := gopter.NewProperties(propParams())

	properties.Property("one row per snapshot, timestamps aligned", prop.ForAll(
		func(snaps []models.Snapshot) bool {
			for i := range snaps {
				snaps[i].Timestamp = strconv.Itoa(i)
			}
			rows := BuildAggregates(snaps)
			if len(rows) != len(snaps) {
				return false
			}
			for i := range rows {
				if rows[i].Timestamp != snaps[i].Timestamp {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genSnapshot()),
	))

	properties.TestingRun(t)
}

func TestProperty_PCRZeroGuard(t *testing.T) {
	properties := gopter.NewProperties(propParams())

	properties.Property("zero call total gives zero ratio", prop.ForAll(
		func(put float64) bool { return Ratio(put, 0) == 0 },
		gen.Float64Range(0, 1e9),
	))

	properties.TestingRun(t)
}

func TestProperty_DeltaNullPropagation(t *testing.T) {
	properties := gopter.NewProperties(propParams())

	properties.Property("strikes missing from reference have only nil deltas", prop.ForAll(
		func(cur models.Snapshot) bool {
			for _, d := range StrikeDeltas(cur, models.Snapshot{}) {
				if d.InReference || d.Call != (models.SideDelta{}) || d.Put != (models.SideDelta{}) {
					return false
				}
			}
			return true
		},
		genSnapshot(),
	))

	properties.TestingRun(t)
}

func TestProperty_RankStability(t *testing.T) {
	properties := gopter.NewProperties(propParams())

	properties.Property("equal OI keeps row order and ranks are 1..n", prop.ForAll(
		func(s models.Snapshot) bool {
			pos := make(map[string]int, len(s.Rows))
			for i, r := range s.Rows {
				pos[r.Key] = i
			}
			ranks := Rank(s, models.SideCall)
			for i, e := range ranks {
				if e.Rank != i+1 {
					return false
				}
				if i > 0 {
					prev := ranks[i-1]
					if prev.OI < e.OI || (prev.OI == e.OI && pos[prev.Key] > pos[e.Key]) {
						return false
					}
				}
			}
			return true
		},
		genSnapshot(),
	))

	properties.TestingRun(t)
}

func TestProperty_Idempotence(t *testing.T) {
	properties := gopter.NewProperties(propParams())

	properties.Property("repeated calls give identical output", prop.ForAll(
		func(a, b models.Snapshot) bool {
			return reflect.DeepEqual(StrikeDeltas(a, b), StrikeDeltas(a, b)) &&
				reflect.DeepEqual(RankDeltas(a, b, models.SidePut), RankDeltas(a, b, models.SidePut)) &&
				reflect.DeepEqual(AnalyzeFlow(a, b, DefaultFlowConfig()), AnalyzeFlow(a, b, DefaultFlowConfig())) &&
				reflect.DeepEqual(Heatmap(a, b, 250), Heatmap(a, b, 250))
		},
		genSnapshot(), genSnapshot(),
	))

	properties.Property("bias confidence is bounded and consistent with label", prop.ForAll(
		func(a, b models.Snapshot) bool {
			v := ClassifyBias(Aggregate(b), Aggregate(a), DefaultBiasConfig())
			if v.Confidence < 0 || v.Confidence > 90 {
				return false
			}
			switch v.Label {
			case models.Bullish:
				return v.Score >= 2
			case models.Bearish:
				return v.Score <= -2
			}
			return v.Score > -2 && v.Score < 2
		},
		genSnapshot(), genSnapshot(),
	))

	properties.TestingRun(t)
}
