package derivatives

import (
	"github.com/shopspring/decimal"

	"github.com/seenimoa/chainpulse/pkg/models"
)

// pcrPlaces is the precision of the PCR values handed to callers.
const pcrPlaces = 2

// Aggregate computes the totals and put/call ratios of one snapshot.
func Aggregate(s models.Snapshot) models.AggregateRow {
	t := IndexSnapshot(s).Totals
	return models.AggregateRow{
		Timestamp:       s.Timestamp,
		TotalCallOI:     t.CallOI,
		TotalPutOI:      t.PutOI,
		TotalCallVolume: t.CallVolume,
		TotalPutVolume:  t.PutVolume,
		PCRByOI:         Ratio(t.PutOI, t.CallOI),
		PCRByVolume:     Ratio(t.PutVolume, t.CallVolume),
	}
}

// BuildAggregates maps each snapshot to its AggregateRow, one-to-one and in
// input order.
func BuildAggregates(snaps []models.Snapshot) []models.AggregateRow {
	out := make([]models.AggregateRow, len(snaps))
	for i, s := range snaps {
		out[i] = Aggregate(s)
	}
	return out
}

// Ratio returns put/call rounded to two decimals. A zero denominator yields
// 0: no call interest reads as neutral, not undefined.
func Ratio(put, call float64) float64 {
	if call == 0 {
		return 0
	}
	return round2(put / call)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(pcrPlaces).Float64()
	return f
}

// AggregateDeltas subtracts reference from current field by field.
func AggregateDeltas(current, reference models.AggregateRow) models.AggregateDelta {
	return models.AggregateDelta{
		From:             reference.Timestamp,
		To:               current.Timestamp,
		CallOIDelta:      current.TotalCallOI - reference.TotalCallOI,
		PutOIDelta:       current.TotalPutOI - reference.TotalPutOI,
		CallVolumeDelta:  current.TotalCallVolume - reference.TotalCallVolume,
		PutVolumeDelta:   current.TotalPutVolume - reference.TotalPutVolume,
		PCRByOIDelta:     round2(current.PCRByOI - reference.PCRByOI),
		PCRByVolumeDelta: round2(current.PCRByVolume - reference.PCRByVolume),
	}
}

// NetSummary lists each row's change against the row before it. The first
// row has no predecessor and reports zero change.
func NetSummary(rows []models.AggregateRow) []models.NetChange {
	out := make([]models.NetChange, len(rows))
	for i, r := range rows {
		out[i].Timestamp = r.Timestamp
		if i == 0 {
			continue
		}
		d := AggregateDeltas(r, rows[i-1])
		out[i].NetCallOI = d.CallOIDelta
		out[i].NetPutOI = d.PutOIDelta
		out[i].NetCallVolume = d.CallVolumeDelta
		out[i].NetPutVolume = d.PutVolumeDelta
	}
	return out
}
