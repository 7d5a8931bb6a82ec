package derivatives

import (
	"fmt"
	"strings"

	"github.com/seenimoa/chainpulse/pkg/models"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

// Metric names one per-strike quantity tracked over time.
type Metric string

const (
	MetricCallOI  Metric = "call-oi"
	MetricCallVol Metric = "call-vol"
	MetricPutOI   Metric = "put-oi"
	MetricPutVol  Metric = "put-vol"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricCallOI, MetricCallVol, MetricPutOI, MetricPutVol:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q (want call-oi, call-vol, put-oi or put-vol)", s)
}

func (m Metric) value(r models.StrikeRow) *float64 {
	switch m {
	case MetricCallOI:
		return r.CallOI
	case MetricCallVol:
		return r.CallVolume
	case MetricPutOI:
		return r.PutOI
	case MetricPutVol:
		return r.PutVolume
	}
	return nil
}

// StrikeSeries follows one strike's metric across snapshots in order.
// Snapshots where the strike is absent or the value is missing are skipped.
func StrikeSeries(snaps []models.Snapshot, key string, m Metric) []models.SeriesPoint {
	out := make([]models.SeriesPoint, 0, len(snaps))
	for _, s := range snaps {
		r, ok := IndexSnapshot(s).Lookup(key)
		if !ok {
			continue
		}
		v := m.value(r)
		if v == nil {
			continue
		}
		out = append(out, models.SeriesPoint{
			Timestamp: s.Timestamp,
			Label:     utils.NormalizeTimeLabel(s.Timestamp),
			Value:     *v,
		})
	}
	return out
}

// SummarizeSeries reports the first, last and extreme values of a series and
// how many steps changed the value. The earliest point wins extreme ties.
func SummarizeSeries(points []models.SeriesPoint) models.SeriesStats {
	st := models.SeriesStats{Points: len(points)}
	if len(points) == 0 {
		return st
	}
	first := points[0]
	st.First, st.Last = first.Value, points[len(points)-1].Value
	st.TotalChange = st.Last - st.First
	st.Max, st.MaxAt = first.Value, first.Label
	st.Min, st.MinAt = first.Value, first.Label
	for i, p := range points[1:] {
		if p.Value != points[i].Value {
			st.Moves++
		}
		if p.Value > st.Max {
			st.Max, st.MaxAt = p.Value, p.Label
		}
		if p.Value < st.Min {
			st.Min, st.MinAt = p.Value, p.Label
		}
	}
	return st
}
