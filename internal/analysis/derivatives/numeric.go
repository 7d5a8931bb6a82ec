// Package derivatives turns scraped option-chain snapshots into derived
// analytics: aggregate PCR series, per-strike deltas, OI ranks, build-up
// signals and a windowed directional bias.
//
// Every function in this package is pure. Inputs are never mutated, there is
// no package state, and all edge cases resolve to a defined value instead of
// an error, so callers may share inputs across goroutines freely.
package derivatives

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/seenimoa/chainpulse/pkg/models"
)

var (
	leadingNumber = regexp.MustCompile(`^[+-]?\d+(\.\d+)?`)
	anyNumber     = regexp.MustCompile(`-?\d+(\.\d+)?`)
)

// ParseNum normalizes a scraped numeric field. Thousands separators are
// dropped and the longest leading signed decimal is parsed, so "1,234.5"
// gives 1234.5 and "12.3%extra" gives 12.3. "-", "" and anything without a
// leading number give nil. The result is always finite.
func ParseNum(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	m := leadingNumber.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// ParseText is ParseNum for a field that may be absent altogether.
func ParseText(t models.Text) *float64 {
	if !t.Valid {
		return nil
	}
	return ParseNum(t.Value)
}

// ParseLTPChange splits the scraper's "change(pct%)" text, e.g.
// "161.00(1.58%)" → (161, 1.58). Either part may be nil.
func ParseLTPChange(t models.Text) (change, pct *float64) {
	if !t.Valid {
		return nil, nil
	}
	s := strings.ReplaceAll(strings.TrimSpace(t.Value), ",", "")
	if s == "" || s == "-" {
		return nil, nil
	}
	m := anyNumber.FindAllString(s, 2)
	if len(m) > 0 {
		change = finite(m[0])
	}
	if len(m) > 1 {
		pct = finite(m[1])
	}
	return change, pct
}

func finite(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// StrikeKey returns the canonical string form of a strike used for
// cross-snapshot matching. Parseable strikes are formatted from their value
// so "24,500" and "24500.00" match; anything else falls back to the trimmed
// source text.
func StrikeKey(t models.Text) (float64, string) {
	if v := ParseText(t); v != nil {
		return *v, strconv.FormatFloat(*v, 'f', -1, 64)
	}
	return 0, strings.TrimSpace(t.Value)
}

// ParseSnapshot converts a raw scraped snapshot into typed rows. Row order
// is preserved; every numeric field is parsed exactly once here.
func ParseSnapshot(raw models.RawSnapshot) models.Snapshot {
	rows := make([]models.StrikeRow, 0, len(raw.Rows))
	for _, r := range raw.Rows {
		strike, key := StrikeKey(r.StrikePrice)
		row := models.StrikeRow{
			Strike:        strike,
			Key:           key,
			CallOI:        ParseText(r.CallOI),
			CallVolume:    ParseText(r.CallVol),
			CallLastPrice: ParseText(r.CallLTP),
			PutOI:         ParseText(r.PutOI),
			PutVolume:     ParseText(r.PutVol),
			PutLastPrice:  ParseText(r.PutLTP),
		}
		row.CallPriceChange, row.CallPriceChangePct = ParseLTPChange(r.CallChgLTP)
		row.PutPriceChange, row.PutPriceChangePct = ParseLTPChange(r.PutChgLTP)
		rows = append(rows, row)
	}
	return models.Snapshot{Timestamp: raw.Timestamp, Rows: rows}
}

// ParseSnapshots parses an ordered sequence, keeping its order.
func ParseSnapshots(raw []models.RawSnapshot) []models.Snapshot {
	out := make([]models.Snapshot, len(raw))
	for i, r := range raw {
		out[i] = ParseSnapshot(r)
	}
	return out
}
