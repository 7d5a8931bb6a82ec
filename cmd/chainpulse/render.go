package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/seenimoa/chainpulse/internal/dashboard"
	"github.com/seenimoa/chainpulse/pkg/models"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// row writes tab-separated cells with the trailing tab AlignRight needs.
func row(tw *tabwriter.Writer, cells ...string) {
	fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
}

// count renders a non-negative total in sc, using Indian grouping when
// unscaled.
func count(sc utils.Scale, v float64) string {
	if sc.Unit == "" {
		return utils.FormatIndian(v)
	}
	return utils.FormatIndian(sc.Apply(v)) + " " + sc.Unit
}

func signed(sc utils.Scale, v float64) string { return sc.FormatSigned(&v) }

func price(v *float64) string {
	if v == nil {
		return "-"
	}
	sign := ""
	if *v > 0 {
		sign = "+"
	}
	return sign + strconv.FormatFloat(*v, 'f', 2, 64)
}

func ratio(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

func strike(v float64) string { return utils.FormatIndian(v) }

func renderAggregates(w io.Writer, rows []models.AggregateRow, sc utils.Scale) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no snapshots")
		return err
	}
	tw := newTable(w)
	row(tw, "TIME", "CALL OI", "PUT OI", "PCR OI", "CALL VOL", "PUT VOL", "PCR VOL")
	for _, r := range rows {
		row(tw, utils.NormalizeTimeLabel(r.Timestamp),
			count(sc, r.TotalCallOI), count(sc, r.TotalPutOI), ratio(r.PCRByOI),
			count(sc, r.TotalCallVolume), count(sc, r.TotalPutVolume), ratio(r.PCRByVolume))
	}
	return tw.Flush()
}

func renderNet(w io.Writer, rows []models.NetChange, sc utils.Scale) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no snapshots")
		return err
	}
	tw := newTable(w)
	row(tw, "TIME", "NET CALL OI", "NET PUT OI", "NET CALL VOL", "NET PUT VOL")
	for _, r := range rows {
		row(tw, utils.NormalizeTimeLabel(r.Timestamp),
			signed(sc, r.NetCallOI), signed(sc, r.NetPutOI),
			signed(sc, r.NetCallVolume), signed(sc, r.NetPutVolume))
	}
	return tw.Flush()
}

func renderDeltas(w io.Writer, rep dashboard.DeltaReport, sc utils.Scale) error {
	a := rep.Aggregate
	fmt.Fprintf(w, "%s  %s → %s\n", utils.DisplayName(rep.Symbol), rep.From, rep.To)
	fmt.Fprintf(w, "  Call OI %s  Put OI %s  PCR %+.3f  PCR(vol) %+.3f\n\n",
		signed(sc, a.CallOIDelta), signed(sc, a.PutOIDelta), a.PCRByOIDelta, a.PCRByVolumeDelta)

	signals := make(map[string]models.StrikeSignal, len(rep.Signals))
	for _, s := range rep.Signals {
		signals[s.Key] = s
	}

	tw := newTable(w)
	row(tw, "STRIKE", "CALL ΔOI", "CALL ΔVOL", "CALL ΔLTP", "CALL", "PUT ΔOI", "PUT ΔVOL", "PUT ΔLTP", "PUT")
	for _, d := range rep.Strikes {
		sig := signals[d.Key]
		label := strike(d.Strike)
		if !d.InReference {
			label += " (new)"
		}
		row(tw, label,
			sc.FormatSigned(d.Call.OIDelta), sc.FormatSigned(d.Call.VolumeDelta), price(d.Call.PriceDelta), string(sig.CallSignal),
			sc.FormatSigned(d.Put.OIDelta), sc.FormatSigned(d.Put.VolumeDelta), price(d.Put.PriceDelta), string(sig.PutSignal))
	}
	return tw.Flush()
}

func renderRanks(w io.Writer, rep dashboard.RankReport, sc utils.Scale) error {
	fmt.Fprintf(w, "%s OI ranks at %s", rep.Side, rep.Timestamp)
	if rep.Reference != "" {
		fmt.Fprintf(w, " (vs %s)", rep.Reference)
	}
	fmt.Fprintln(w)

	tw := newTable(w)
	row(tw, "RANK", "STRIKE", "OI", "MOVE")
	for _, e := range rep.Ranks {
		move := "-"
		if d, ok := rep.Deltas[e.Key]; ok {
			move = fmt.Sprintf("%+d", d)
		}
		row(tw, strconv.Itoa(e.Rank), strike(e.Strike), count(sc, e.OI), move)
	}
	return tw.Flush()
}

func renderBias(w io.Writer, v models.BiasVerdict) error {
	fmt.Fprintln(w, "═══════════════════════════════════════")
	fmt.Fprintf(w, "  Bias:       %s\n", biasLabel(v.Label))
	if v.From != "" {
		fmt.Fprintf(w, "  Window:     %s → %s\n", v.From, v.To)
	}
	fmt.Fprintf(w, "  Score:      %+d\n", v.Score)
	fmt.Fprintf(w, "  Confidence: %d%%\n", v.Confidence)
	if len(v.Reasons) > 0 {
		fmt.Fprintln(w, "  Reasons:")
		for _, r := range v.Reasons {
			fmt.Fprintf(w, "    • %s\n", r)
		}
	}
	_, err := fmt.Fprintln(w, "═══════════════════════════════════════")
	return err
}

// biasLabel colours a verdict for the terminal; color.NoColor disables it.
func biasLabel(l models.BiasLabel) string {
	switch l {
	case models.Bullish:
		return color.GreenString(string(l))
	case models.Bearish:
		return color.RedString(string(l))
	}
	return color.YellowString(string(l))
}

func renderFlow(w io.Writer, shift models.FlowShift, side string, sc utils.Scale) error {
	tables := shift.Combined
	switch side {
	case "call":
		tables = shift.Call
	case "put":
		tables = shift.Put
	}
	n := shift.Nets
	fmt.Fprintf(w, "Flow %s → %s\n", shift.From, shift.To)
	fmt.Fprintf(w, "  Net call OI %s  Net put OI %s  Net call vol %s  Net put vol %s\n",
		signed(sc, n.NetCallOI), signed(sc, n.NetPutOI), signed(sc, n.NetCallVolume), signed(sc, n.NetPutVolume))

	sections := []struct {
		title string
		rows  []models.FlowRow
	}{
		{"Inflows", tables.Inflows},
		{"Outflows", tables.Outflows},
		{"Volume spikes", tables.VolumeSpikes},
		{"Rank up", tables.RankUp},
		{"Rank down", tables.RankDown},
	}
	for _, sec := range sections {
		fmt.Fprintf(w, "\n%s\n", sec.title)
		if len(sec.rows) == 0 {
			fmt.Fprintln(w, "  (none)")
			continue
		}
		tw := newTable(w)
		row(tw, "STRIKE", "SIDE", "OI", "ΔOI", "ΔVOL", "ΔLTP", "RANK")
		for _, r := range sec.rows {
			oi := "-"
			if r.OINow != nil {
				oi = count(sc, *r.OINow)
			}
			rank := "-"
			if r.NowRank != nil {
				rank = strconv.Itoa(*r.NowRank)
				if r.RankDelta != nil {
					rank += fmt.Sprintf(" (%+d)", *r.RankDelta)
				}
			}
			row(tw, strike(r.Strike), string(r.Side), oi,
				sc.FormatSigned(r.OIDelta), sc.FormatSigned(r.VolDelta), price(r.LTPDelta), rank)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func renderHeatmap(w io.Writer, hm models.Heatmap, sc utils.Scale) error {
	fmt.Fprintf(w, "Heatmap %s → %s  max |ΔOI| %s\n", hm.From, hm.To, count(sc, hm.MaxAbsOI))
	tw := newTable(w)
	row(tw, "", "STRIKE", "CALL ΔOI", "HEAT", "CALL", "PUT ΔOI", "HEAT", "PUT")
	for _, c := range hm.Cells {
		mark := ""
		if c.ATM {
			mark = "ATM"
		}
		row(tw, mark, strike(c.Strike),
			sc.FormatSigned(c.CallOIDelta), heat(c.CallIntensity), string(c.CallSignal),
			sc.FormatSigned(c.PutOIDelta), heat(c.PutIntensity), string(c.PutSignal))
	}
	return tw.Flush()
}

// heat draws an intensity in [0, 1] as a bar of up to five blocks.
func heat(v float64) string {
	n := int(v*5 + 0.5)
	if n > 5 {
		n = 5
	}
	if n < 0 {
		n = 0
	}
	return strings.Repeat("█", n) + strings.Repeat("·", 5-n)
}

func renderSeries(w io.Writer, rep dashboard.SeriesReport, sc utils.Scale) error {
	fmt.Fprintf(w, "%s %s %s\n", utils.DisplayName(rep.Symbol), rep.Key, rep.Metric)
	if len(rep.Points) == 0 {
		_, err := fmt.Fprintln(w, "  no observations")
		return err
	}
	tw := newTable(w)
	row(tw, "TIME", "VALUE")
	for _, p := range rep.Points {
		row(tw, p.Label, count(sc, p.Value))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	st := rep.Stats
	change := signed(sc, st.TotalChange)
	if st.First != 0 {
		change += " (" + utils.FormatPct(st.TotalChange/st.First*100) + ")"
	}
	_, err := fmt.Fprintf(w, "\n  points %d, moves %d, change %s, max %s at %s, min %s at %s\n",
		st.Points, st.Moves, change, count(sc, st.Max), st.MaxAt, count(sc, st.Min), st.MinAt)
	return err
}
