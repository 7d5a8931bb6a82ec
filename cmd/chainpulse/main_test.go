package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/chainpulse/internal/dashboard"
	"github.com/seenimoa/chainpulse/pkg/models"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

const sessionJSON = `[
  {"timestamp":"9:15:00 AM","rows":[
    {"StrikePrice":"100","CallOI":"1,000","CallVol":"100","CallLTP":"10","PutOI":"1,000","PutVol":"100","PutLTP":"10"},
    {"StrikePrice":"200","CallOI":"2,000","CallVol":"200","CallLTP":"5","PutOI":"500","PutVol":"50","PutLTP":"20"}]},
  {"timestamp":"9:20:00 AM","data":[
    {"StrikePrice":100,"CallOI":900,"CallVol":150,"CallLTP":12,"PutOI":"3,000","PutVol":400,"PutLTP":8},
    {"StrikePrice":200,"CallOI":"2,100","CallVol":250,"CallLTP":4,"PutOI":"1,500","PutVol":100,"PutLTP":18}]}
]`

// resetFlags restores every flag of the command tree to its default, since
// the commands are package globals shared across runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CHAINPULSE_STORE_DRIVER", "memory")
	noColor(t, true)
	return dir
}

func noColor(t *testing.T, v bool) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = v
	t.Cleanup(func() { color.NoColor = prev })
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// ════════════════════════════════════════════════════════════════════
// Input decoding
// ════════════════════════════════════════════════════════════════════

func TestReadSnapshots(t *testing.T) {
	snaps, err := readSnapshots(strings.NewReader(sessionJSON))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "9:20:00 AM", snaps[1].Timestamp)
	assert.Len(t, snaps[1].Rows, 2, "legacy data key is accepted")

	one, err := readSnapshots(strings.NewReader(`  {"timestamp":"9:15:00 AM","rows":[]}`))
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = readSnapshots(strings.NewReader("   "))
	assert.Error(t, err)

	_, err = readSnapshots(strings.NewReader(`[{"timestamp":`))
	assert.Error(t, err)
}

// ════════════════════════════════════════════════════════════════════
// Commands
// ════════════════════════════════════════════════════════════════════

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chainpulse dev")
}

func TestPCRCommand_JSON(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	out, err := run(t, "pcr", "nifty", "--file", file, "--json")
	require.NoError(t, err)

	var rows []models.AggregateRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.InDelta(t, 0.5, rows[0].PCRByOI, 1e-9)
	assert.InDelta(t, 1.5, rows[1].PCRByOI, 1e-9)
	assert.InDelta(t, 1.25, rows[1].PCRByVolume, 1e-9)
}

func TestPCRCommand_Table(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	out, err := run(t, "pcr", "NIFTY", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "PCR OI")
	assert.Contains(t, out, "9:20 AM")
	assert.Contains(t, out, "1.500")

	out, err = run(t, "pcr", "NIFTY", "-f", file, "--net", "--scale", "thousand")
	require.NoError(t, err)
	assert.Contains(t, out, "NET PUT OI")
	assert.Contains(t, out, "+3 K")
}

func TestPCRCommand_FileKeepsEverySnapshot(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "repeat.json", `[
	  {"timestamp":"9:15:00 AM","rows":[{"StrikePrice":"100","CallOI":"1,000","PutOI":"500"}]},
	  {"timestamp":"9:15:00 AM","rows":[{"StrikePrice":"100","CallOI":"1,000","PutOI":"1,000"}]},
	  {"timestamp":"9:20:00 AM","rows":[]},
	  {"timestamp":"9:25:00 AM","rows":[{"StrikePrice":"100","CallOI":"1,000","PutOI":"2,000"}]}
	]`)

	out, err := run(t, "pcr", "nifty_50", "--file", file, "--json")
	require.NoError(t, err)

	var rows []models.AggregateRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"9:15:00 AM", "9:15:00 AM", "9:20:00 AM", "9:25:00 AM"},
		[]string{rows[0].Timestamp, rows[1].Timestamp, rows[2].Timestamp, rows[3].Timestamp})
	assert.InDelta(t, 0.5, rows[0].PCRByOI, 1e-9)
	assert.InDelta(t, 1.0, rows[1].PCRByOI, 1e-9)
	assert.Zero(t, rows[2].TotalCallOI)
	assert.Zero(t, rows[2].PCRByOI)
	assert.InDelta(t, 2.0, rows[3].PCRByOI, 1e-9)
}

func TestPCRCommand_UnknownScale(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	_, err := run(t, "pcr", "nifty", "-f", file, "--scale", "furlong")
	assert.ErrorContains(t, err, "unknown scale")
}

func TestBiasCommand(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	out, err := run(t, "bias", "nifty", "-f", file, "--json")
	require.NoError(t, err)
	var v models.BiasVerdict
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, models.Bullish, v.Label)
	assert.Equal(t, 2, v.Score)

	out, err = run(t, "bias", "nifty", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Bias:       Bullish")
}

func TestRenderBiasColours(t *testing.T) {
	noColor(t, false)

	var buf bytes.Buffer
	require.NoError(t, renderBias(&buf, models.BiasVerdict{Label: models.Bullish, Score: 3}))
	assert.Contains(t, buf.String(), "\x1b[32mBullish\x1b[0m")

	buf.Reset()
	require.NoError(t, renderBias(&buf, models.BiasVerdict{Label: models.Bearish, Score: -3}))
	assert.Contains(t, buf.String(), "\x1b[31mBearish\x1b[0m")

	noColor(t, true)
	buf.Reset()
	require.NoError(t, renderBias(&buf, models.BiasVerdict{Label: models.BiasNeutral}))
	assert.Contains(t, buf.String(), "Bias:       Neutral\n")
}

func TestDeltasCommand(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	out, err := run(t, "deltas", "nifty", "-f", file, "--json")
	require.NoError(t, err)
	var rep dashboard.DeltaReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "9:15:00 AM", rep.From)
	assert.Equal(t, "9:20:00 AM", rep.To)
	require.Len(t, rep.Strikes, 2)
	assert.InDelta(t, 2000, *rep.Strikes[0].Put.OIDelta, 1e-9)

	out, err = run(t, "deltas", "nifty", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "ShortCovering")
}

func TestDeltasCommand_NeedsTwoSnapshots(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "one.json", `{"timestamp":"9:15:00 AM","rows":[{"StrikePrice":"100","CallOI":"10","PutOI":"10"}]}`)

	_, err := run(t, "deltas", "nifty", "-f", file)
	assert.ErrorIs(t, err, dashboard.ErrNotEnoughData)
}

func TestDeltasCommand_IndexNeedsPosition(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	_, err := run(t, "deltas", "nifty", "-f", file, "--ref", "index")
	assert.ErrorContains(t, err, "--index")
}

func TestRanksCommand(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	out, err := run(t, "ranks", "nifty", "-f", file, "--side", "put", "--json")
	require.NoError(t, err)
	var rep dashboard.RankReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Ranks, 2)
	assert.Equal(t, 1, rep.Ranks[0].Rank)
	assert.InDelta(t, 100, rep.Ranks[0].Strike, 1e-9)

	_, err = run(t, "ranks", "nifty", "-f", file, "--side", "both")
	assert.Error(t, err)
}

func TestFlowAndHeatmapCommands(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	out, err := run(t, "flow", "nifty", "-f", file, "--min", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Inflows")
	assert.Contains(t, out, "Rank down")

	out, err = run(t, "heatmap", "nifty", "-f", file, "--spot", "180", "--json")
	require.NoError(t, err)
	var hm models.Heatmap
	require.NoError(t, json.Unmarshal([]byte(out), &hm))
	require.NotNil(t, hm.ATMStrike)
	assert.InDelta(t, 200, *hm.ATMStrike, 1e-9)
}

func TestSeriesCommand(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	out, err := run(t, "series", "nifty", "100", "put-oi", "-f", file, "--json")
	require.NoError(t, err)
	var rep dashboard.SeriesReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Points, 2)
	assert.InDelta(t, 2000, rep.Stats.TotalChange, 1e-9)

	out, err = run(t, "series", "nifty", "100", "put-oi", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "change +2000 (+200.00%)")

	_, err = run(t, "series", "nifty", "100", "gamma", "-f", file)
	assert.ErrorContains(t, err, "unknown metric")
}

func TestImportCommand_SQLite(t *testing.T) {
	dir := isolate(t)
	t.Setenv("CHAINPULSE_STORE_DRIVER", "sqlite")
	t.Setenv("CHAINPULSE_STORE_PATH", filepath.Join(dir, "chain.db"))

	var dup []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(sessionJSON), &dup))
	dup = append(dup, dup[0])
	body, err := json.Marshal(dup)
	require.NoError(t, err)
	file := writeFile(t, dir, "dup.json", string(body))

	out, err := run(t, "import", "banknifty", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "2 stored, 1 duplicates skipped")

	// Analysis without --file reads the configured store.
	out, err = run(t, "pcr", "banknifty", "--json")
	require.NoError(t, err)
	var rows []models.AggregateRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 2)

	out, err = run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "System Status")
	assert.Regexp(t, utils.DisplayName(utils.SymbolBankNifty)+`:\s+2`, out)
}

func TestImportCommand_UnknownSymbol(t *testing.T) {
	dir := isolate(t)
	file := writeFile(t, dir, "session.json", sessionJSON)

	_, err := run(t, "import", "sensex", "-f", file)
	assert.ErrorContains(t, err, "sensex")
}

// ════════════════════════════════════════════════════════════════════
// Rendering helpers
// ════════════════════════════════════════════════════════════════════

func TestHeat(t *testing.T) {
	assert.Equal(t, "·····", heat(0))
	assert.Equal(t, "███··", heat(0.5))
	assert.Equal(t, "█████", heat(1))
	assert.Equal(t, "█████", heat(3))
}

func TestCount(t *testing.T) {
	none, _ := utils.ParseScale("")
	lakh, _ := utils.ParseScale("lakh")
	assert.Equal(t, "12,34,567", count(none, 1234567))
	assert.Equal(t, "12.35 L", count(lakh, 1234567))
	assert.Equal(t, "+2.5", signed(none, 2.5))
	assert.Equal(t, "-", price(nil))
}
