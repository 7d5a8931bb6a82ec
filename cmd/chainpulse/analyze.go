package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/seenimoa/chainpulse/internal/analysis/derivatives"
	"github.com/seenimoa/chainpulse/internal/dashboard"
	"github.com/seenimoa/chainpulse/internal/store"
	"github.com/seenimoa/chainpulse/pkg/models"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

// readSnapshots decodes a JSON array of snapshots, or a single snapshot
// object, from r.
func readSnapshots(r io.Reader) ([]models.RawSnapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("no snapshots in input")
	}
	if data[0] == '{' {
		var one models.RawSnapshot
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		return []models.RawSnapshot{one}, nil
	}
	var many []models.RawSnapshot
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("decode snapshots: %w", err)
	}
	return many, nil
}

// ImportResult counts the outcome of loading a snapshot file.
type ImportResult struct {
	Stored     int
	Duplicates int
}

// importSnapshots ingests snaps in order. Duplicate timestamps are skipped
// with a warning; any other failure stops the import.
func importSnapshots(cmd *cobra.Command, svc *dashboard.Service, symbol string, snaps []models.RawSnapshot) (ImportResult, error) {
	var res ImportResult
	for i, snap := range snaps {
		_, _, err := svc.Ingest(commandContext(cmd), symbol, snap)
		switch {
		case err == nil:
			res.Stored++
		case errors.Is(err, store.ErrDuplicateSnapshot):
			res.Duplicates++
			logger.Warn().Str("symbol", symbol).Str("timestamp", snap.Timestamp).Int("index", i).Msg("Skipping duplicate snapshot")
		default:
			return res, fmt.Errorf("snapshot %d: %w", i, err)
		}
	}
	return res, nil
}

// openSource returns a service over the snapshots to analyse. With --file
// every snapshot of the file is analysed as given, repeated timestamps and
// empty snapshots included; otherwise the configured store is used.
// The returned func releases the store.
func openSource(cmd *cobra.Command, symbol string) (*dashboard.Service, func(), error) {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return newService(st), func() { st.Close() }, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	snaps, err := readSnapshots(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", file, err)
	}

	st := store.NewMemoryStore()
	if _, err := st.Append(commandContext(cmd), symbol, snaps...); err != nil {
		return nil, nil, err
	}
	return newService(st), func() { st.Close() }, nil
}

// reference reads the --ref and --index flags.
func reference(cmd *cobra.Command) (dashboard.Reference, error) {
	mode, _ := cmd.Flags().GetString("ref")
	idx, _ := cmd.Flags().GetInt("index")
	m, err := derivatives.ParseReferenceMode(mode)
	if err != nil {
		return dashboard.Reference{}, err
	}
	if m == derivatives.RefIndex && idx < 0 {
		return dashboard.Reference{}, errors.New("--index is required with --ref index")
	}
	return dashboard.Reference{Mode: m, Index: idx}, nil
}

func scale(cmd *cobra.Command) (utils.Scale, error) {
	s, _ := cmd.Flags().GetString("scale")
	return utils.ParseScale(s)
}

// emit writes v as indented JSON when --json is set, otherwise calls text.
func emit(cmd *cobra.Command, v any, text func(io.Writer) error) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(cmd.OutOrStdout())
}

// analysisFlags registers the flags shared by the offline analysis commands.
func analysisFlags(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().StringP("file", "f", "", "JSON snapshot file to analyse instead of the configured store")
		c.Flags().Bool("json", false, "print JSON instead of a table")
		c.Flags().String("scale", "", "display unit for counts (none, thousand, lakh, million, crore)")
	}
}

// referenceFlags registers --ref and --index.
func referenceFlags(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().String("ref", "previous", "reference snapshot (previous, start, index)")
		c.Flags().Int("index", -1, "reference position for --ref index")
	}
}

func init() {
	importCmd.Flags().StringP("file", "f", "", "JSON snapshot file (array or single object)")
	_ = importCmd.MarkFlagRequired("file")

	analysisFlags(pcrCmd, deltasCmd, ranksCmd, biasCmd, flowCmd, heatmapCmd, seriesCmd)
	referenceFlags(deltasCmd, ranksCmd, flowCmd, heatmapCmd)

	pcrCmd.Flags().Bool("net", false, "show snapshot-to-snapshot net changes instead of totals")
	ranksCmd.Flags().String("side", "call", "chain side to rank (call, put)")
	biasCmd.Flags().Int("start", 0, "window start position")
	biasCmd.Flags().Int("end", -1, "window end position (-1 for the latest snapshot)")
	flowCmd.Flags().Int("top", 0, "rows per table (default from config)")
	flowCmd.Flags().Float64("min", 0, "minimum absolute OI change (default from config)")
	flowCmd.Flags().String("side", "combined", "tables to print (call, put, combined)")
	heatmapCmd.Flags().Float64("spot", 0, "underlying spot price used to mark the ATM strike")
}

// --- Import Command ---

var importCmd = &cobra.Command{
	Use:   "import [symbol]",
	Short: "Load snapshots from a JSON file into the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, ok := utils.NormalizeSymbol(args[0])
		if !ok {
			return fmt.Errorf("%w: %q", store.ErrUnknownSymbol, args[0])
		}
		file, _ := cmd.Flags().GetString("file")
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		snaps, err := readSnapshots(f)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}

		st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		res, err := importSnapshots(cmd, newService(st), symbol, snaps)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d stored, %d duplicates skipped\n", utils.DisplayName(symbol), res.Stored, res.Duplicates)
		return err
	},
}

// --- PCR Command ---

var pcrCmd = &cobra.Command{
	Use:   "pcr [symbol]",
	Short: "Show the put-call ratio series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openSource(cmd, args[0])
		if err != nil {
			return err
		}
		defer done()
		sc, err := scale(cmd)
		if err != nil {
			return err
		}

		if net, _ := cmd.Flags().GetBool("net"); net {
			rows, err := svc.NetSummary(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return emit(cmd, rows, func(w io.Writer) error { return renderNet(w, rows, sc) })
		}
		rows, err := svc.Aggregates(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		return emit(cmd, rows, func(w io.Writer) error { return renderAggregates(w, rows, sc) })
	},
}

// --- Deltas Command ---

var deltasCmd = &cobra.Command{
	Use:   "deltas [symbol]",
	Short: "Show per-strike changes and build-up signals of the latest snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := reference(cmd)
		if err != nil {
			return err
		}
		sc, err := scale(cmd)
		if err != nil {
			return err
		}
		svc, done, err := openSource(cmd, args[0])
		if err != nil {
			return err
		}
		defer done()

		rep, err := svc.Deltas(commandContext(cmd), args[0], ref)
		if err != nil {
			return err
		}
		return emit(cmd, rep, func(w io.Writer) error { return renderDeltas(w, rep, sc) })
	},
}

// --- Ranks Command ---

var ranksCmd = &cobra.Command{
	Use:   "ranks [symbol]",
	Short: "Rank strikes of the latest snapshot by open interest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := reference(cmd)
		if err != nil {
			return err
		}
		sc, err := scale(cmd)
		if err != nil {
			return err
		}
		s, _ := cmd.Flags().GetString("side")
		side := models.Side(s)
		if side != models.SideCall && side != models.SidePut {
			return fmt.Errorf("--side must be call or put, got %q", s)
		}
		svc, done, err := openSource(cmd, args[0])
		if err != nil {
			return err
		}
		defer done()

		rep, err := svc.Ranks(commandContext(cmd), args[0], side, ref)
		if err != nil {
			return err
		}
		return emit(cmd, rep, func(w io.Writer) error { return renderRanks(w, rep, sc) })
	},
}

// --- Bias Command ---

var biasCmd = &cobra.Command{
	Use:   "bias [symbol]",
	Short: "Classify the directional bias over a window of snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetInt("start")
		end, _ := cmd.Flags().GetInt("end")
		svc, done, err := openSource(cmd, args[0])
		if err != nil {
			return err
		}
		defer done()

		v, err := svc.Bias(commandContext(cmd), args[0], start, end)
		if err != nil {
			return err
		}
		return emit(cmd, v, func(w io.Writer) error { return renderBias(w, v) })
	},
}

// --- Flow Command ---

var flowCmd = &cobra.Command{
	Use:   "flow [symbol]",
	Short: "Show where open interest moved since the reference snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := reference(cmd)
		if err != nil {
			return err
		}
		sc, err := scale(cmd)
		if err != nil {
			return err
		}
		side, _ := cmd.Flags().GetString("side")
		if side != "call" && side != "put" && side != "combined" {
			return fmt.Errorf("--side must be call, put or combined, got %q", side)
		}
		svc, done, err := openSource(cmd, args[0])
		if err != nil {
			return err
		}
		defer done()

		fc := svc.Settings().Flow
		if top, _ := cmd.Flags().GetInt("top"); top > 0 {
			fc.TopN = top
		}
		if minChange, _ := cmd.Flags().GetFloat64("min"); minChange > 0 {
			fc.MinAbsChange = minChange
		}
		shift, err := svc.Flow(commandContext(cmd), args[0], ref, fc)
		if err != nil {
			return err
		}
		return emit(cmd, shift, func(w io.Writer) error { return renderFlow(w, shift, side, sc) })
	},
}

// --- Heatmap Command ---

var heatmapCmd = &cobra.Command{
	Use:   "heatmap [symbol]",
	Short: "Show the per-strike OI-change heatmap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := reference(cmd)
		if err != nil {
			return err
		}
		sc, err := scale(cmd)
		if err != nil {
			return err
		}
		spot, _ := cmd.Flags().GetFloat64("spot")
		svc, done, err := openSource(cmd, args[0])
		if err != nil {
			return err
		}
		defer done()

		hm, err := svc.Heatmap(commandContext(cmd), args[0], ref, spot)
		if err != nil {
			return err
		}
		return emit(cmd, hm, func(w io.Writer) error { return renderHeatmap(w, hm, sc) })
	},
}

// --- Series Command ---

var seriesCmd = &cobra.Command{
	Use:   "series [symbol] [strike] [metric]",
	Short: "Trace one strike metric (call-oi, call-vol, put-oi, put-vol) over time",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		metric, err := derivatives.ParseMetric(args[2])
		if err != nil {
			return err
		}
		sc, err := scale(cmd)
		if err != nil {
			return err
		}
		svc, done, err := openSource(cmd, args[0])
		if err != nil {
			return err
		}
		defer done()

		rep, err := svc.StrikeSeries(commandContext(cmd), args[0], args[1], metric)
		if err != nil {
			return err
		}
		return emit(cmd, rep, func(w io.Writer) error { return renderSeries(w, rep, sc) })
	},
}
