// chainpulse: option-chain snapshot analytics for NSE index derivatives.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seenimoa/chainpulse/api"
	"github.com/seenimoa/chainpulse/internal/config"
	"github.com/seenimoa/chainpulse/internal/dashboard"
	"github.com/seenimoa/chainpulse/internal/logging"
	"github.com/seenimoa/chainpulse/internal/store"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger
var (
	cfg    *config.Config
	logger zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chainpulse",
	Short: "chainpulse: option-chain snapshot analytics",
	Long: `chainpulse ingests timestamped option-chain snapshots for NSE index
derivatives and derives put-call ratios, strike deltas, open-interest ranks,
build-up signals, flow shifts and a directional bias verdict.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger = logging.NewLogger(logConfig(cfg.Logging))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(pcrCmd)
	rootCmd.AddCommand(deltasCmd)
	rootCmd.AddCommand(ranksCmd)
	rootCmd.AddCommand(biasCmd)
	rootCmd.AddCommand(flowCmd)
	rootCmd.AddCommand(heatmapCmd)
	rootCmd.AddCommand(seriesCmd)
	rootCmd.AddCommand(statusCmd)
}

// logConfig maps the file-level logging section onto the logger options.
func logConfig(c config.LoggingConfig) logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
	}
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chainpulse %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		svc := newService(st)
		go svc.RunJanitor(ctx, time.Duration(cfg.Cache.CleanupInterval)*time.Second)

		api.Version = version
		addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
		logger.Info().
			Str("addr", addr).
			Str("store", cfg.Store.Driver).
			Str("version", version).
			Bool("market_open", utils.IsMarketOpenAt(utils.NowIST())).
			Msg("Starting chainpulse API server")

		return api.NewServer(cfg, svc, logger).ListenAndServe(ctx, addr)
	},
}

// newService wires a dashboard service over st using the loaded config.
func newService(st store.Store) *dashboard.Service {
	return dashboard.NewService(dashboard.Options{
		Store:    st,
		Logger:   logger,
		CacheTTL: time.Duration(cfg.Cache.TTL) * time.Second,
		Settings: dashboard.SettingsFromConfig(cfg),
	})
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		now := utils.NowIST()

		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintln(out, "  chainpulse: System Status")
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
		fmt.Fprintf(out, "  Market Status: %s\n", utils.MarketStatusAt(now))
		fmt.Fprintf(out, "  Time (IST):    %s\n", now.Format("02-Jan-2006 15:04:05"))
		fmt.Fprintln(out)

		// Config summary
		fmt.Fprintln(out, "  Configuration:")
		fmt.Fprintf(out, "    Config File:   %s\n", config.ConfigFilePath())
		fmt.Fprintf(out, "    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Fprintf(out, "    Store:         %s (%s)\n", cfg.Store.Driver, cfg.Store.Path)
		fmt.Fprintf(out, "    Signal:        oi %.4f, pcr %.2f, volume %t\n",
			cfg.Signal.OIPercentThreshold, cfg.Signal.PCRThreshold, cfg.Signal.UseVolume)
		fmt.Fprintf(out, "    Flow:          top %d, min change %s\n", cfg.Flow.TopN, utils.FormatCompact(cfg.Flow.MinAbsChange))
		fmt.Fprintln(out)

		// Snapshot counts
		st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			fmt.Fprintf(out, "  Store:         unavailable (%v)\n", err)
			fmt.Fprintln(out, "═══════════════════════════════════════")
			return nil
		}
		defer st.Close()

		infos, err := newService(st).Symbols(commandContext(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "  Snapshots:")
		for _, info := range infos {
			fmt.Fprintf(out, "    %-25s %d\n", info.Name+":", info.Snapshots)
		}
		fmt.Fprintln(out, "═══════════════════════════════════════")
		return nil
	},
}

// commandContext returns the command's context, falling back to Background
// when cobra was driven without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
