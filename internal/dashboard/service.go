// Package dashboard ties snapshot storage to the derivatives analytics.
//
// A Service ingests raw snapshots, keeps parsed series warm in a TTL cache
// and answers the PCR, delta, rank, bias, flow, heatmap and strike-series
// queries that the HTTP API and the CLI expose.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/chainpulse/internal/analysis/derivatives"
	"github.com/seenimoa/chainpulse/internal/config"
	"github.com/seenimoa/chainpulse/internal/infra"
	"github.com/seenimoa/chainpulse/internal/logging"
	"github.com/seenimoa/chainpulse/internal/store"
	"github.com/seenimoa/chainpulse/pkg/models"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

// ErrNotEnoughData is returned when a query needs more snapshots than the
// symbol has, or no distinct reference snapshot exists.
var ErrNotEnoughData = errors.New("not enough snapshots")

// overviewConcurrency bounds the per-symbol fan-out of Overview.
const overviewConcurrency = 4

// Settings are the tunable analytics thresholds.
type Settings struct {
	Bias derivatives.BiasConfig `json:"bias"`
	Flow derivatives.FlowConfig `json:"flow"`
}

// DefaultSettings returns the built-in thresholds.
func DefaultSettings() Settings {
	return Settings{
		Bias: derivatives.DefaultBiasConfig(),
		Flow: derivatives.DefaultFlowConfig(),
	}
}

// SettingsFromConfig extracts the analytics thresholds from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Bias: derivatives.BiasConfig{
			OIPercentThreshold: cfg.Signal.OIPercentThreshold,
			PCRThreshold:       cfg.Signal.PCRThreshold,
			UseVolume:          cfg.Signal.UseVolume,
		},
		Flow: derivatives.FlowConfig{
			TopN:         cfg.Flow.TopN,
			MinAbsChange: cfg.Flow.MinAbsChange,
		},
	}
}

// Publisher receives every successfully ingested snapshot.
type Publisher func(symbol string, rec store.Record, agg models.AggregateRow)

// Options configure a Service.
type Options struct {
	Store    store.Store
	Metrics  *Metrics
	Logger   zerolog.Logger
	CacheTTL time.Duration
	Settings Settings
}

// series is the parsed, cached view of one symbol's collection.
type series struct {
	symbol string
	snaps  []models.Snapshot
	aggs   []models.AggregateRow
}

// Service answers dashboard queries over a snapshot store.
type Service struct {
	store   store.Store
	cache   *infra.Cache[*series]
	metrics *Metrics
	logger  zerolog.Logger

	mu       sync.RWMutex
	settings Settings
	publish  Publisher
}

// NewService creates a Service. A nil Metrics gets a fresh registry, zero
// Settings get DefaultSettings and a zero CacheTTL defaults to 30s.
func NewService(opts Options) *Service {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Settings == (Settings{}) {
		opts.Settings = DefaultSettings()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &Service{
		store:    opts.Store,
		cache:    infra.NewCache[*series](opts.CacheTTL),
		metrics:  opts.Metrics,
		logger:   logging.WithComponent(opts.Logger, "dashboard"),
		settings: opts.Settings,
	}
}

// Metrics returns the service's collectors.
func (s *Service) Metrics() *Metrics { return s.metrics }

// Store returns the underlying snapshot store.
func (s *Service) Store() store.Store { return s.store }

// RunJanitor evicts expired cache entries until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	s.cache.RunJanitor(ctx, interval)
}

// SetPublisher installs the ingest callback. Pass nil to remove it.
func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.publish = p
	s.mu.Unlock()
}

// Settings returns the current thresholds.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the thresholds used by later queries.
func (s *Service) UpdateSettings(st Settings) {
	s.mu.Lock()
	s.settings = st
	s.mu.Unlock()
}

func canonical(symbol string) (string, error) {
	sym, ok := utils.NormalizeSymbol(symbol)
	if !ok {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownSymbol, symbol)
	}
	return sym, nil
}

func ingestStatus(err error) string {
	switch {
	case err == nil:
		return "stored"
	case errors.Is(err, store.ErrDuplicateSnapshot):
		return "duplicate"
	case errors.Is(err, store.ErrEmptySnapshot), errors.Is(err, store.ErrUnknownSymbol):
		return "invalid"
	}
	return "error"
}

// Ingest stores one raw snapshot and returns the stored record together with
// the snapshot's aggregate row.
func (s *Service) Ingest(ctx context.Context, symbol string, raw models.RawSnapshot) (store.Record, models.AggregateRow, error) {
	rec, err := s.store.Save(ctx, symbol, raw)
	label := "unknown"
	if sym, ok := utils.NormalizeSymbol(symbol); ok {
		label = sym
	}
	s.metrics.SnapshotsIngested.WithLabelValues(label, ingestStatus(err)).Inc()
	if err != nil {
		return store.Record{}, models.AggregateRow{}, fmt.Errorf("ingest %s: %w", symbol, err)
	}

	agg := derivatives.Aggregate(derivatives.ParseSnapshot(rec.Snapshot))
	s.metrics.PCR.WithLabelValues(rec.Symbol, "oi").Set(agg.PCRByOI)
	s.metrics.PCR.WithLabelValues(rec.Symbol, "volume").Set(agg.PCRByVolume)
	s.cache.InvalidatePrefix(rec.Symbol + "|")
	logging.LogIngest(s.logger, rec.Symbol, rec.ID, rec.Snapshot.Timestamp, len(rec.Snapshot.Rows))

	s.mu.RLock()
	publish := s.publish
	s.mu.RUnlock()
	if publish != nil {
		publish(rec.Symbol, rec, agg)
	}
	return rec, agg, nil
}

// Records lists the stored snapshots of symbol.
func (s *Service) Records(ctx context.Context, symbol string, opts store.ListOptions) ([]store.Record, error) {
	return s.store.List(ctx, symbol, opts)
}

// Clear removes every snapshot of symbol.
func (s *Service) Clear(ctx context.Context, symbol string) (int, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return 0, err
	}
	n, err := s.store.Clear(ctx, sym)
	if err != nil {
		return 0, err
	}
	s.cache.InvalidatePrefix(sym + "|")
	s.logger.Info().Str("symbol", sym).Int("removed", n).Msg("collection cleared")
	return n, nil
}

// load returns the parsed series of symbol, served from cache while the
// collection is unchanged.
func (s *Service) load(ctx context.Context, symbol string) (*series, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.Latest(ctx, sym)
	if errors.Is(err, store.ErrNotFound) {
		return &series{symbol: sym}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", sym, err)
	}
	n, err := s.store.Count(ctx, sym)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", sym, err)
	}

	key := fmt.Sprintf("%s|%d|%s", sym, n, latest.ID)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()

	recs, err := s.store.List(ctx, sym, store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", sym, err)
	}
	snaps := derivatives.ParseSnapshots(store.Snapshots(recs))
	ser := &series{symbol: sym, snaps: snaps, aggs: derivatives.BuildAggregates(snaps)}
	s.cache.InvalidatePrefix(sym + "|")
	s.cache.Set(key, ser)
	return ser, nil
}

// Snapshots returns the parsed snapshots of symbol, oldest first.
func (s *Service) Snapshots(ctx context.Context, symbol string) ([]models.Snapshot, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return ser.snaps, nil
}

// Aggregates returns the PCR series of symbol, oldest first.
func (s *Service) Aggregates(ctx context.Context, symbol string) ([]models.AggregateRow, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return ser.aggs, nil
}

// NetSummary returns snapshot-to-snapshot changes of the chain totals.
func (s *Service) NetSummary(ctx context.Context, symbol string) ([]models.NetChange, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return derivatives.NetSummary(ser.aggs), nil
}

// Reference picks the comparison snapshot for the latest one.
type Reference struct {
	Mode  derivatives.ReferenceMode
	Index int // used by RefIndex
}

// pair returns the latest position and its reference position.
func pair(n int, ref Reference) (cur, prev int, err error) {
	if n < 2 {
		return 0, 0, fmt.Errorf("%w: have %d, need 2", ErrNotEnoughData, n)
	}
	cur = n - 1
	prev, ok := derivatives.SelectReference(n, cur, ref.Mode, ref.Index)
	if !ok {
		return 0, 0, fmt.Errorf("%w: no reference for mode %q index %d", ErrNotEnoughData, ref.Mode, ref.Index)
	}
	return cur, prev, nil
}

// DeltaReport compares the latest snapshot with a reference snapshot.
type DeltaReport struct {
	Symbol    string                `json:"symbol"`
	From      string                `json:"from"`
	To        string                `json:"to"`
	Aggregate models.AggregateDelta `json:"aggregate"`
	Strikes   []models.StrikeDelta  `json:"strikes"`
	Signals   []models.StrikeSignal `json:"signals"`
}

// Deltas computes strike and aggregate deltas of the latest snapshot.
func (s *Service) Deltas(ctx context.Context, symbol string, ref Reference) (DeltaReport, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return DeltaReport{}, err
	}
	cur, prev, err := pair(len(ser.snaps), ref)
	if err != nil {
		return DeltaReport{}, err
	}
	c, p := ser.snaps[cur], ser.snaps[prev]
	return DeltaReport{
		Symbol:    ser.symbol,
		From:      p.Timestamp,
		To:        c.Timestamp,
		Aggregate: derivatives.AggregateDeltas(ser.aggs[cur], ser.aggs[prev]),
		Strikes:   derivatives.StrikeDeltas(c, p),
		Signals:   derivatives.StrikeSignals(c, p),
	}, nil
}

// RankReport is the OI ordering of one side of the latest snapshot.
type RankReport struct {
	Side      models.Side        `json:"side"`
	Timestamp string             `json:"timestamp"`
	Reference string             `json:"reference,omitempty"`
	Ranks     []models.RankEntry `json:"ranks"`
	Deltas    map[string]int     `json:"deltas"`
}

// Ranks ranks the latest snapshot by OI. Rank deltas are filled only when a
// reference snapshot exists.
func (s *Service) Ranks(ctx context.Context, symbol string, side models.Side, ref Reference) (RankReport, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return RankReport{}, err
	}
	if len(ser.snaps) == 0 {
		return RankReport{}, fmt.Errorf("%w: have 0, need 1", ErrNotEnoughData)
	}
	c := ser.snaps[len(ser.snaps)-1]
	rep := RankReport{
		Side:      side,
		Timestamp: c.Timestamp,
		Ranks:     derivatives.Rank(c, side),
		Deltas:    map[string]int{},
	}
	if cur, prev, err := pair(len(ser.snaps), ref); err == nil {
		rep.Reference = ser.snaps[prev].Timestamp
		rep.Deltas = derivatives.RankDeltas(ser.snaps[cur], ser.snaps[prev], side)
	}
	return rep, nil
}

// Bias classifies the window [start, end] of the PCR series. A negative end
// means the latest snapshot. Invalid windows yield an InsufficientData
// verdict rather than an error.
func (s *Service) Bias(ctx context.Context, symbol string, start, end int) (models.BiasVerdict, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return models.BiasVerdict{}, err
	}
	if end < 0 {
		end = len(ser.aggs) - 1
	}
	return derivatives.ClassifyBiasWindow(ser.aggs, start, end, s.Settings().Bias), nil
}

// Flow summarises OI movement of the latest snapshot against a reference.
func (s *Service) Flow(ctx context.Context, symbol string, ref Reference, cfg derivatives.FlowConfig) (models.FlowShift, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return models.FlowShift{}, err
	}
	cur, prev, err := pair(len(ser.snaps), ref)
	if err != nil {
		return models.FlowShift{}, err
	}
	return derivatives.AnalyzeFlow(ser.snaps[cur], ser.snaps[prev], cfg), nil
}

// Heatmap builds the OI-change heatmap of the latest snapshot. spot <= 0
// leaves the ATM strike unset.
func (s *Service) Heatmap(ctx context.Context, symbol string, ref Reference, spot float64) (models.Heatmap, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return models.Heatmap{}, err
	}
	cur, prev, err := pair(len(ser.snaps), ref)
	if err != nil {
		return models.Heatmap{}, err
	}
	return derivatives.Heatmap(ser.snaps[cur], ser.snaps[prev], spot), nil
}

// SeriesReport is one strike metric over time.
type SeriesReport struct {
	Symbol string               `json:"symbol"`
	Key    string               `json:"key"`
	Metric derivatives.Metric   `json:"metric"`
	Points []models.SeriesPoint `json:"points"`
	Stats  models.SeriesStats   `json:"stats"`
}

// StrikeSeries traces metric for one strike across the collection. strike
// may be written in any form the numeric parser accepts ("24,500", "24500.0").
func (s *Service) StrikeSeries(ctx context.Context, symbol, strike string, metric derivatives.Metric) (SeriesReport, error) {
	ser, err := s.load(ctx, symbol)
	if err != nil {
		return SeriesReport{}, err
	}
	_, key := derivatives.StrikeKey(models.T(strike))
	points := derivatives.StrikeSeries(ser.snaps, key, metric)
	return SeriesReport{
		Symbol: ser.symbol,
		Key:    key,
		Metric: metric,
		Points: points,
		Stats:  derivatives.SummarizeSeries(points),
	}, nil
}

// SymbolInfo describes one supported symbol.
type SymbolInfo struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Snapshots int    `json:"snapshots"`
}

// Symbols lists every supported symbol with its snapshot count.
func (s *Service) Symbols(ctx context.Context) ([]SymbolInfo, error) {
	out := make([]SymbolInfo, 0, len(utils.Symbols))
	for _, sym := range utils.Symbols {
		n, err := s.store.Count(ctx, sym)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", sym, err)
		}
		out = append(out, SymbolInfo{Symbol: sym, Name: utils.DisplayName(sym), Snapshots: n})
	}
	return out, nil
}

// AllAggregates loads the PCR series of every symbol concurrently.
func (s *Service) AllAggregates(ctx context.Context) (map[string][]models.AggregateRow, error) {
	out := make(map[string][]models.AggregateRow, len(utils.Symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for _, sym := range utils.Symbols {
		g.Go(func() error {
			aggs, err := s.Aggregates(gctx, sym)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			mu.Lock()
			out[sym] = aggs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SymbolOverview is the headline state of one symbol.
type SymbolOverview struct {
	SymbolInfo
	Latest *models.AggregateRow `json:"latest,omitempty"`
	Bias   models.BiasVerdict   `json:"bias"`
}

// Overview reports every symbol's latest PCR and session bias. Symbols are
// loaded concurrently; the result follows utils.Symbols order.
func (s *Service) Overview(ctx context.Context) ([]SymbolOverview, error) {
	out := make([]SymbolOverview, len(utils.Symbols))
	cfg := s.Settings().Bias

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i, sym := range utils.Symbols {
		g.Go(func() error {
			ser, err := s.load(gctx, sym)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			ov := SymbolOverview{
				SymbolInfo: SymbolInfo{Symbol: sym, Name: utils.DisplayName(sym), Snapshots: len(ser.snaps)},
				Bias:       derivatives.ClassifyBiasWindow(ser.aggs, 0, len(ser.aggs)-1, cfg),
			}
			if n := len(ser.aggs); n > 0 {
				last := ser.aggs[n-1]
				ov.Latest = &last
			}
			out[i] = ov
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
