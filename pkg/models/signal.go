package models

// Signal classifies one strike side from its price and OI movement.
type Signal string

const (
	LongBuildUp   Signal = "LongBuildUp"   // price ↑, OI ↑
	ShortBuildUp  Signal = "ShortBuildUp"  // price ↓, OI ↑
	ShortCovering Signal = "ShortCovering" // price ↑, OI ↓
	LongUnwinding Signal = "LongUnwinding" // price ↓, OI ↓
	Neutral       Signal = "Neutral"
	NoData        Signal = "NoData"
)

// BiasLabel is the directional verdict over a window.
type BiasLabel string

const (
	Bullish          BiasLabel = "Bullish"
	Bearish          BiasLabel = "Bearish"
	BiasNeutral      BiasLabel = "Neutral"
	InsufficientData BiasLabel = "InsufficientData"
)

// BiasVerdict is the heuristic directional read between two aggregate rows.
type BiasVerdict struct {
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Score      int       `json:"score"`
	Label      BiasLabel `json:"label"`
	Confidence int       `json:"confidence"` // percent
	Reasons    []string  `json:"reasons"`
}

// StrikeSignal pairs a strike with the call and put classifications.
type StrikeSignal struct {
	Key        string  `json:"key"`
	Strike     float64 `json:"strike"`
	CallSignal Signal  `json:"call_signal"`
	PutSignal  Signal  `json:"put_signal"`
}

// HeatCell is one strike row of the OI-change heatmap.
type HeatCell struct {
	Key            string   `json:"key"`
	Strike         float64  `json:"strike"`
	ATM            bool     `json:"atm"`
	CallOIDelta    *float64 `json:"call_oi_delta"`
	CallPriceDelta *float64 `json:"call_price_delta"`
	CallIntensity  float64  `json:"call_intensity"`
	CallSignal     Signal   `json:"call_signal"`
	PutOIDelta     *float64 `json:"put_oi_delta"`
	PutPriceDelta  *float64 `json:"put_price_delta"`
	PutIntensity   float64  `json:"put_intensity"`
	PutSignal      Signal   `json:"put_signal"`
}

// Heatmap is the per-strike OI-change map between two snapshots.
type Heatmap struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	ATMStrike *float64   `json:"atm_strike"`
	MaxAbsOI  float64    `json:"max_abs_oi_delta"`
	Cells     []HeatCell `json:"cells"`
}

// FlowRow is one strike side in a flow-shift table.
type FlowRow struct {
	Key       string   `json:"key"`
	Strike    float64  `json:"strike"`
	Side      Side     `json:"side"`
	OINow     *float64 `json:"oi_now"`
	OIPrev    *float64 `json:"oi_prev"`
	OIDelta   *float64 `json:"oi_delta"`
	VolNow    *float64 `json:"vol_now"`
	VolPrev   *float64 `json:"vol_prev"`
	VolDelta  *float64 `json:"vol_delta"`
	LTPNow    *float64 `json:"ltp_now"`
	LTPPrev   *float64 `json:"ltp_prev"`
	LTPDelta  *float64 `json:"ltp_delta"`
	PrevRank  *int     `json:"prev_rank"`
	NowRank   *int     `json:"now_rank"`
	RankDelta *int     `json:"rank_delta"`
}

// FlowTables are the ranked views of one side (or both merged).
type FlowTables struct {
	Inflows      []FlowRow `json:"inflows"`
	Outflows     []FlowRow `json:"outflows"`
	VolumeSpikes []FlowRow `json:"volume_spikes"`
	RankUp       []FlowRow `json:"rank_up"`
	RankDown     []FlowRow `json:"rank_down"`
}

// FlowNets are summed per-strike deltas (nil deltas count as zero).
type FlowNets struct {
	NetCallOI     float64 `json:"net_call_oi"`
	NetPutOI      float64 `json:"net_put_oi"`
	NetCallVolume float64 `json:"net_call_volume"`
	NetPutVolume  float64 `json:"net_put_volume"`
}

// FlowShift summarises where open interest moved between two snapshots.
type FlowShift struct {
	From     string     `json:"from"`
	To       string     `json:"to"`
	Call     FlowTables `json:"call"`
	Put      FlowTables `json:"put"`
	Combined FlowTables `json:"combined"`
	Nets     FlowNets   `json:"nets"`
}

// SeriesPoint is one observation of a strike metric.
type SeriesPoint struct {
	Timestamp string  `json:"timestamp"`
	Label     string  `json:"label"`
	Value     float64 `json:"value"`
}

// SeriesStats summarises a strike metric series.
type SeriesStats struct {
	Points      int     `json:"points"`
	Moves       int     `json:"moves"`
	First       float64 `json:"first"`
	Last        float64 `json:"last"`
	TotalChange float64 `json:"total_change"`
	Max         float64 `json:"max"`
	MaxAt       string  `json:"max_at"`
	Min         float64 `json:"min"`
	MinAt       string  `json:"min_at"`
}
