package models

import (
	"bytes"
	"encoding/json"
)

// Text is a scraped field as it arrived from upstream. It accepts a JSON
// string, a bare JSON number or null; numbers are kept as their literal text
// so every numeric field still goes through the parser exactly once.
type Text struct {
	Value string
	Valid bool
}

// T wraps a string into a valid Text.
func T(s string) Text { return Text{Value: s, Valid: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Text{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text{Value: s, Valid: true}
		return nil
	}
	*t = Text{Value: string(b), Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value)
}

// RawStrikeRow is one strike of an option chain exactly as the scraper
// produced it. Field names follow the scraper's document layout.
type RawStrikeRow struct {
	StrikePrice Text `json:"StrikePrice"`
	CallOI      Text `json:"CallOI"`
	CallVol     Text `json:"CallVol"`
	CallLTP     Text `json:"CallLTP"`
	CallChgLTP  Text `json:"CallChgLTP"`
	PutOI       Text `json:"PutOI"`
	PutVol      Text `json:"PutVol"`
	PutLTP      Text `json:"PutLTP"`
	PutChgLTP   Text `json:"PutChgLTP"`
}

// RawSnapshot is one scraped capture of a full strike ladder.
type RawSnapshot struct {
	ID        string         `json:"id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Rows      []RawStrikeRow `json:"rows"`
}

// UnmarshalJSON accepts both "rows" and the legacy document key "data".
func (s *RawSnapshot) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID        string         `json:"id"`
		Timestamp string         `json:"timestamp"`
		Rows      []RawStrikeRow `json:"rows"`
		Data      []RawStrikeRow `json:"data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.ID = aux.ID
	s.Timestamp = aux.Timestamp
	s.Rows = aux.Rows
	if s.Rows == nil {
		s.Rows = aux.Data
	}
	return nil
}

// Side selects the call or put half of the chain.
type Side string

const (
	SideCall Side = "call"
	SidePut  Side = "put"
)

// StrikeRow is one strike's parsed state at one point in time.
// A nil field means the upstream value was missing or unparseable.
type StrikeRow struct {
	Strike float64 `json:"strike"`
	Key    string  `json:"key"` // canonical strike text, unique within a snapshot

	CallOI             *float64 `json:"call_oi"`
	CallVolume         *float64 `json:"call_volume"`
	CallLastPrice      *float64 `json:"call_ltp"`
	CallPriceChange    *float64 `json:"call_ltp_change"`
	CallPriceChangePct *float64 `json:"call_ltp_change_pct"`

	PutOI             *float64 `json:"put_oi"`
	PutVolume         *float64 `json:"put_volume"`
	PutLastPrice      *float64 `json:"put_ltp"`
	PutPriceChange    *float64 `json:"put_ltp_change"`
	PutPriceChangePct *float64 `json:"put_ltp_change_pct"`
}

// OI returns the open interest of one side.
func (r StrikeRow) OI(side Side) *float64 {
	if side == SidePut {
		return r.PutOI
	}
	return r.CallOI
}

// Volume returns the traded volume of one side.
func (r StrikeRow) Volume(side Side) *float64 {
	if side == SidePut {
		return r.PutVolume
	}
	return r.CallVolume
}

// LastPrice returns the last traded price of one side.
func (r StrikeRow) LastPrice(side Side) *float64 {
	if side == SidePut {
		return r.PutLastPrice
	}
	return r.CallLastPrice
}

// Snapshot is one parsed point-in-time capture for one symbol.
type Snapshot struct {
	Timestamp string      `json:"timestamp"`
	Rows      []StrikeRow `json:"rows"`
}

// AggregateRow is the chain-wide totals of one snapshot.
type AggregateRow struct {
	Timestamp       string  `json:"timestamp"`
	TotalCallOI     float64 `json:"total_call_oi"`
	TotalPutOI      float64 `json:"total_put_oi"`
	TotalCallVolume float64 `json:"total_call_volume"`
	TotalPutVolume  float64 `json:"total_put_volume"`
	PCRByOI         float64 `json:"pcr_oi"`
	PCRByVolume     float64 `json:"pcr_volume"`
}

// AggregateDelta is AggregateRow subtraction (current minus reference).
type AggregateDelta struct {
	From             string  `json:"from"`
	To               string  `json:"to"`
	CallOIDelta      float64 `json:"call_oi_delta"`
	PutOIDelta       float64 `json:"put_oi_delta"`
	CallVolumeDelta  float64 `json:"call_volume_delta"`
	PutVolumeDelta   float64 `json:"put_volume_delta"`
	PCRByOIDelta     float64 `json:"pcr_oi_delta"`
	PCRByVolumeDelta float64 `json:"pcr_volume_delta"`
}

// NetChange is the snapshot-to-snapshot change of the chain totals.
type NetChange struct {
	Timestamp     string  `json:"timestamp"`
	NetCallOI     float64 `json:"net_call_oi"`
	NetPutOI      float64 `json:"net_put_oi"`
	NetCallVolume float64 `json:"net_call_volume"`
	NetPutVolume  float64 `json:"net_put_volume"`
}

// SideDelta holds one side's changes for a strike.
type SideDelta struct {
	OIDelta     *float64 `json:"oi_delta"`
	VolumeDelta *float64 `json:"volume_delta"`
	PriceDelta  *float64 `json:"price_delta"`
}

// StrikeDelta compares a strike in the current snapshot with the same strike
// in the reference snapshot.
type StrikeDelta struct {
	Strike      float64   `json:"strike"`
	Key         string    `json:"key"`
	InReference bool      `json:"in_reference"`
	Call        SideDelta `json:"call"`
	Put         SideDelta `json:"put"`
}

// Side returns the delta block of one side.
func (d StrikeDelta) Side(side Side) SideDelta {
	if side == SidePut {
		return d.Put
	}
	return d.Call
}

// RankEntry is a strike's position in the OI ordering of one snapshot.
type RankEntry struct {
	Key    string  `json:"key"`
	Strike float64 `json:"strike"`
	OI     float64 `json:"oi"`
	Rank   int     `json:"rank"`
}
