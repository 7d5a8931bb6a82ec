package derivatives

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/chainpulse/pkg/models"
)

// BiasConfig tunes ClassifyBias.
type BiasConfig struct {
	// OIPercentThreshold is the minimum relative OI change (fraction of the
	// start value) that counts as movement.
	OIPercentThreshold float64 `json:"oi_percent_threshold" mapstructure:"oi_percent_threshold" yaml:"oi_percent_threshold"`
	// PCRThreshold is the minimum absolute PCR change that counts; beyond
	// five times this it scores as strong.
	PCRThreshold float64 `json:"pcr_threshold" mapstructure:"pcr_threshold" yaml:"pcr_threshold"`
	// UseVolume adds a volume skew component.
	UseVolume bool `json:"use_volume" mapstructure:"use_volume" yaml:"use_volume"`
}

// DefaultBiasConfig returns the stock thresholds.
func DefaultBiasConfig() BiasConfig {
	return BiasConfig{OIPercentThreshold: 0.005, PCRThreshold: 0.01, UseVolume: true}
}

const (
	// relEpsilon keeps relative change defined when the start value is 0.
	relEpsilon = 1.0
	// strongPCRFactor multiplies PCRThreshold for a strong PCR move.
	strongPCRFactor = 5
	// biasLabelScore is the |score| at which the label turns directional.
	biasLabelScore = 2
)

// Confidence is a tuned step function of |score|, not a statistic.
var confidenceSteps = []int{0, 40, 65, 90}

func relChange(from, to float64) float64 {
	return (to - from) / (from + relEpsilon)
}

func pct(f float64) string { return fmt.Sprintf("%+.2f%%", f*100) }

// skew scores put/call movement in opposite directions: put rising while
// call falls is bullish (+weight), the reverse bearish (-weight).
func skew(what string, callFrom, callTo, putFrom, putTo, th float64, weight int) (int, string) {
	c, p := relChange(callFrom, callTo), relChange(putFrom, putTo)
	switch {
	case p > th && c < -th:
		return weight, fmt.Sprintf("Put %s %s while Call %s %s (bullish skew)", what, pct(p), what, pct(c))
	case c > th && p < -th:
		return -weight, fmt.Sprintf("Call %s %s while Put %s %s (bearish skew)", what, pct(c), what, pct(p))
	}
	return 0, ""
}

// pcrMove scores the PCR change at PCR precision. A move of at least th
// counts (±1); beyond strongPCRFactor*th it is strong (±2).
func pcrMove(from, to, th float64) (int, string) {
	dp := decimal.NewFromFloat(to).Sub(decimal.NewFromFloat(from)).Round(pcrPlaces)
	if dp.IsZero() {
		return 0, ""
	}
	mild := decimal.NewFromFloat(th)
	strong := mild.Mul(decimal.NewFromInt(strongPCRFactor))
	abs := dp.Abs().StringFixed(pcrPlaces)
	switch {
	case dp.GreaterThan(strong):
		return 2, "PCR rose sharply by " + abs
	case dp.GreaterThanOrEqual(mild):
		return 1, "PCR rose by " + abs
	case dp.LessThan(strong.Neg()):
		return -2, "PCR fell sharply by " + abs
	case dp.LessThanOrEqual(mild.Neg()):
		return -1, "PCR fell by " + abs
	}
	return 0, ""
}

// ClassifyBias scores the directional tilt between two aggregate rows.
// Components are applied in the order OI, PCR, volume and each contributing
// component appends one reason.
func ClassifyBias(start, end models.AggregateRow, cfg BiasConfig) models.BiasVerdict {
	v := models.BiasVerdict{From: start.Timestamp, To: end.Timestamp, Reasons: []string{}}

	if s, why := skew("OI", start.TotalCallOI, end.TotalCallOI, start.TotalPutOI, end.TotalPutOI, cfg.OIPercentThreshold, 2); s != 0 {
		v.Score += s
		v.Reasons = append(v.Reasons, why)
	}

	if s, why := pcrMove(start.PCRByOI, end.PCRByOI, cfg.PCRThreshold); s != 0 {
		v.Score += s
		v.Reasons = append(v.Reasons, why)
	}

	if cfg.UseVolume {
		if s, why := skew("volume", start.TotalCallVolume, end.TotalCallVolume, start.TotalPutVolume, end.TotalPutVolume, cfg.OIPercentThreshold, 1); s != 0 {
			v.Score += s
			v.Reasons = append(v.Reasons, why)
		}
	}

	switch {
	case v.Score >= biasLabelScore:
		v.Label = models.Bullish
	case v.Score <= -biasLabelScore:
		v.Label = models.Bearish
	default:
		v.Label = models.BiasNeutral
	}
	v.Confidence = confidence(v.Score)
	return v
}

func confidence(score int) int {
	if score < 0 {
		score = -score
	}
	if score >= len(confidenceSteps) {
		return confidenceSteps[len(confidenceSteps)-1]
	}
	return confidenceSteps[score]
}

// Insufficient is the verdict for a window with fewer than two points.
func Insufficient() models.BiasVerdict {
	return models.BiasVerdict{Label: models.InsufficientData, Reasons: []string{}}
}

// ClassifyBiasWindow runs ClassifyBias between series[start] and
// series[end]. A window that is out of range or does not span two distinct
// points yields InsufficientData.
func ClassifyBiasWindow(series []models.AggregateRow, start, end int, cfg BiasConfig) models.BiasVerdict {
	if len(series) < 2 || start < 0 || end >= len(series) || start >= end {
		return Insufficient()
	}
	return ClassifyBias(series[start], series[end], cfg)
}
