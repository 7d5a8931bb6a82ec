// Package utils provides symbol, number-format and market-clock helpers for
// chainpulse.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// Scale is a display unit for large contract counts.
type Scale struct {
	Key     string  `json:"key"`
	Divisor float64 `json:"divisor"`
	Unit    string  `json:"unit"`
}

// Scales are the supported display units, smallest first.
var Scales = []Scale{
	{Key: "none", Divisor: 1},
	{Key: "thousand", Divisor: 1e3, Unit: "K"},
	{Key: "lakh", Divisor: 1e5, Unit: "L"},
	{Key: "million", Divisor: 1e6, Unit: "M"},
	{Key: "crore", Divisor: 1e7, Unit: "Cr"},
}

// ParseScale looks up a scale by key or unit, case-insensitively. An empty
// string selects "none".
func ParseScale(s string) (Scale, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Scales[0], nil
	}
	for _, sc := range Scales {
		if strings.EqualFold(s, sc.Key) || (sc.Unit != "" && strings.EqualFold(s, sc.Unit)) {
			return sc, nil
		}
	}
	return Scale{}, fmt.Errorf("unknown scale %q", s)
}

// Apply divides v by the scale.
func (s Scale) Apply(v float64) float64 {
	if s.Divisor == 0 {
		return v
	}
	return v / s.Divisor
}

// FormatSigned renders a delta in the scale with an explicit "+" for gains,
// e.g. 1250000 in lakhs → "+12.5 L". A nil value renders as "-".
func (s Scale) FormatSigned(v *float64) string {
	if v == nil {
		return "-"
	}
	sign := ""
	if *v > 0 {
		sign = "+"
	}
	out := sign + trimDecimals(s.Apply(*v))
	if s.Unit != "" {
		out += " " + s.Unit
	}
	return out
}

// FormatCompact abbreviates a count with Indian units to one decimal:
// 1.5e7 → "1.5Cr", 250000 → "2.5L", 1200 → "1.2k". Smaller values use
// Indian digit grouping.
func FormatCompact(n float64) string {
	a := math.Abs(n)
	switch {
	case a >= 1e7:
		return fmt.Sprintf("%.1fCr", n/1e7)
	case a >= 1e5:
		return fmt.Sprintf("%.1fL", n/1e5)
	case a >= 1e3:
		return fmt.Sprintf("%.1fk", n/1e3)
	}
	return FormatIndian(n)
}

// FormatIndian formats a number with Indian digit grouping (last 3, then
// groups of 2), keeping up to two decimals: 1234567.5 → "12,34,567.5".
func FormatIndian(n float64) string {
	neg := n < 0
	n = math.Abs(n)
	s := trimDecimals(n)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	out := groupIndian(intPart) + frac
	if neg && out != "0" {
		return "-" + out
	}
	return out
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// groupIndian inserts Indian separators into a string of digits.
func groupIndian(s string) string {
	if len(s) <= 3 {
		return s
	}
	result := s[len(s)-3:]
	remaining := s[:len(s)-3]
	for len(remaining) > 2 {
		result = remaining[len(remaining)-2:] + "," + result
		remaining = remaining[:len(remaining)-2]
	}
	if remaining != "" {
		result = remaining + "," + result
	}
	return result
}

// trimDecimals formats with up to 2 decimal places, removing trailing zeros.
func trimDecimals(n float64) string {
	s := fmt.Sprintf("%.2f", n)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
