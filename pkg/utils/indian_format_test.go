package utils

import "testing"

func TestFormatIndian(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{123456, "1,23,456"},
		{1234567, "12,34,567"},
		{123456789, "12,34,56,789"},
		{2847.50, "2,847.5"},
		{-1234.56, "-1,234.56"},
		{10000000, "1,00,00,000"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatIndian(tt.input)
			if result != tt.expected {
				t.Errorf("FormatIndian(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatCompact(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{500, "500"},
		{1200, "1.2k"},
		{-1200, "-1.2k"},
		{250000, "2.5L"},
		{15000000, "1.5Cr"},
		{-32000000, "-3.2Cr"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatCompact(tt.input)
			if result != tt.expected {
				t.Errorf("FormatCompact(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseScale(t *testing.T) {
	tests := []struct {
		input   string
		key     string
		wantErr bool
	}{
		{"", "none", false},
		{"lakh", "lakh", false},
		{"CR", "crore", false},
		{"k", "thousand", false},
		{"Million", "million", false},
		{"billion", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sc, err := ParseScale(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScale(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if sc.Key != tt.key {
				t.Errorf("ParseScale(%q) = %s, want %s", tt.input, sc.Key, tt.key)
			}
		})
	}
}

func TestScaleFormatSigned(t *testing.T) {
	lakh, _ := ParseScale("lakh")
	none, _ := ParseScale("none")
	v := func(f float64) *float64 { return &f }

	tests := []struct {
		scale    Scale
		input    *float64
		expected string
	}{
		{lakh, v(1250000), "+12.5 L"},
		{lakh, v(-50000), "-0.5 L"},
		{none, v(0), "0"},
		{none, v(-42), "-42"},
		{lakh, nil, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.scale.FormatSigned(tt.input)
			if result != tt.expected {
				t.Errorf("FormatSigned = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestFormatPct(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{2.45, "+2.45%"},
		{-1.23, "-1.23%"},
		{0, "+0.00%"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatPct(tt.input)
			if result != tt.expected {
				t.Errorf("FormatPct(%f) = %s, want %s", tt.input, result, tt.expected)
			}
		})
	}
}
