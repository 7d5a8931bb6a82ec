package utils

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"nifty_50", SymbolNifty50, true},
		{"NIFTY 50", SymbolNifty50, true},
		{"$nifty", SymbolNifty50, true},
		{"nifty_bank", SymbolBankNifty, true},
		{"BankNifty", SymbolBankNifty, true},
		{"nifty-financial", SymbolFinNifty, true},
		{"fin_nifty", SymbolFinNifty, true},
		{"nifty_midcap_50", SymbolMidcapNifty50, true},
		{" midcap_nifty_50 ", SymbolMidcapNifty50, true},
		{"sensex", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := NormalizeSymbol(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NormalizeSymbol(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSymbolsAreCanonical(t *testing.T) {
	for _, s := range Symbols {
		got, ok := NormalizeSymbol(s)
		if !ok || got != s {
			t.Errorf("NormalizeSymbol(%q) = (%q, %v), want itself", s, got, ok)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(SymbolBankNifty); got != "NIFTY BANK" {
		t.Errorf("DisplayName(bank_nifty) = %s, want NIFTY BANK", got)
	}
	if got := DisplayName("foo"); got != "FOO" {
		t.Errorf("DisplayName(foo) = %s, want FOO", got)
	}
}
