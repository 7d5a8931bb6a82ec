package utils

import (
	"strings"
)

// Canonical option-chain symbols. They double as storage collection names.
const (
	SymbolNifty50       = "nifty_50"
	SymbolBankNifty     = "bank_nifty"
	SymbolFinNifty      = "fin_nifty"
	SymbolMidcapNifty50 = "midcap_nifty_50"
)

// Symbols lists the canonical symbols in display order.
var Symbols = []string{SymbolNifty50, SymbolBankNifty, SymbolFinNifty, SymbolMidcapNifty50}

// symbolAliases maps user and legacy route spellings to canonical symbols.
var symbolAliases = map[string]string{
	"nifty_50":        SymbolNifty50,
	"nifty50":         SymbolNifty50,
	"nifty":           SymbolNifty50,
	"bank_nifty":      SymbolBankNifty,
	"banknifty":       SymbolBankNifty,
	"nifty_bank":      SymbolBankNifty,
	"niftybank":       SymbolBankNifty,
	"fin_nifty":       SymbolFinNifty,
	"finnifty":        SymbolFinNifty,
	"nifty_financial": SymbolFinNifty,
	"nifty_fin":       SymbolFinNifty,
	"midcap_nifty_50": SymbolMidcapNifty50,
	"nifty_midcap_50": SymbolMidcapNifty50,
	"midcpnifty":      SymbolMidcapNifty50,
	"midcap_nifty":    SymbolMidcapNifty50,
}

// NSE index names as shown on the exchange.
var displayNames = map[string]string{
	SymbolNifty50:       "NIFTY 50",
	SymbolBankNifty:     "NIFTY BANK",
	SymbolFinNifty:      "NIFTY FIN SERVICE",
	SymbolMidcapNifty50: "NIFTY MIDCAP 50",
}

// NormalizeSymbol maps user input to a canonical symbol. It handles case,
// surrounding whitespace, a leading "$" and space or hyphen separators.
// The second result is false when the symbol is unknown.
func NormalizeSymbol(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "$")
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	canonical, ok := symbolAliases[s]
	return canonical, ok
}

// DisplayName returns the exchange name of a canonical symbol, or the input
// upper-cased when it is not one.
func DisplayName(symbol string) string {
	if n, ok := displayNames[symbol]; ok {
		return n
	}
	return strings.ToUpper(symbol)
}
