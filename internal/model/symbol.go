package model

import "strings"

// Symbol is the canonical cross-venue trading pair representation: upper
// case, base and quote concatenated with no separator (BTCUSDT). Each
// connector owns the bijection between its own wire format and this form;
// every other component in the system exchanges symbols exclusively in
// canonical form.
type Symbol string

// NormalizeSymbol strips the separators venues commonly use (underscore,
// hyphen) and upper-cases the result. Calling it on an already-canonical
// symbol returns the same value, so connectors can apply it unconditionally
// to venue payloads without first checking their shape.
func NormalizeSymbol(raw string) Symbol {
	s := strings.ToUpper(raw)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	return Symbol(s)
}

// BaseAsset derives the base asset from a canonical USDT-quoted symbol by
// stripping the quote suffix. Every connector in this system only ever
// trades USDT-quoted pairs, matching the upstream data source.
func BaseAsset(sym Symbol) string {
	s := string(sym)
	s = strings.TrimSuffix(s, "_USDT")
	s = strings.TrimSuffix(s, "USDT")
	return s
}
