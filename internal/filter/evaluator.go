// Package filter implements the per-subscriber filter evaluator (C6): a
// pure, idempotent acceptance test over an opportunity's spread, volume and
// exchange pair against one subscriber's UserFilters. Filters themselves are
// owned and mutated by the chat layer; this package only reads them.
package filter

import "github.com/svyatogor/spreadup/internal/model"

// ShouldAlert conjoins the three acceptance rules in spec order: spread
// range, volume floor (a nil volume always passes), and both exchanges
// being enabled for the subscriber.
func ShouldAlert(f model.UserFilters, opp model.SpreadOpportunity) bool {
	if opp.SpreadPercent < f.MinSpread || opp.SpreadPercent > f.MaxSpread {
		return false
	}
	if opp.Volume24h != nil && *opp.Volume24h < f.MinVolumeUSD {
		return false
	}
	if !f.IsExchangeEnabled(opp.SpotExchange) || !f.IsExchangeEnabled(opp.FuturesExchange) {
		return false
	}
	return true
}
