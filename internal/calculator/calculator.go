// Package calculator implements the spread calculator (C4): it scans the
// price cache for symbols quoted on both a spot and a futures venue and
// ranks the resulting cross-exchange spreads.
package calculator

import (
	"math"
	"sort"
	"time"

	"github.com/svyatogor/spreadup/internal/cache"
	"github.com/svyatogor/spreadup/internal/model"
)

// DefaultThreshold is the minimum spread percentage considered an opportunity.
const DefaultThreshold = 3.0

const (
	minRealisticSpread = 0.0
	maxRealisticSpread = 50.0
)

// Calculator is stateless beyond its configured threshold; every call to
// FindOpportunities takes its own snapshot of the cache (the "arena" for
// spot_by_symbol/futures_by_symbol is scoped to one call and discarded).
type Calculator struct {
	cache     *cache.Cache
	threshold float64
}

// New builds a Calculator reading from c, using threshold as the minimum
// accepted spread percentage (DefaultThreshold if <= 0).
func New(c *cache.Cache, threshold float64) *Calculator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Calculator{cache: c, threshold: threshold}
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

// FindOpportunities scans the cache for common symbols between spot and
// futures and returns accepted opportunities sorted descending by spread,
// with ties broken by (symbol, spot_exchange, futures_exchange) for
// determinism. When exchangeFilter is non-nil, only prices quoted on one of
// the listed exchanges are considered on either side.
func (c *Calculator) FindOpportunities(exchangeFilter map[model.ExchangeId]struct{}) []model.SpreadOpportunity {
	spotBySymbol := c.cache.AllByMarket(model.MarketSpot)
	futuresBySymbol := c.cache.AllByMarket(model.MarketFutures)

	var out []model.SpreadOpportunity

	for symbol, spotPrices := range spotBySymbol {
		futuresPrices, ok := futuresBySymbol[symbol]
		if !ok {
			continue
		}

		for se, sp := range spotPrices {
			if exchangeFilter != nil {
				if _, allowed := exchangeFilter[se]; !allowed {
					continue
				}
			}
			for fe, fp := range futuresPrices {
				if exchangeFilter != nil {
					if _, allowed := exchangeFilter[fe]; !allowed {
						continue
					}
				}

				opp, ok := evaluate(symbol, se, sp, fe, fp, c.threshold)
				if ok {
					out = append(out, opp)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SpreadPercent != b.SpreadPercent {
			return a.SpreadPercent > b.SpreadPercent
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.SpotExchange != b.SpotExchange {
			return a.SpotExchange < b.SpotExchange
		}
		return a.FuturesExchange < b.FuturesExchange
	})

	return out
}

func evaluate(symbol model.Symbol, se model.ExchangeId, sp model.PriceUpdate, fe model.ExchangeId, fp model.PriceUpdate, threshold float64) (model.SpreadOpportunity, bool) {
	if sp.Price <= 0 {
		return model.SpreadOpportunity{}, false
	}

	spread := (fp.Price - sp.Price) / sp.Price * 100
	if spread < threshold || spread <= minRealisticSpread || spread >= maxRealisticSpread {
		return model.SpreadOpportunity{}, false
	}
	if fp.Price <= sp.Price {
		return model.SpreadOpportunity{}, false
	}

	var latency *float64
	if sp.LatencyMs != nil && fp.LatencyMs != nil {
		m := math.Max(*sp.LatencyMs, *fp.LatencyMs)
		latency = &m
	}

	ts := sp.Timestamp
	if fp.Timestamp.After(ts) {
		ts = fp.Timestamp
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return model.SpreadOpportunity{
		Symbol:          symbol,
		BaseAsset:       model.BaseAsset(symbol),
		SpotExchange:    se,
		SpotPrice:       sp.Price,
		FuturesExchange: fe,
		FuturesPrice:    fp.Price,
		SpreadPercent:   round4(spread),
		Timestamp:       ts,
		LatencyMs:       latency,
		// Some venues only report 24h volume on the spot side; whether
		// futures volume should ever override is unresolved upstream, so
		// we always take the spot side, matching current behavior.
		Volume24h: sp.Volume24h,
	}, true
}
