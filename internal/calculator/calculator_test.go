package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svyatogor/spreadup/internal/cache"
	"github.com/svyatogor/spreadup/internal/model"
)

func vol(v float64) *float64 { return &v }

func put(c *cache.Cache, exchange model.ExchangeId, market model.MarketKind, symbol string, price float64, volume *float64) {
	c.Update(model.PriceUpdate{
		Exchange:  exchange,
		Market:    market,
		Symbol:    model.Symbol(symbol),
		Price:     price,
		Volume24h: volume,
		Timestamp: time.Now(),
	})
}

// S1 - Basic detection.
func TestFindOpportunitiesBasicDetection(t *testing.T) {
	c := cache.New()
	put(c, model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, vol(1e8))
	put(c, model.ExchangeGateIO, model.MarketFutures, "BTCUSDT", 31200, nil)

	calc := New(c, 3.0)
	opps := calc.FindOpportunities(nil)

	require.Len(t, opps, 1)
	assert.Equal(t, 4.0, opps[0].SpreadPercent)
	assert.Equal(t, model.ExchangeMEXC, opps[0].SpotExchange)
	assert.Equal(t, model.ExchangeGateIO, opps[0].FuturesExchange)
}

// S2 - Below threshold.
func TestFindOpportunitiesBelowThreshold(t *testing.T) {
	c := cache.New()
	put(c, model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, nil)
	put(c, model.ExchangeGateIO, model.MarketFutures, "BTCUSDT", 30300, nil)

	calc := New(c, 3.0)
	assert.Empty(t, calc.FindOpportunities(nil))
}

// S3 - Unrealistic spread filtered.
func TestFindOpportunitiesUnrealisticSpreadExcluded(t *testing.T) {
	c := cache.New()
	put(c, model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 1.0, nil)
	put(c, model.ExchangeGateIO, model.MarketFutures, "BTCUSDT", 2.0, nil)

	calc := New(c, 3.0)
	assert.Empty(t, calc.FindOpportunities(nil))
}

// S4 - Determinism under ties.
func TestFindOpportunitiesDeterministicTieBreak(t *testing.T) {
	c := cache.New()
	put(c, model.ExchangeMEXC, model.MarketSpot, "ETHUSDT", 100, nil)
	put(c, model.ExchangeGateIO, model.MarketSpot, "ETHUSDT", 100, nil)
	put(c, model.ExchangeBingX, model.MarketFutures, "ETHUSDT", 105, nil)
	put(c, model.ExchangeHTX, model.MarketFutures, "ETHUSDT", 105, nil)

	calc := New(c, 3.0)
	opps := calc.FindOpportunities(nil)

	require.Len(t, opps, 4)
	for _, o := range opps {
		assert.Equal(t, 5.0, o.SpreadPercent)
	}
	assert.Equal(t, model.ExchangeGateIO, opps[0].SpotExchange)
	assert.Equal(t, model.ExchangeBingX, opps[0].FuturesExchange)
	assert.Equal(t, model.ExchangeGateIO, opps[1].SpotExchange)
	assert.Equal(t, model.ExchangeHTX, opps[1].FuturesExchange)
	assert.Equal(t, model.ExchangeMEXC, opps[2].SpotExchange)
	assert.Equal(t, model.ExchangeBingX, opps[2].FuturesExchange)
	assert.Equal(t, model.ExchangeMEXC, opps[3].SpotExchange)
	assert.Equal(t, model.ExchangeHTX, opps[3].FuturesExchange)
}

func TestFindOpportunitiesEmptyWhenDisjoint(t *testing.T) {
	c := cache.New()
	put(c, model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, nil)
	put(c, model.ExchangeGateIO, model.MarketFutures, "ETHUSDT", 3000, nil)

	calc := New(c, 3.0)
	assert.Empty(t, calc.FindOpportunities(nil))
}

func TestFindOpportunitiesSortedNonIncreasing(t *testing.T) {
	c := cache.New()
	put(c, model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, nil)
	put(c, model.ExchangeGateIO, model.MarketFutures, "BTCUSDT", 31200, nil)
	put(c, model.ExchangeMEXC, model.MarketSpot, "ETHUSDT", 2000, nil)
	put(c, model.ExchangeBingX, model.MarketFutures, "ETHUSDT", 2200, nil)

	calc := New(c, 3.0)
	opps := calc.FindOpportunities(nil)
	require.True(t, len(opps) >= 2)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].SpreadPercent, opps[i].SpreadPercent)
	}
}

func TestFindOpportunitiesExchangeFilter(t *testing.T) {
	c := cache.New()
	put(c, model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, nil)
	put(c, model.ExchangeGateIO, model.MarketFutures, "BTCUSDT", 31200, nil)

	calc := New(c, 3.0)
	filter := map[model.ExchangeId]struct{}{model.ExchangeMEXC: {}}
	assert.Empty(t, calc.FindOpportunities(filter))
}
