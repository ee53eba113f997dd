package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svyatogor/spreadup/internal/model"
	"github.com/svyatogor/spreadup/pkg/clock"
)

func update(exchange model.ExchangeId, market model.MarketKind, symbol string, price float64, ts time.Time) model.PriceUpdate {
	return model.PriceUpdate{
		Exchange:  exchange,
		Market:    market,
		Symbol:    model.Symbol(symbol),
		Price:     price,
		Timestamp: ts,
	}
}

func TestUpdateThenGetWithinTTL(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(fc), WithTTL(300*time.Second))

	u := update(model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, fc.Now())
	c.Update(u)

	got, ok := c.Get(model.ExchangeMEXC, model.MarketSpot, "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, u.Price, got.Price)
}

func TestGetExpiredIsAbsent(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(fc), WithTTL(10*time.Second))

	c.Update(update(model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, fc.Now()))
	fc.Advance(11 * time.Second)

	_, ok := c.Get(model.ExchangeMEXC, model.MarketSpot, "BTCUSDT")
	assert.False(t, ok)
}

func TestAllByMarketGroupsBySymbolAndExchange(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(fc))

	c.Update(update(model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, fc.Now()))
	c.Update(update(model.ExchangeGateIO, model.MarketFutures, "BTCUSDT", 31200, fc.Now()))
	c.Update(update(model.ExchangeMEXC, model.MarketSpot, "ETHUSDT", 2000, fc.Now()))

	spot := c.AllByMarket(model.MarketSpot)
	require.Contains(t, spot, model.Symbol("BTCUSDT"))
	require.Contains(t, spot, model.Symbol("ETHUSDT"))
	assert.Len(t, spot["BTCUSDT"], 1)
	_, hasFutures := spot["BTCUSDT"][model.ExchangeGateIO]
	assert.False(t, hasFutures, "futures entries must not leak into the spot view")

	futures := c.AllByMarket(model.MarketFutures)
	require.Contains(t, futures, model.Symbol("BTCUSDT"))
	assert.Equal(t, 31200.0, futures["BTCUSDT"][model.ExchangeGateIO].Price)
}

func TestEvictExpiredRemovesOnlyStaleEntries(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(fc), WithTTL(10*time.Second))

	c.Update(update(model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, fc.Now()))
	fc.Advance(11 * time.Second)
	c.Update(update(model.ExchangeMEXC, model.MarketSpot, "ETHUSDT", 2000, fc.Now()))

	removed := c.EvictExpired()
	assert.Equal(t, 1, removed)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Entries)
}

func TestStatsCountsHitsAndMisses(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	c := New(WithClock(fc))

	c.Update(update(model.ExchangeMEXC, model.MarketSpot, "BTCUSDT", 30000, fc.Now()))
	c.Get(model.ExchangeMEXC, model.MarketSpot, "BTCUSDT")
	c.Get(model.ExchangeMEXC, model.MarketSpot, "SOLUSDT")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Updates)
}

func TestConcurrentUpdatesAcrossSymbolsDoNotRace(t *testing.T) {
	c := New()
	done := make(chan struct{})
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"}

	for _, sym := range symbols {
		sym := sym
		go func() {
			for i := 0; i < 1000; i++ {
				c.Update(update(model.ExchangeMEXC, model.MarketSpot, sym, float64(i), time.Now()))
			}
			done <- struct{}{}
		}()
	}
	for range symbols {
		<-done
	}

	spot := c.AllByMarket(model.MarketSpot)
	assert.Len(t, spot, len(symbols))
}
