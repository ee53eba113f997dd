package exchange

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/svyatogor/spreadup/internal/model"
)

func TestParseGateSpotTicker(t *testing.T) {
	result := json.RawMessage(`{"currency_pair":"BTC_USDT","last":"50000"}`)

	ticker, ok := parseGateSpotTicker(result)

	assert.True(t, ok)
	assert.Equal(t, "BTC_USDT", ticker.Symbol)
	assert.Equal(t, 50000.0, ticker.Price)
}

func TestParseGateSpotTickerRejectsMalformed(t *testing.T) {
	cases := []json.RawMessage{
		`{"currency_pair":"","last":"50000"}`,
		`{"currency_pair":"BTC_USDT","last":"0"}`,
		`{"currency_pair":"BTC_USDT","last":"nope"}`,
	}
	for _, result := range cases {
		_, ok := parseGateSpotTicker(result)
		assert.False(t, ok, "expected reject for %s", result)
	}
}

func TestParseGateFuturesTickersArray(t *testing.T) {
	result := json.RawMessage(`[{"contract":"USDT_BTC","last":"50000"},{"contract":"USDT_ETH","last":"3000"}]`)

	tickers := parseGateFuturesTickers(result)

	assert.Len(t, tickers, 2)
	assert.Equal(t, "BTC", tickers[0].Symbol)
	assert.Equal(t, 50000.0, tickers[0].Price)
	assert.Equal(t, "ETH", tickers[1].Symbol)
}

func TestParseGateFuturesTickersSingleObject(t *testing.T) {
	result := json.RawMessage(`{"contract":"USDT_BTC","last":"50000"}`)

	tickers := parseGateFuturesTickers(result)

	assert.Len(t, tickers, 1)
	assert.Equal(t, "BTC", tickers[0].Symbol)
}

func TestGateIOEmitDropsUnknownSymbol(t *testing.T) {
	g := NewGateIO(Config{}, func(u model.PriceUpdate) {
		t.Fatalf("onUpdate should not fire for an unknown symbol, got %v", u)
	}).(*GateIO)
	g.symbolMu.Lock()
	g.spotSymbols["ETHUSDT"] = struct{}{}
	g.symbolMu.Unlock()

	g.handleMessage([]byte(`{"channel":"spot.tickers","event":"update","result":{"currency_pair":"BTC_USDT","last":"50000"}}`))
}

func TestGateIOEmitAcceptsKnownSymbol(t *testing.T) {
	var got []model.PriceUpdate
	g := NewGateIO(Config{}, func(u model.PriceUpdate) {
		got = append(got, u)
	}).(*GateIO)
	g.symbolMu.Lock()
	g.spotSymbols["BTCUSDT"] = struct{}{}
	g.symbolMu.Unlock()

	g.handleMessage([]byte(`{"channel":"spot.tickers","event":"update","result":{"currency_pair":"BTC_USDT","last":"50000"}}`))
	assert.Len(t, got, 1)
}
