package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/svyatogor/spreadup/internal/model"
	"github.com/svyatogor/spreadup/pkg/circuitbreaker"
	"github.com/svyatogor/spreadup/pkg/ratelimit"
	"github.com/svyatogor/spreadup/pkg/retry"
)

const (
	mexcSpotRESTBase    = "https://api.mexc.com"
	mexcSpotWSURL       = "wss://wbs.mexc.com/raw/ws"
	mexcFuturesRESTBase = "https://contract.mexc.com"
	mexcFuturesWSURL    = "wss://contract.mexc.com/edge/ws"
)

var mexcJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MEXC implements Connector for the MEXC venue: spot book-ticker and futures
// ticker WS feeds, with REST symbol discovery and snapshot fallback.
type MEXC struct {
	cfg     Config
	http    *HTTPClient
	limiter *ratelimit.RateLimiter
	breaker *circuitbreaker.Breaker

	onUpdate func(model.PriceUpdate)

	symbolMu    sync.RWMutex
	spotSymbols map[string]struct{}
	futSymbols  map[string]struct{} // canonical -> contract symbol lives in futContract
	futContract map[string]string   // canonical (BTCUSDT) -> contract (BTC_USDT)

	spotFeed *Feed
	futFeed  *Feed

	restRequests atomic.Uint64
	errs         atomic.Uint64
}

// NewMEXC builds a MEXC connector reporting updates to onUpdate, tuned by cfg.
func NewMEXC(cfg Config, onUpdate func(model.PriceUpdate)) Connector {
	cfg = cfg.withDefaults()
	return &MEXC{
		cfg:         cfg,
		http:        cfg.httpClient(),
		limiter:     ratelimit.NewRateLimiter(cfg.RateLimitRate, cfg.RateLimitBurst),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		}),
		onUpdate:    onUpdate,
		spotSymbols: make(map[string]struct{}),
		futSymbols:  make(map[string]struct{}),
		futContract: make(map[string]string),
	}
}

func (m *MEXC) ExchangeId() model.ExchangeId { return model.ExchangeMEXC }

func (m *MEXC) get(ctx context.Context, url string) ([]byte, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	m.restRequests.Add(1)

	var body []byte
	err := m.breaker.Do(ctx, isNetworkFailure, func(ctx context.Context) error {
		return retry.Do(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Permanent(err)
			}
			resp, err := m.http.Do(req)
			if err != nil {
				m.errs.Add(1)
				return err
			}
			defer resp.Body.Close()
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				m.errs.Add(1)
				return fmt.Errorf("mexc: server error %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Permanent(&ExchangeError{Exchange: model.ExchangeMEXC, Message: string(b)})
			}
			body = b
			return nil
		}, retry.NetworkConfig())
	})
	return body, err
}

func (m *MEXC) fetchSymbols(ctx context.Context) error {
	spotBody, err := m.get(ctx, mexcSpotRESTBase+"/api/v3/exchangeInfo")
	if err != nil {
		return fmt.Errorf("fetch mexc spot symbols: %w", err)
	}
	var spotResp struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"symbols"`
	}
	if err := mexcJSON.Unmarshal(spotBody, &spotResp); err != nil {
		return err
	}

	futBody, err := m.get(ctx, mexcFuturesRESTBase+"/api/v1/contract/detail")
	if err != nil {
		return fmt.Errorf("fetch mexc futures symbols: %w", err)
	}
	var futResp struct {
		Data []struct {
			Symbol string `json:"symbol"`
			State  int    `json:"state"`
		} `json:"data"`
	}
	if err := mexcJSON.Unmarshal(futBody, &futResp); err != nil {
		return err
	}

	m.symbolMu.Lock()
	defer m.symbolMu.Unlock()
	m.spotSymbols = make(map[string]struct{})
	for _, s := range spotResp.Symbols {
		if s.Status == "ENABLED" {
			m.spotSymbols[string(model.NormalizeSymbol(s.Symbol))] = struct{}{}
		}
	}
	m.futSymbols = make(map[string]struct{})
	m.futContract = make(map[string]string)
	for _, c := range futResp.Data {
		if c.State == 0 {
			canonical := string(model.NormalizeSymbol(c.Symbol))
			m.futSymbols[canonical] = struct{}{}
			m.futContract[canonical] = c.Symbol
		}
	}
	return nil
}

func (m *MEXC) commonSymbols() []string {
	m.symbolMu.RLock()
	defer m.symbolMu.RUnlock()
	common := make([]string, 0, len(m.spotSymbols))
	for s := range m.spotSymbols {
		if _, ok := m.futSymbols[s]; ok {
			common = append(common, s)
		}
	}
	return common
}

func (m *MEXC) Start(ctx context.Context) error {
	if err := m.fetchSymbols(ctx); err != nil {
		return err
	}
	symbols := firstN(m.commonSymbols(), maxSubscribeSymbols)

	m.spotFeed = NewFeed(m.cfg.feedConfig("mexc", mexcSpotWSURL, ""), func(conn *websocket.Conn) error {
		for _, sym := range symbols {
			msg := map[string]interface{}{
				"method": "SUBSCRIPTION",
				"params": []string{"spot@public.aggre.bookTicker.v3.api.pb@" + sym},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
			sleepBetweenSubscribes()
		}
		return nil
	}, m.handleSpotMessage)

	m.futFeed = NewFeed(m.cfg.feedConfig("mexc", mexcFuturesWSURL, ""), func(conn *websocket.Conn) error {
		m.symbolMu.RLock()
		contracts := make(map[string]string, len(m.futContract))
		for k, v := range m.futContract {
			contracts[k] = v
		}
		m.symbolMu.RUnlock()

		for _, sym := range symbols {
			contract := contracts[sym]
			if contract == "" {
				contract = sym
			}
			msg := map[string]interface{}{
				"method": "sub.ticker",
				"param":  map[string]string{"symbol": contract},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
			sleepBetweenSubscribes()
		}
		return nil
	}, m.handleFuturesMessage)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.spotFeed.Run(ctx) }()
	go func() { defer wg.Done(); m.futFeed.Run(ctx) }()
	wg.Wait()
	return nil
}

// parseMEXCSpotTicker extracts a mid price from a raw spot@public.aggre.bookTicker
// push frame. Pure: no side effects, safe to round-trip against serialized fixtures.
func parseMEXCSpotTicker(raw []byte) (symbol string, price float64, ok bool) {
	var msg struct {
		D struct {
			S string `json:"s"`
			B string `json:"b"`
			A string `json:"a"`
		} `json:"d"`
	}
	if err := mexcJSON.Unmarshal(raw, &msg); err != nil || msg.D.S == "" {
		return "", 0, false
	}
	bid, errB := strconv.ParseFloat(msg.D.B, 64)
	ask, errA := strconv.ParseFloat(msg.D.A, 64)
	if errB != nil || errA != nil || bid <= 0 || ask <= 0 {
		return "", 0, false
	}
	return msg.D.S, (bid + ask) / 2, true
}

// parseMEXCFuturesTicker extracts the last price from a sub.ticker push frame.
func parseMEXCFuturesTicker(raw []byte) (symbol string, price float64, ok bool) {
	var msg struct {
		Data struct {
			Symbol    string  `json:"symbol"`
			LastPrice float64 `json:"lastPrice"`
		} `json:"data"`
	}
	if err := mexcJSON.Unmarshal(raw, &msg); err != nil || msg.Data.Symbol == "" || msg.Data.LastPrice <= 0 {
		return "", 0, false
	}
	return strings.ReplaceAll(msg.Data.Symbol, "_", ""), msg.Data.LastPrice, true
}

func (m *MEXC) handleSpotMessage(raw []byte) {
	symbol, price, ok := parseMEXCSpotTicker(raw)
	if !ok {
		return
	}
	m.emit(model.MarketSpot, symbol, price, nil)
}

func (m *MEXC) handleFuturesMessage(raw []byte) {
	symbol, price, ok := parseMEXCFuturesTicker(raw)
	if !ok {
		return
	}
	m.emit(model.MarketFutures, symbol, price, nil)
}

// emit normalizes rawSymbol and drops it unless it's in this connector's
// known symbol set for market, per spec: unknown symbols are dropped silently.
func (m *MEXC) emit(market model.MarketKind, rawSymbol string, price float64, volume *float64) {
	if m.onUpdate == nil {
		return
	}
	canonical := model.NormalizeSymbol(rawSymbol)

	m.symbolMu.RLock()
	known := m.spotSymbols
	if market == model.MarketFutures {
		known = m.futSymbols
	}
	_, ok := known[string(canonical)]
	m.symbolMu.RUnlock()
	if !ok {
		return
	}

	m.onUpdate(model.PriceUpdate{
		Exchange:  model.ExchangeMEXC,
		Market:    market,
		Symbol:    canonical,
		Price:     price,
		Volume24h: volume,
		Timestamp: time.Now(),
	})
}

func (m *MEXC) Close() error {
	var err error
	if m.spotFeed != nil {
		err = m.spotFeed.Close()
	}
	if m.futFeed != nil {
		if ferr := m.futFeed.Close(); ferr != nil {
			err = ferr
		}
	}
	return err
}

func (m *MEXC) SnapshotSpot(ctx context.Context) ([]model.PriceUpdate, error) {
	body, err := m.get(ctx, mexcSpotRESTBase+"/api/v3/ticker/price")
	if err != nil {
		return nil, err
	}
	var items []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := mexcJSON.Unmarshal(body, &items); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]model.PriceUpdate, 0, len(items))
	for _, it := range items {
		price, err := strconv.ParseFloat(it.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		out = append(out, model.PriceUpdate{
			Exchange: model.ExchangeMEXC, Market: model.MarketSpot,
			Symbol: model.NormalizeSymbol(it.Symbol), Price: price, Timestamp: now,
		})
	}
	return out, nil
}

func (m *MEXC) SnapshotFutures(ctx context.Context) ([]model.PriceUpdate, error) {
	body, err := m.get(ctx, mexcFuturesRESTBase+"/api/v1/contract/ticker")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			Symbol    string  `json:"symbol"`
			LastPrice float64 `json:"lastPrice"`
		} `json:"data"`
	}
	if err := mexcJSON.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]model.PriceUpdate, 0, len(resp.Data))
	for _, it := range resp.Data {
		if it.LastPrice <= 0 {
			continue
		}
		out = append(out, model.PriceUpdate{
			Exchange: model.ExchangeMEXC, Market: model.MarketFutures,
			Symbol: model.NormalizeSymbol(strings.ReplaceAll(it.Symbol, "_", "")),
			Price:  it.LastPrice, Timestamp: now,
		})
	}
	return out, nil
}

func (m *MEXC) Stats() ConnectorStats {
	state := FeedDisconnected
	reconnects := 0
	var wsMessages uint64
	var lastMsg time.Time
	if m.spotFeed != nil {
		state = m.spotFeed.State()
		r, w, l := m.spotFeed.Stats()
		reconnects += r
		wsMessages += w
		if l.After(lastMsg) {
			lastMsg = l
		}
	}
	if m.futFeed != nil {
		r, w, l := m.futFeed.Stats()
		reconnects += r
		wsMessages += w
		if l.After(lastMsg) {
			lastMsg = l
		}
	}
	return ConnectorStats{
		State:         state.String(),
		RestRequests:  m.restRequests.Load(),
		WSMessages:    wsMessages,
		Errors:        m.errs.Load(),
		Reconnects:    reconnects,
		LastMessageAt: lastMsg,
	}
}
