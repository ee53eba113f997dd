package exchange

import (
	"context"
	"encoding/json"
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
	gateioRESTBase = "https://api.gateio.ws/api/v4"
	gateioWSURL    = "wss://api.gateio.ws/ws/v4/"
)

var gateioJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// GateIO implements Connector for Gate.io: one shared WS endpoint carries
// both the spot.tickers and futures.tickers channels.
type GateIO struct {
	cfg     Config
	http    *HTTPClient
	limiter *ratelimit.RateLimiter
	breaker *circuitbreaker.Breaker

	onUpdate func(model.PriceUpdate)

	symbolMu    sync.RWMutex
	spotSymbols map[string]struct{}
	futContract map[string]string // canonical -> contract (BTC_USDT)

	spotFeed *Feed
	futFeed  *Feed

	restRequests atomic.Uint64
	errs         atomic.Uint64
}

// NewGateIO builds a Gate.io connector reporting updates to onUpdate, tuned by cfg.
func NewGateIO(cfg Config, onUpdate func(model.PriceUpdate)) Connector {
	cfg = cfg.withDefaults()
	return &GateIO{
		cfg:     cfg,
		http:    cfg.httpClient(),
		limiter: ratelimit.NewRateLimiter(cfg.RateLimitRate, cfg.RateLimitBurst),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		}),
		onUpdate:    onUpdate,
		spotSymbols: make(map[string]struct{}),
		futContract: make(map[string]string),
	}
}

func (g *GateIO) ExchangeId() model.ExchangeId { return model.ExchangeGateIO }

func (g *GateIO) get(ctx context.Context, url string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	g.restRequests.Add(1)

	var body []byte
	err := g.breaker.Do(ctx, isNetworkFailure, func(ctx context.Context) error {
		return retry.Do(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Permanent(err)
			}
			resp, err := g.http.Do(req)
			if err != nil {
				g.errs.Add(1)
				return err
			}
			defer resp.Body.Close()
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				g.errs.Add(1)
				return fmt.Errorf("gateio: server error %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Permanent(&ExchangeError{Exchange: model.ExchangeGateIO, Message: string(b)})
			}
			body = b
			return nil
		}, retry.NetworkConfig())
	})
	return body, err
}

func (g *GateIO) fetchSymbols(ctx context.Context) error {
	spotBody, err := g.get(ctx, gateioRESTBase+"/spot/currency_pairs")
	if err != nil {
		return fmt.Errorf("fetch gateio spot symbols: %w", err)
	}
	var spotResp []struct {
		ID         string `json:"id"`
		TradeStatus string `json:"trade_status"`
	}
	if err := gateioJSON.Unmarshal(spotBody, &spotResp); err != nil {
		return err
	}

	futBody, err := g.get(ctx, gateioRESTBase+"/futures/usdt/contracts")
	if err != nil {
		return fmt.Errorf("fetch gateio futures symbols: %w", err)
	}
	var futResp []struct {
		Name       string `json:"name"`
		InDelisting bool  `json:"in_delisting"`
	}
	if err := gateioJSON.Unmarshal(futBody, &futResp); err != nil {
		return err
	}

	g.symbolMu.Lock()
	defer g.symbolMu.Unlock()
	g.spotSymbols = make(map[string]struct{})
	for _, s := range spotResp {
		if s.TradeStatus == "tradable" {
			g.spotSymbols[string(model.NormalizeSymbol(s.ID))] = struct{}{}
		}
	}
	g.futContract = make(map[string]string)
	for _, c := range futResp {
		if !c.InDelisting {
			canonical := string(model.NormalizeSymbol(c.Name))
			g.futContract[canonical] = c.Name
		}
	}
	return nil
}

func (g *GateIO) commonSymbols() []string {
	g.symbolMu.RLock()
	defer g.symbolMu.RUnlock()
	common := make([]string, 0, len(g.spotSymbols))
	for s := range g.spotSymbols {
		if _, ok := g.futContract[s]; ok {
			common = append(common, s)
		}
	}
	return common
}

func (g *GateIO) Start(ctx context.Context) error {
	if err := g.fetchSymbols(ctx); err != nil {
		return err
	}
	symbols := firstN(g.commonSymbols(), maxSubscribeSymbols)

	g.spotFeed = NewFeed(g.cfg.feedConfig("gateio", gateioWSURL, ""), func(conn *websocket.Conn) error {
		for _, sym := range symbols {
			pair := toGateSpotPair(sym)
			msg := map[string]interface{}{
				"time":    time.Now().Unix(),
				"channel": "spot.tickers",
				"event":   "subscribe",
				"payload": []string{pair},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
			sleepBetweenSubscribes()
		}
		return nil
	}, g.handleMessage)

	g.futFeed = NewFeed(g.cfg.feedConfig("gateio", gateioWSURL, ""), func(conn *websocket.Conn) error {
		g.symbolMu.RLock()
		contracts := make(map[string]string, len(g.futContract))
		for k, v := range g.futContract {
			contracts[k] = v
		}
		g.symbolMu.RUnlock()

		for _, sym := range symbols {
			contract := contracts[sym]
			if contract == "" {
				contract = toGateSpotPair(sym)
			}
			msg := map[string]interface{}{
				"time":    time.Now().Unix(),
				"channel": "futures.tickers",
				"event":   "subscribe",
				"payload": []string{"USDT_" + contract},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
			sleepBetweenSubscribes()
		}
		return nil
	}, g.handleMessage)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); g.spotFeed.Run(ctx) }()
	go func() { defer wg.Done(); g.futFeed.Run(ctx) }()
	wg.Wait()
	return nil
}

// toGateSpotPair turns a canonical BTCUSDT into Gate.io's BTC_USDT form.
func toGateSpotPair(canonical string) string {
	base := model.BaseAsset(model.Symbol(canonical))
	return base + "_USDT"
}

// gateTicker is one parsed currency_pair/contract + last-price pair.
type gateTicker struct {
	Symbol string
	Price  float64
}

// parseGateSpotTicker extracts the currency pair and last price from a
// spot.tickers update frame's result payload. Pure: no side effects.
func parseGateSpotTicker(result json.RawMessage) (gateTicker, bool) {
	var r struct {
		CurrencyPair string `json:"currency_pair"`
		Last         string `json:"last"`
	}
	if err := gateioJSON.Unmarshal(result, &r); err != nil || r.CurrencyPair == "" {
		return gateTicker{}, false
	}
	price, err := strconv.ParseFloat(r.Last, 64)
	if err != nil || price <= 0 {
		return gateTicker{}, false
	}
	return gateTicker{Symbol: r.CurrencyPair, Price: price}, true
}

// parseGateFuturesTickers extracts one or more contract/last-price pairs
// from a futures.tickers update frame's result payload, which Gate.io sends
// as either a single object or an array depending on subscription shape.
func parseGateFuturesTickers(result json.RawMessage) []gateTicker {
	var results []struct {
		Contract string `json:"contract"`
		Last     string `json:"last"`
	}
	if err := gateioJSON.Unmarshal(result, &results); err != nil {
		var r struct {
			Contract string `json:"contract"`
			Last     string `json:"last"`
		}
		if err := gateioJSON.Unmarshal(result, &r); err != nil || r.Contract == "" {
			return nil
		}
		results = append(results, r)
	}

	out := make([]gateTicker, 0, len(results))
	for _, r := range results {
		if r.Contract == "" {
			continue
		}
		price, err := strconv.ParseFloat(r.Last, 64)
		if err != nil || price <= 0 {
			continue
		}
		out = append(out, gateTicker{Symbol: strings.TrimPrefix(r.Contract, "USDT_"), Price: price})
	}
	return out
}

func (g *GateIO) handleMessage(raw []byte) {
	var msg struct {
		Channel string          `json:"channel"`
		Event   string          `json:"event"`
		Result  json.RawMessage `json:"result"`
	}
	if err := gateioJSON.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Event != "update" && msg.Event != "" {
		return
	}

	switch msg.Channel {
	case "spot.tickers":
		if t, ok := parseGateSpotTicker(msg.Result); ok {
			g.emit(model.MarketSpot, t.Symbol, t.Price)
		}
	case "futures.tickers":
		for _, t := range parseGateFuturesTickers(msg.Result) {
			g.emit(model.MarketFutures, t.Symbol, t.Price)
		}
	}
}

// emit normalizes rawSymbol and drops it unless it's in this connector's
// known symbol set for market, per spec: unknown symbols are dropped silently.
func (g *GateIO) emit(market model.MarketKind, rawSymbol string, price float64) {
	if g.onUpdate == nil {
		return
	}
	canonical := model.NormalizeSymbol(rawSymbol)

	g.symbolMu.RLock()
	var ok bool
	if market == model.MarketFutures {
		_, ok = g.futContract[string(canonical)]
	} else {
		_, ok = g.spotSymbols[string(canonical)]
	}
	g.symbolMu.RUnlock()
	if !ok {
		return
	}

	g.onUpdate(model.PriceUpdate{
		Exchange:  model.ExchangeGateIO,
		Market:    market,
		Symbol:    canonical,
		Price:     price,
		Timestamp: time.Now(),
	})
}

func (g *GateIO) Close() error {
	var err error
	if g.spotFeed != nil {
		err = g.spotFeed.Close()
	}
	if g.futFeed != nil {
		if ferr := g.futFeed.Close(); ferr != nil {
			err = ferr
		}
	}
	return err
}

func (g *GateIO) SnapshotSpot(ctx context.Context) ([]model.PriceUpdate, error) {
	body, err := g.get(ctx, gateioRESTBase+"/spot/tickers")
	if err != nil {
		return nil, err
	}
	var items []struct {
		CurrencyPair string `json:"currency_pair"`
		Last         string `json:"last"`
	}
	if err := gateioJSON.Unmarshal(body, &items); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]model.PriceUpdate, 0, len(items))
	for _, it := range items {
		price, err := strconv.ParseFloat(it.Last, 64)
		if err != nil || price <= 0 {
			continue
		}
		out = append(out, model.PriceUpdate{
			Exchange: model.ExchangeGateIO, Market: model.MarketSpot,
			Symbol: model.NormalizeSymbol(it.CurrencyPair), Price: price, Timestamp: now,
		})
	}
	return out, nil
}

func (g *GateIO) SnapshotFutures(ctx context.Context) ([]model.PriceUpdate, error) {
	g.symbolMu.RLock()
	contracts := make([]string, 0, len(g.futContract))
	for _, c := range g.futContract {
		contracts = append(contracts, c)
	}
	g.symbolMu.RUnlock()

	now := time.Now()
	out := make([]model.PriceUpdate, 0, len(contracts))
	for _, contract := range contracts {
		body, err := g.get(ctx, gateioRESTBase+"/futures/usdt/contracts/"+contract+"/tickers")
		if err != nil {
			continue
		}
		var items []struct {
			Contract string `json:"contract"`
			Last     string `json:"last"`
		}
		if err := gateioJSON.Unmarshal(body, &items); err != nil || len(items) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(items[0].Last, 64)
		if err != nil || price <= 0 {
			continue
		}
		out = append(out, model.PriceUpdate{
			Exchange: model.ExchangeGateIO, Market: model.MarketFutures,
			Symbol: model.NormalizeSymbol(contract), Price: price, Timestamp: now,
		})
	}
	return out, nil
}

func (g *GateIO) Stats() ConnectorStats {
	state := FeedDisconnected
	reconnects := 0
	var wsMessages uint64
	var lastMsg time.Time
	if g.spotFeed != nil {
		state = g.spotFeed.State()
		r, w, l := g.spotFeed.Stats()
		reconnects += r
		wsMessages += w
		if l.After(lastMsg) {
			lastMsg = l
		}
	}
	if g.futFeed != nil {
		r, w, l := g.futFeed.Stats()
		reconnects += r
		wsMessages += w
		if l.After(lastMsg) {
			lastMsg = l
		}
	}
	return ConnectorStats{
		State:         state.String(),
		RestRequests:  g.restRequests.Load(),
		WSMessages:    wsMessages,
		Errors:        g.errs.Load(),
		Reconnects:    reconnects,
		LastMessageAt: lastMsg,
	}
}
