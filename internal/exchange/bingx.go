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
	bingxRESTBase = "https://open-api.bingx.com"
	bingxSpotWSURL    = "wss://open-api-ws.bingx.com/spot/ws"
	bingxFuturesWSURL = "wss://open-api-ws.bingx.com/swap/ws"
)

var bingxJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// BingX implements Connector for BingX. Both WS endpoints offer an
// all-tickers channel, so no per-symbol subscription throttling applies -
// only the required literal "ping" text frame every 20s keeps the socket
// alive.
type BingX struct {
	cfg     Config
	http    *HTTPClient
	limiter *ratelimit.RateLimiter
	breaker *circuitbreaker.Breaker

	onUpdate func(model.PriceUpdate)

	symbolMu    sync.RWMutex
	spotSymbols map[string]struct{}
	futSymbols  map[string]struct{}

	spotFeed *Feed
	futFeed  *Feed

	restRequests atomic.Uint64
	errs         atomic.Uint64
}

// NewBingX builds a BingX connector reporting updates to onUpdate, tuned by cfg.
func NewBingX(cfg Config, onUpdate func(model.PriceUpdate)) Connector {
	cfg = cfg.withDefaults()
	return &BingX{
		cfg:     cfg,
		http:    cfg.httpClient(),
		limiter: ratelimit.NewRateLimiter(cfg.RateLimitRate, cfg.RateLimitBurst),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		}),
		onUpdate:    onUpdate,
		spotSymbols: make(map[string]struct{}),
		futSymbols:  make(map[string]struct{}),
	}
}

func (x *BingX) ExchangeId() model.ExchangeId { return model.ExchangeBingX }

func (x *BingX) get(ctx context.Context, url string) ([]byte, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	x.restRequests.Add(1)

	var body []byte
	err := x.breaker.Do(ctx, isNetworkFailure, func(ctx context.Context) error {
		return retry.Do(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Permanent(err)
			}
			resp, err := x.http.Do(req)
			if err != nil {
				x.errs.Add(1)
				return err
			}
			defer resp.Body.Close()
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				x.errs.Add(1)
				return fmt.Errorf("bingx: server error %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Permanent(&ExchangeError{Exchange: model.ExchangeBingX, Message: string(b)})
			}
			body = b
			return nil
		}, retry.NetworkConfig())
	})
	return body, err
}

// fetchSymbols populates the known spot/futures symbol sets used to gate
// inbound WS ticks, mirroring MEXC's and Gate.io's discovery step.
func (x *BingX) fetchSymbols(ctx context.Context) error {
	spotBody, err := x.get(ctx, bingxRESTBase+"/openApi/spot/v1/common/symbols")
	if err != nil {
		return fmt.Errorf("fetch bingx spot symbols: %w", err)
	}
	var spotResp struct {
		Data struct {
			Symbols []struct {
				Symbol string `json:"symbol"`
				Status int    `json:"status"`
			} `json:"symbols"`
		} `json:"data"`
	}
	if err := bingxJSON.Unmarshal(spotBody, &spotResp); err != nil {
		return err
	}

	futBody, err := x.get(ctx, bingxRESTBase+"/openApi/swap/v2/quote/contracts")
	if err != nil {
		return fmt.Errorf("fetch bingx futures symbols: %w", err)
	}
	var futResp struct {
		Data []struct {
			Symbol string `json:"symbol"`
			Status int    `json:"status"`
		} `json:"data"`
	}
	if err := bingxJSON.Unmarshal(futBody, &futResp); err != nil {
		return err
	}

	x.symbolMu.Lock()
	defer x.symbolMu.Unlock()
	x.spotSymbols = make(map[string]struct{})
	for _, s := range spotResp.Data.Symbols {
		if s.Status == 1 && s.Symbol != "" {
			x.spotSymbols[string(model.NormalizeSymbol(s.Symbol))] = struct{}{}
		}
	}
	x.futSymbols = make(map[string]struct{})
	for _, c := range futResp.Data {
		if c.Status == 1 && c.Symbol != "" {
			x.futSymbols[string(model.NormalizeSymbol(strings.ReplaceAll(c.Symbol, "-", "")))] = struct{}{}
		}
	}
	return nil
}

func (x *BingX) Start(ctx context.Context) error {
	if err := x.fetchSymbols(ctx); err != nil {
		return err
	}

	x.spotFeed = NewFeed(x.cfg.feedConfig("bingx", bingxSpotWSURL, "ping"), func(conn *websocket.Conn) error {
		return conn.WriteJSON(map[string]interface{}{
			"id":          "spot_ticker_all",
			"requestType": "subscribe",
			"dataType":    "ticker",
		})
	}, func(msg []byte) { x.handleMessage(model.MarketSpot, msg) })

	x.futFeed = NewFeed(x.cfg.feedConfig("bingx", bingxFuturesWSURL, "ping"), func(conn *websocket.Conn) error {
		return conn.WriteJSON(map[string]interface{}{
			"id":          "swap_ticker_all",
			"requestType": "subscribe",
			"dataType":    "ticker",
		})
	}, func(msg []byte) { x.handleMessage(model.MarketFutures, msg) })

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); x.spotFeed.Run(ctx) }()
	go func() { defer wg.Done(); x.futFeed.Run(ctx) }()
	wg.Wait()
	return nil
}

// parseBingXTicker extracts the symbol and price from a ticker push frame,
// applying the futures "-" separator normalization where market requires
// it. Pure: no side effects.
func parseBingXTicker(market model.MarketKind, raw []byte) (symbol string, price float64, ok bool) {
	if string(raw) == "ping" || string(raw) == "pong" {
		return "", 0, false
	}
	var msg struct {
		DataType string                 `json:"dataType"`
		Data     map[string]interface{} `json:"data"`
	}
	if err := bingxJSON.Unmarshal(raw, &msg); err != nil {
		return "", 0, false
	}
	if !strings.Contains(msg.DataType, "ticker") {
		return "", 0, false
	}
	symbol, _ = msg.Data["symbol"].(string)
	price, err := strconv.ParseFloat(fmt.Sprintf("%v", msg.Data["price"]), 64)
	if symbol == "" || err != nil || price <= 0 {
		return "", 0, false
	}
	if market == model.MarketFutures {
		symbol = strings.ReplaceAll(symbol, "-", "")
	}
	return symbol, price, true
}

func (x *BingX) handleMessage(market model.MarketKind, raw []byte) {
	symbol, price, ok := parseBingXTicker(market, raw)
	if !ok {
		return
	}
	x.emit(market, symbol, price)
}

// emit normalizes rawSymbol and drops it unless it's in this connector's
// known symbol set for market, per spec: unknown symbols are dropped silently.
func (x *BingX) emit(market model.MarketKind, rawSymbol string, price float64) {
	if x.onUpdate == nil {
		return
	}
	canonical := model.NormalizeSymbol(rawSymbol)

	x.symbolMu.RLock()
	known := x.spotSymbols
	if market == model.MarketFutures {
		known = x.futSymbols
	}
	_, ok := known[string(canonical)]
	x.symbolMu.RUnlock()
	if !ok {
		return
	}

	x.onUpdate(model.PriceUpdate{
		Exchange:  model.ExchangeBingX,
		Market:    market,
		Symbol:    canonical,
		Price:     price,
		Timestamp: time.Now(),
	})
}

func (x *BingX) Close() error {
	var err error
	if x.spotFeed != nil {
		err = x.spotFeed.Close()
	}
	if x.futFeed != nil {
		if ferr := x.futFeed.Close(); ferr != nil {
			err = ferr
		}
	}
	return err
}

func (x *BingX) SnapshotSpot(ctx context.Context) ([]model.PriceUpdate, error) {
	body, err := x.get(ctx, bingxRESTBase+"/openApi/spot/v1/ticker/price")
	if err != nil {
		return nil, err
	}
	var generic struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := bingxJSON.Unmarshal(body, &generic); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]model.PriceUpdate, 0, len(generic.Data))
	for _, item := range generic.Data {
		symbol, _ := item["symbol"].(string)
		priceStr := fmt.Sprintf("%v", item["price"])
		price, err := strconv.ParseFloat(priceStr, 64)
		if symbol == "" || err != nil || price <= 0 {
			continue
		}
		out = append(out, model.PriceUpdate{
			Exchange: model.ExchangeBingX, Market: model.MarketSpot,
			Symbol: model.NormalizeSymbol(symbol), Price: price, Timestamp: now,
		})
	}
	return out, nil
}

func (x *BingX) SnapshotFutures(ctx context.Context) ([]model.PriceUpdate, error) {
	body, err := x.get(ctx, bingxRESTBase+"/openApi/swap/v2/quote/price")
	if err != nil {
		return nil, err
	}
	var generic struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := bingxJSON.Unmarshal(body, &generic); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]model.PriceUpdate, 0, len(generic.Data))
	for _, item := range generic.Data {
		symbol, _ := item["symbol"].(string)
		priceStr := fmt.Sprintf("%v", item["price"])
		price, err := strconv.ParseFloat(priceStr, 64)
		if symbol == "" || err != nil || price <= 0 {
			continue
		}
		symbol = strings.ReplaceAll(symbol, "-", "")
		out = append(out, model.PriceUpdate{
			Exchange: model.ExchangeBingX, Market: model.MarketFutures,
			Symbol: model.NormalizeSymbol(symbol), Price: price, Timestamp: now,
		})
	}
	return out, nil
}

func (x *BingX) Stats() ConnectorStats {
	state := FeedDisconnected
	reconnects := 0
	var wsMessages uint64
	var lastMsg time.Time
	if x.spotFeed != nil {
		state = x.spotFeed.State()
		r, w, l := x.spotFeed.Stats()
		reconnects += r
		wsMessages += w
		if l.After(lastMsg) {
			lastMsg = l
		}
	}
	if x.futFeed != nil {
		r, w, l := x.futFeed.Stats()
		reconnects += r
		wsMessages += w
		if l.After(lastMsg) {
			lastMsg = l
		}
	}
	return ConnectorStats{
		State:         state.String(),
		RestRequests:  x.restRequests.Load(),
		WSMessages:    wsMessages,
		Errors:        x.errs.Load(),
		Reconnects:    reconnects,
		LastMessageAt: lastMsg,
	}
}
