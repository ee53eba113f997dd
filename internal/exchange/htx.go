package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/svyatogor/spreadup/internal/model"
	"github.com/svyatogor/spreadup/pkg/circuitbreaker"
	"github.com/svyatogor/spreadup/pkg/logging"
	"github.com/svyatogor/spreadup/pkg/ratelimit"
	"github.com/svyatogor/spreadup/pkg/retry"
)

const (
	htxSpotRESTBase    = "https://api.htx.com"
	htxFuturesRESTBase = "https://api.hbdm.com"

	// htxPollInterval is how often the poll loop re-fetches every ticker,
	// in place of a streaming feed - HTX's own WS client never actually
	// streamed tickers either, it just slept and relied on REST polling.
	htxPollInterval = 500 * time.Millisecond
)

var htxJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// htxPopularBases lists the base assets HTX's futures REST API is polled
// for individually - the futures ticker endpoint has no all-symbols list,
// so only a fixed set of liquid pairs is tracked.
var htxPopularBases = []string{
	"BTC", "ETH", "SOL", "XRP", "DOGE", "ADA", "AVAX", "LINK", "DOT", "MATIC",
	"LTC", "BCH", "UNI", "ATOM", "ETC", "FIL", "NEAR", "APT", "ARB", "OP",
	"SUI", "TON", "TRX", "SHIB",
}

// HTX implements Connector by polling REST endpoints on a fixed interval.
// HTX's own WebSocket client never streamed ticker data in practice - its
// connect loop was a no-op that parked on REST polling - so this connector
// doesn't attempt a Feed at all.
type HTX struct {
	cfg     Config
	http    *HTTPClient
	limiter *ratelimit.RateLimiter
	breaker *circuitbreaker.Breaker

	onUpdate func(model.PriceUpdate)

	running      atomic.Bool
	pollCount    atomic.Uint64
	restRequests atomic.Uint64
	errs         atomic.Uint64
	lastMsgAt    atomic.Int64

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewHTX builds an HTX connector reporting updates to onUpdate, tuned by cfg.
func NewHTX(cfg Config, onUpdate func(model.PriceUpdate)) Connector {
	cfg = cfg.withDefaults()
	return &HTX{
		cfg:     cfg,
		http:    cfg.httpClient(),
		limiter: ratelimit.NewRateLimiter(cfg.RateLimitRate, cfg.RateLimitBurst),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		}),
		onUpdate: onUpdate,
		stopChan: make(chan struct{}),
	}
}

func (h *HTX) ExchangeId() model.ExchangeId { return model.ExchangeHTX }

func (h *HTX) get(ctx context.Context, url string) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	h.restRequests.Add(1)

	var body []byte
	err := h.breaker.Do(ctx, isNetworkFailure, func(ctx context.Context) error {
		return retry.Do(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Permanent(err)
			}
			resp, err := h.http.Do(req)
			if err != nil {
				h.errs.Add(1)
				return err
			}
			defer resp.Body.Close()
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				h.errs.Add(1)
				return fmt.Errorf("htx: server error %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Permanent(&ExchangeError{Exchange: model.ExchangeHTX, Message: string(b)})
			}
			body = b
			return nil
		}, retry.NetworkConfig())
	})
	return body, err
}

// Start runs the poll loop until ctx is done or Close is called.
func (h *HTX) Start(ctx context.Context) error {
	h.running.Store(true)
	defer h.running.Store(false)

	ticker := time.NewTicker(htxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.stopChan:
			return nil
		case <-ticker.C:
			h.pollOnce(ctx)
		}
	}
}

func (h *HTX) pollOnce(ctx context.Context) {
	h.pollCount.Add(1)

	spot, err := h.SnapshotSpot(ctx)
	if err != nil {
		logging.L().Warn("htx spot poll failed", logging.Exchange("htx"), logging.Err(err))
	} else {
		h.lastMsgAt.Store(time.Now().UnixNano())
		for _, u := range spot {
			if h.onUpdate != nil {
				h.onUpdate(u)
			}
		}
	}

	futures, err := h.SnapshotFutures(ctx)
	if err != nil {
		logging.L().Warn("htx futures poll failed", logging.Exchange("htx"), logging.Err(err))
		return
	}
	h.lastMsgAt.Store(time.Now().UnixNano())
	for _, u := range futures {
		if h.onUpdate != nil {
			h.onUpdate(u)
		}
	}
}

func (h *HTX) Close() error {
	h.stopOnce.Do(func() { close(h.stopChan) })
	return nil
}

// htxTicker is one parsed symbol/price pair from an HTX REST response.
type htxTicker struct {
	Symbol string
	Price  float64
}

// parseHTXSpotTickers extracts every USDT-quoted ticker from a
// /market/tickers response body. Pure: no side effects, safe to round-trip
// against a serialized fixture.
func parseHTXSpotTickers(body []byte) ([]htxTicker, error) {
	var resp struct {
		Data []struct {
			Symbol string  `json:"symbol"`
			Close  float64 `json:"close"`
		} `json:"data"`
	}
	if err := htxJSON.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([]htxTicker, 0, len(resp.Data))
	for _, it := range resp.Data {
		if it.Close <= 0 || !strings.HasSuffix(strings.ToLower(it.Symbol), "usdt") {
			continue
		}
		out = append(out, htxTicker{Symbol: it.Symbol, Price: it.Close})
	}
	return out, nil
}

// SnapshotSpot polls HTX's all-tickers endpoint, which is itself the known
// symbol set at poll time - there is no separate discovery step to drift
// from it, so every USDT-quoted entry returned is accepted as-is.
func (h *HTX) SnapshotSpot(ctx context.Context) ([]model.PriceUpdate, error) {
	body, err := h.get(ctx, htxSpotRESTBase+"/market/tickers")
	if err != nil {
		return nil, err
	}
	tickers, err := parseHTXSpotTickers(body)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]model.PriceUpdate, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, model.PriceUpdate{
			Exchange: model.ExchangeHTX, Market: model.MarketSpot,
			Symbol: model.NormalizeSymbol(t.Symbol), Price: t.Price, Timestamp: now,
		})
	}
	return out, nil
}

// parseHTXKlineClose extracts the latest close price from a contract kline
// response. Pure: no side effects.
func parseHTXKlineClose(body []byte) (price float64, ok bool) {
	var resp struct {
		Data []struct {
			Close float64 `json:"close"`
		} `json:"data"`
	}
	if err := htxJSON.Unmarshal(body, &resp); err != nil || len(resp.Data) == 0 {
		return 0, false
	}
	if resp.Data[0].Close <= 0 {
		return 0, false
	}
	return resp.Data[0].Close, true
}

// SnapshotFutures polls HTX's contract kline endpoint once per entry in
// htxPopularBases - the futures market has no all-symbols ticker list, so
// coverage here is necessarily narrower than the spot side. htxPopularBases
// is itself the known symbol set: each request names the exact symbol its
// response prices, so there's no separate inbound set to gate against.
func (h *HTX) SnapshotFutures(ctx context.Context) ([]model.PriceUpdate, error) {
	now := time.Now()
	out := make([]model.PriceUpdate, 0, len(htxPopularBases))
	for _, base := range htxPopularBases {
		contractSymbol := base + "_CQ"
		url := fmt.Sprintf("%s/market/history/kline?symbol=%s&period=1min&size=1", htxFuturesRESTBase, contractSymbol)
		body, err := h.get(ctx, url)
		if err != nil {
			continue
		}
		price, ok := parseHTXKlineClose(body)
		if !ok {
			continue
		}
		out = append(out, model.PriceUpdate{
			Exchange: model.ExchangeHTX, Market: model.MarketFutures,
			Symbol: model.NormalizeSymbol(base + "USDT"), Price: price, Timestamp: now,
		})
	}
	return out, nil
}

func (h *HTX) Stats() ConnectorStats {
	state := "disconnected"
	if h.running.Load() {
		state = "streaming"
	}
	var lastMsg time.Time
	if ns := h.lastMsgAt.Load(); ns != 0 {
		lastMsg = time.Unix(0, ns)
	}
	return ConnectorStats{
		State:         state,
		RestRequests:  h.restRequests.Load(),
		WSMessages:    h.pollCount.Load(),
		Errors:        h.errs.Load(),
		Reconnects:    0,
		LastMessageAt: lastMsg,
	}
}
