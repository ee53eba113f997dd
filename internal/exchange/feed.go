package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svyatogor/spreadup/pkg/logging"
)

// FeedState is the per-socket state machine every connector's feed loop runs:
// Disconnected -> Connecting -> Subscribing -> Streaming -> (Error | Closed).
type FeedState int32

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedSubscribing
	FeedStreaming
	FeedError
	FeedClosed
)

func (s FeedState) String() string {
	switch s {
	case FeedDisconnected:
		return "disconnected"
	case FeedConnecting:
		return "connecting"
	case FeedSubscribing:
		return "subscribing"
	case FeedStreaming:
		return "streaming"
	case FeedError:
		return "error"
	case FeedClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// reconnectWait is the flat wait between an Error state and the next
// Disconnected->Connecting attempt. Flat, not exponential - the venues this
// system polls are high-volume public feeds that come back quickly, and a
// flat wait keeps reconnect behavior uniform and easy to reason about across
// venues. A var, not a const, so feed_test.go can shorten it.
var reconnectWait = 5 * time.Second

// maxSubscribeSymbols bounds a per-symbol subscription batch; venues offering
// an all-tickers channel don't need this at all.
const maxSubscribeSymbols = 50

// subscribeThrottle keeps per-symbol subscribe messages under 20/s.
const subscribeThrottle = 50 * time.Millisecond

// FeedConfig tunes one feed loop.
type FeedConfig struct {
	ExchangeName string
	WSURL        string

	// PingText, when non-empty, is sent as a text frame on PingInterval
	// (BingX-style venues that require an application-level "ping" string).
	// When empty, the loop relies on protocol-native control-frame pings.
	PingText     string
	PingInterval time.Duration // default 20s
	PongTimeout  time.Duration // default 10s
}

func (c FeedConfig) withDefaults() FeedConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	return c
}

// Feed drives one WebSocket subscription through the Disconnected ->
// Connecting -> Subscribing -> Streaming -> (Error|Closed) machine,
// reconnecting on a flat 5s wait after any failure, until Close is called.
type Feed struct {
	cfg FeedConfig

	state atomic.Int32

	connMu sync.Mutex
	conn   *websocket.Conn

	// subscribe builds and sends the subscription messages for this feed
	// once the socket is open; a non-nil error sends the feed to Error.
	subscribe func(conn *websocket.Conn) error

	// onMessage parses one inbound frame, updating the cache via the
	// connector's own callback; parse errors must be swallowed here, never
	// treated as a feed error.
	onMessage func(msg []byte)

	reconnects atomic.Int64
	wsMessages atomic.Int64
	errs       atomic.Int64
	lastMsgAt  atomic.Int64 // unix nanos

	closeOnce sync.Once
	closeChan chan struct{}
}

// NewFeed builds a feed loop. subscribe and onMessage must be non-nil.
func NewFeed(cfg FeedConfig, subscribe func(*websocket.Conn) error, onMessage func([]byte)) *Feed {
	f := &Feed{
		cfg:       cfg.withDefaults(),
		subscribe: subscribe,
		onMessage: onMessage,
		closeChan: make(chan struct{}),
	}
	f.state.Store(int32(FeedDisconnected))
	return f
}

// State reports the current FSM state.
func (f *Feed) State() FeedState { return FeedState(f.state.Load()) }

// Stats reports feed counters for the connector's Stats() call.
func (f *Feed) Stats() (reconnects int, wsMessages uint64, lastMessageAt time.Time) {
	last := f.lastMsgAt.Load()
	var t time.Time
	if last != 0 {
		t = time.Unix(0, last)
	}
	return int(f.reconnects.Load()), uint64(f.wsMessages.Load()), t
}

// Run drives the feed loop until ctx is done or Close is called.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-f.closeChan:
			f.state.Store(int32(FeedClosed))
			return
		case <-ctx.Done():
			f.state.Store(int32(FeedClosed))
			return
		default:
		}

		f.state.Store(int32(FeedConnecting))
		conn, err := f.dial(ctx)
		if err != nil {
			logging.L().Warn("feed connect failed",
				logging.Exchange(f.cfg.ExchangeName), logging.Err(err))
			f.errs.Add(1)
			f.enterError(ctx)
			continue
		}

		f.state.Store(int32(FeedSubscribing))
		if f.subscribe != nil {
			if err := f.subscribe(conn); err != nil {
				logging.L().Warn("feed subscribe failed",
					logging.Exchange(f.cfg.ExchangeName), logging.Err(err))
				conn.Close()
				f.errs.Add(1)
				f.enterError(ctx)
				continue
			}
		}

		f.state.Store(int32(FeedStreaming))
		stop := make(chan struct{})
		var pingWG sync.WaitGroup
		pingWG.Add(1)
		go func() {
			defer pingWG.Done()
			f.pingLoop(conn, stop)
		}()

		f.readLoop(conn)

		close(stop)
		pingWG.Wait()
		conn.Close()

		select {
		case <-f.closeChan:
			f.state.Store(int32(FeedClosed))
			return
		case <-ctx.Done():
			f.state.Store(int32(FeedClosed))
			return
		default:
		}

		f.errs.Add(1)
		f.enterError(ctx)
	}
}

func (f *Feed) enterError(ctx context.Context) {
	f.state.Store(int32(FeedError))
	f.reconnects.Add(1)
	select {
	case <-time.After(reconnectWait):
	case <-ctx.Done():
	case <-f.closeChan:
	}
	f.state.Store(int32(FeedDisconnected))
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.cfg.WSURL, err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	return conn, nil
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.wsMessages.Add(1)
		f.lastMsgAt.Store(time.Now().UnixNano())
		if f.onMessage != nil {
			f.onMessage(msg)
		}
	}
}

func (f *Feed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(f.cfg.PongTimeout))
			var err error
			if f.cfg.PingText != "" {
				err = conn.WriteMessage(websocket.TextMessage, []byte(f.cfg.PingText))
			} else {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			if err != nil {
				return
			}
		}
	}
}

// Close stops the feed loop. Safe to call multiple times.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() { close(f.closeChan) })

	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}

// sleepBetweenSubscribes throttles per-symbol subscribe messages to stay
// under the 20 msg/s policy.
func sleepBetweenSubscribes() { time.Sleep(subscribeThrottle) }

// firstN returns at most n items of symbols, for venues with per-symbol
// subscription models and no all-tickers channel.
func firstN(symbols []string, n int) []string {
	if len(symbols) <= n {
		return symbols
	}
	return symbols[:n]
}
