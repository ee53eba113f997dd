// Package engine implements the orchestrator (C7): it wires the cache,
// connectors, spread calculator and cooldown table together and drives the
// scan loop spec'd for the core - find opportunities, publish the top few
// through the cooldown gate, evict expired cache entries, sleep.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/svyatogor/spreadup/internal/cache"
	"github.com/svyatogor/spreadup/internal/calculator"
	"github.com/svyatogor/spreadup/internal/config"
	"github.com/svyatogor/spreadup/internal/cooldown"
	"github.com/svyatogor/spreadup/internal/exchange"
	"github.com/svyatogor/spreadup/internal/model"
	"github.com/svyatogor/spreadup/internal/notify"
	"github.com/svyatogor/spreadup/pkg/clock"
	"github.com/svyatogor/spreadup/pkg/logging"
)

// ConnectorFactory builds the Connector for one venue. Tests substitute a
// fake factory instead of exchange.New so the engine can be exercised
// without opening real sockets.
type ConnectorFactory func(id model.ExchangeId, onUpdate func(model.PriceUpdate)) (exchange.Connector, error)

// Stats aggregates engine-wide counters for the status endpoint.
type Stats struct {
	Cache       cache.Stats
	ScanCount   int64
	ScanErrors  int64
	Opportunities int64
	Alerts      int64
	Connectors  map[model.ExchangeId]exchange.ConnectorStats
}

// Engine is the C7 orchestrator.
type Engine struct {
	cfg config.EngineConfig

	cache      *cache.Cache
	calc       *calculator.Calculator
	cooldown   *cooldown.Table
	sink       notify.Sink
	connectorFactory ConnectorFactory
	clk        clock.Clock

	connMu     sync.RWMutex
	connectors map[model.ExchangeId]exchange.Connector

	statsMu       sync.Mutex
	scanCount     int64
	scanErrors    int64
	opportunities int64
	alerts        int64

	runOnce sync.Once
	doneCh  chan struct{}
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithConnectorFactory overrides how connectors are built, for tests.
func WithConnectorFactory(f ConnectorFactory) Option {
	return func(e *Engine) { e.connectorFactory = f }
}

// WithClock injects a Clock, used by tests to control cooldown/TTL timing.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

// New builds an Engine wired from cfg, ready to Run. sink is the
// downstream every detected opportunity (past its cooldown gate) is
// published to.
func New(cfg config.EngineConfig, sink notify.Sink, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		sink:       sink,
		clk:        clock.Default,
		connectors: make(map[model.ExchangeId]exchange.Connector),
		doneCh:     make(chan struct{}),
	}
	exchangeCfg := exchange.Config{
		RateLimitRate:           cfg.RateLimitRate,
		RateLimitBurst:          cfg.RateLimitBurst,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerRecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		WSPingInterval:          cfg.WSPingInterval,
		WSPongTimeout:           cfg.WSPongTimeout,
		HTTPConnectTimeout:      cfg.HTTPConnectTimeout,
		HTTPTotalTimeout:        cfg.HTTPTotalTimeout,
	}
	e.connectorFactory = func(id model.ExchangeId, onUpdate func(model.PriceUpdate)) (exchange.Connector, error) {
		return exchange.New(id, exchangeCfg, onUpdate)
	}

	for _, opt := range opts {
		opt(e)
	}

	e.cache = cache.New(cache.WithTTL(cfg.CacheTTL), cache.WithClock(e.clk))
	e.calc = calculator.New(e.cache, cfg.SpreadThreshold)
	e.cooldown = cooldown.New(e.clk)

	return e
}

// Run starts every enabled connector and drives the scan loop until ctx is
// done. It returns once every connector's feed loop and the scan loop have
// exited. Run must be called at most once per Engine.
func (e *Engine) Run(ctx context.Context) error {
	var runErr error
	e.runOnce.Do(func() {
		runErr = e.run(ctx)
	})
	return runErr
}

func (e *Engine) run(ctx context.Context) error {
	defer close(e.doneCh)

	var wg sync.WaitGroup
	for _, id := range e.cfg.EnabledExchanges {
		conn, err := e.connectorFactory(id, e.cache.Update)
		if err != nil {
			logging.L().Error("failed to build connector", logging.Exchange(string(id)), logging.Err(err))
			continue
		}

		e.connMu.Lock()
		e.connectors[id] = conn
		e.connMu.Unlock()

		wg.Add(1)
		go func(id model.ExchangeId, conn exchange.Connector) {
			defer wg.Done()
			if err := conn.Start(ctx); err != nil {
				logging.L().Error("connector exited", logging.Exchange(string(id)), logging.Err(err))
			}
		}(id, conn)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.scanLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.sweepLoop(ctx)
	}()

	<-ctx.Done()

	e.closeConnectors()
	wg.Wait()
	e.cache.Clear()

	return nil
}

// scanLoop implements the documented cadence: find opportunities, publish
// the top N through the cooldown gate, evict expired entries, sleep 1s; on
// an iteration error sleep 5s instead and continue. It never stops the
// engine - a connector failure surfaces only through its own Stats.
func (e *Engine) scanLoop(ctx context.Context) {
	interval := e.cfg.ScanInterval
	if interval <= 0 {
		interval = time.Second
	}

	for {
		sleep := interval
		if err := e.scanOnce(ctx); err != nil {
			e.statsMu.Lock()
			e.scanErrors++
			e.statsMu.Unlock()
			logging.L().Error("scan iteration failed", logging.Err(err))
			sleep = e.cfg.ScanErrorBackoff
			if sleep <= 0 {
				sleep = 5 * time.Second
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (e *Engine) scanOnce(ctx context.Context) error {
	opportunities := e.calc.FindOpportunities(nil)

	e.statsMu.Lock()
	e.scanCount++
	e.opportunities += int64(len(opportunities))
	e.statsMu.Unlock()

	topN := e.cfg.TopN
	if topN <= 0 {
		topN = 5
	}
	if len(opportunities) > topN {
		opportunities = opportunities[:topN]
	}

	for _, opp := range opportunities {
		key := model.NewCooldownKey(opp.BaseAsset)
		if !e.cooldown.MayEmit(key, e.cfg.CooldownWindow) {
			continue
		}

		if err := e.sink.Publish(ctx, notify.Alert{Opportunity: opp}); err != nil {
			logging.L().Warn("alert publish failed",
				logging.Symbol(string(opp.Symbol)), logging.Err(err))
			continue
		}

		e.statsMu.Lock()
		e.alerts++
		e.statsMu.Unlock()
	}

	e.cache.EvictExpired()
	return nil
}

// sweepLoop evicts expired cache entries on cfg.CacheSweepInterval, a
// cadence independent of the scan loop's own (typically much shorter)
// ScanInterval.
func (e *Engine) sweepLoop(ctx context.Context) {
	interval := e.cfg.CacheSweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cache.EvictExpired()
		}
	}
}

func (e *Engine) closeConnectors() {
	e.connMu.RLock()
	conns := make([]exchange.Connector, 0, len(e.connectors))
	for _, c := range e.connectors {
		conns = append(conns, c)
	}
	e.connMu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c exchange.Connector) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				logging.L().Warn("connector close failed", logging.Exchange(string(c.ExchangeId())), logging.Err(err))
			}
		}(c)
	}
	wg.Wait()
}

// Stats aggregates cache, scan-loop and per-connector counters for the
// read-only status endpoint.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	s := Stats{
		ScanCount:     e.scanCount,
		ScanErrors:    e.scanErrors,
		Opportunities: e.opportunities,
		Alerts:        e.alerts,
	}
	e.statsMu.Unlock()

	s.Cache = e.cache.Stats()

	e.connMu.RLock()
	s.Connectors = make(map[model.ExchangeId]exchange.ConnectorStats, len(e.connectors))
	for id, c := range e.connectors {
		s.Connectors[id] = c.Stats()
	}
	e.connMu.RUnlock()

	return s
}

// Done returns a channel closed once Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.doneCh }
