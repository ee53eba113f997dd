package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svyatogor/spreadup/internal/config"
	"github.com/svyatogor/spreadup/internal/exchange"
	"github.com/svyatogor/spreadup/internal/model"
	"github.com/svyatogor/spreadup/internal/notify"
)

// fakeConnector lets tests push PriceUpdates directly into the cache via
// the onUpdate callback, without opening any real socket.
type fakeConnector struct {
	id       model.ExchangeId
	onUpdate func(model.PriceUpdate)

	mu     sync.Mutex
	closed bool
}

func newFakeConnector(id model.ExchangeId, onUpdate func(model.PriceUpdate)) (exchange.Connector, error) {
	return &fakeConnector{id: id, onUpdate: onUpdate}, nil
}

func (f *fakeConnector) ExchangeId() model.ExchangeId { return f.id }

func (f *fakeConnector) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeConnector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConnector) SnapshotSpot(ctx context.Context) ([]model.PriceUpdate, error) {
	return nil, nil
}

func (f *fakeConnector) SnapshotFutures(ctx context.Context) ([]model.PriceUpdate, error) {
	return nil, nil
}

func (f *fakeConnector) Stats() exchange.ConnectorStats {
	return exchange.ConnectorStats{State: "streaming"}
}

type fakeSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (s *fakeSink) Publish(ctx context.Context, alert notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		SpreadThreshold:  3.0,
		ScanInterval:     10 * time.Millisecond,
		ScanErrorBackoff: 10 * time.Millisecond,
		TopN:             5,
		CooldownWindow:   1800 * time.Second,
		CacheTTL:         300 * time.Second,
		EnabledExchanges: []model.ExchangeId{model.ExchangeMEXC, model.ExchangeGateIO},
	}
}

func TestEngineDetectsAndPublishesOpportunity(t *testing.T) {
	sink := &fakeSink{}
	eng := New(testConfig(), sink, WithConnectorFactory(newFakeConnector))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()

	eng.cache.Update(model.PriceUpdate{
		Exchange: model.ExchangeMEXC, Market: model.MarketSpot,
		Symbol: "BTCUSDT", Price: 30000, Timestamp: time.Now(),
	})
	eng.cache.Update(model.PriceUpdate{
		Exchange: model.ExchangeGateIO, Market: model.MarketFutures,
		Symbol: "BTCUSDT", Price: 31200, Timestamp: time.Now(),
	})

	require.Eventually(t, func() bool { return sink.count() > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-eng.Done()
}

func TestEngineCooldownSuppressesRepeatAlerts(t *testing.T) {
	sink := &fakeSink{}
	eng := New(testConfig(), sink, WithConnectorFactory(newFakeConnector))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()

	eng.cache.Update(model.PriceUpdate{
		Exchange: model.ExchangeMEXC, Market: model.MarketSpot,
		Symbol: "ETHUSDT", Price: 2000, Timestamp: time.Now(),
	})
	eng.cache.Update(model.PriceUpdate{
		Exchange: model.ExchangeGateIO, Market: model.MarketFutures,
		Symbol: "ETHUSDT", Price: 2100, Timestamp: time.Now(),
	})

	require.Eventually(t, func() bool { return sink.count() > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	firstCount := sink.count()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, firstCount, sink.count(), "cooldown should suppress further alerts for the same asset")

	cancel()
	<-eng.Done()
}

func TestEngineCloseStopsAllConnectorsOnShutdown(t *testing.T) {
	sink := &fakeSink{}
	eng := New(testConfig(), sink, WithConnectorFactory(newFakeConnector))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()

	require.Eventually(t, func() bool {
		eng.connMu.RLock()
		defer eng.connMu.RUnlock()
		return len(eng.connectors) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-eng.Done()

	eng.connMu.RLock()
	defer eng.connMu.RUnlock()
	for id, c := range eng.connectors {
		fc := c.(*fakeConnector)
		fc.mu.Lock()
		assert.True(t, fc.closed, "connector %s should be closed on shutdown", id)
		fc.mu.Unlock()
	}
}

func TestEngineStatsAggregatesConnectorsAndCache(t *testing.T) {
	sink := &fakeSink{}
	eng := New(testConfig(), sink, WithConnectorFactory(newFakeConnector))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(eng.Stats().Connectors) == 2
	}, time.Second, 5*time.Millisecond)

	stats := eng.Stats()
	assert.Len(t, stats.Connectors, 2)
	for _, cs := range stats.Connectors {
		assert.Equal(t, "streaming", cs.State)
	}

	cancel()
	<-eng.Done()
}
