// Package exchange implements one read-only market-data connector per
// venue: REST symbol discovery and ticker snapshots, plus a streaming feed
// that pushes price updates to a callback. No order placement, no account
// state - every call here hits a public, unauthenticated endpoint.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/svyatogor/spreadup/internal/model"
)

// Connector is the contract every venue implements. Start begins streaming
// (or polling, for venues with no usable WS feed) price updates into the
// callback supplied at construction time; Close stops it. The Snapshot
// methods give an immediate REST-backed read without waiting on the
// stream; the HTX connector's poll loop is built on them.
type Connector interface {
	// ExchangeId identifies which venue this connector talks to.
	ExchangeId() model.ExchangeId

	// Start begins streaming price updates until ctx is done or Close is
	// called. It returns once the feed loop has exited.
	Start(ctx context.Context) error

	// Close stops the feed loop and releases its connections.
	Close() error

	// SnapshotSpot fetches every spot ticker via REST in one call.
	SnapshotSpot(ctx context.Context) ([]model.PriceUpdate, error)

	// SnapshotFutures fetches futures tickers via REST. Some venues need
	// one request per contract, and HTX covers only a fixed list of bases.
	SnapshotFutures(ctx context.Context) ([]model.PriceUpdate, error)

	// Stats reports feed health for monitoring.
	Stats() ConnectorStats
}

// ConnectorStats summarizes a connector's feed health.
type ConnectorStats struct {
	State         string
	RestRequests  uint64
	WSMessages    uint64
	Errors        uint64
	Reconnects    int
	LastMessageAt time.Time
	LastErr       string
}

// ErrNotConnected is returned by operations that require an active feed.
var ErrNotConnected = errors.New("exchange: not connected")

// ExchangeError carries a venue-reported error code/message, preserving the
// original transport error for errors.Is/errors.As.
type ExchangeError struct {
	Exchange model.ExchangeId
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return string(e.Exchange) + ": " + e.Code + ": " + e.Message
	}
	return string(e.Exchange) + ": " + e.Message
}

func (e *ExchangeError) Unwrap() error { return e.Original }
