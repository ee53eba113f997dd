// Package cooldown implements the alert cooldown table (C5): a map from
// CooldownKey (base asset) to the last time an alert was emitted for it.
// Keying on the base asset alone - not the exchange pair - is a deliberate
// departure from a per-pair cooldown: a 5% BTC spread across any two
// venues is one economic event worth a single alert.
package cooldown

import (
	"sync"
	"time"

	"github.com/svyatogor/spreadup/internal/model"
	"github.com/svyatogor/spreadup/pkg/clock"
)

// DefaultWindow is the minimum interval between two alerts for the same
// base asset.
const DefaultWindow = 1800 * time.Second

// Table is a thread-safe cooldown table. The zero value is not usable; use New.
type Table struct {
	mu   sync.Mutex
	last map[model.CooldownKey]time.Time
	clk  clock.Clock
}

// New builds an empty cooldown table. clk may be nil to use the real clock.
func New(clk clock.Clock) *Table {
	if clk == nil {
		clk = clock.Default
	}
	return &Table{last: make(map[model.CooldownKey]time.Time), clk: clk}
}

// MayEmit returns true and records now as the key's last-emitted time iff
// now - last >= window (or the key has never been seen). A false result
// leaves the table unchanged - the read-modify-write is atomic under mu.
func (t *Table) MayEmit(key model.CooldownKey, window time.Duration) bool {
	if window <= 0 {
		window = DefaultWindow
	}
	now := t.clk.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	last, seen := t.last[key]
	if seen && now.Sub(last) < window {
		return false
	}
	t.last[key] = now
	return true
}

// Reset clears a key's cooldown state.
func (t *Table) Reset(key model.CooldownKey) {
	t.mu.Lock()
	delete(t.last, key)
	t.mu.Unlock()
}
