package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/svyatogor/spreadup/internal/model"
	"github.com/svyatogor/spreadup/pkg/clock"
)

// S5 - Cooldown suppression.
func TestMayEmitCooldownSuppression(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	table := New(fc)
	key := model.NewCooldownKey("SOL")
	window := 1800 * time.Second

	assert.True(t, table.MayEmit(key, window), "t=0 should emit")

	fc.Advance(600 * time.Second)
	assert.False(t, table.MayEmit(key, window), "t=600 should be suppressed")

	fc.Advance(1201 * time.Second) // now at t=1801
	assert.True(t, table.MayEmit(key, window), "t=1801 should emit")
}

func TestMayEmitBoundedOverInterval(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	table := New(fc)
	key := model.NewCooldownKey("BTC")
	window := 100 * time.Second

	emitted := 0
	total := 1005 * time.Second
	step := 10 * time.Second
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		if table.MayEmit(key, window) {
			emitted++
		}
		fc.Advance(step)
	}

	maxAllowed := int(total/window) + 1
	assert.LessOrEqual(t, emitted, maxAllowed)
}

func TestMayEmitIndependentKeys(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	table := New(fc)
	window := 1800 * time.Second

	assert.True(t, table.MayEmit(model.NewCooldownKey("BTC"), window))
	assert.True(t, table.MayEmit(model.NewCooldownKey("ETH"), window))
}
