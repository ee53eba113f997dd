package exchange

import (
	"fmt"

	"github.com/svyatogor/spreadup/internal/model"
)

// Constructor builds a Connector that reports PriceUpdates to onUpdate,
// tuned by cfg.
type Constructor func(cfg Config, onUpdate func(model.PriceUpdate)) Connector

var registry = map[model.ExchangeId]Constructor{
	model.ExchangeMEXC:   NewMEXC,
	model.ExchangeGateIO: NewGateIO,
	model.ExchangeBingX:  NewBingX,
	model.ExchangeHTX:    NewHTX,
}

// New builds the connector for id, or an error if id isn't one of the four
// supported venues.
func New(id model.ExchangeId, cfg Config, onUpdate func(model.PriceUpdate)) (Connector, error) {
	ctor, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("exchange: unsupported venue %q", id)
	}
	return ctor(cfg, onUpdate), nil
}
