package model

import "time"

// SpreadOpportunity is a derived value produced fresh by the calculator on
// every scan; nothing holds one beyond the scan that produced it.
type SpreadOpportunity struct {
	Symbol      Symbol
	BaseAsset   string
	SpotExchange    ExchangeId
	SpotPrice       float64
	FuturesExchange ExchangeId
	FuturesPrice    float64
	SpreadPercent   float64
	Timestamp       time.Time
	LatencyMs       *float64
	Volume24h       *float64
}

// CooldownKey is the base asset alone: one alert per asset per window,
// regardless of which exchange pair produced it.
type CooldownKey string

func NewCooldownKey(baseAsset string) CooldownKey {
	return CooldownKey(baseAsset)
}
