package model

// UserFilters is a per-subscriber acceptance policy over spread, volume and
// exchange whitelist. The chat layer owns mutation; the core only reads.
type UserFilters struct {
	MinSpread        float64
	MaxSpread        float64
	MinVolumeUSD     float64
	EnabledExchanges map[ExchangeId]struct{}
}

// DefaultUserFilters returns the documented defaults: 3-50% spread, no
// volume floor, every supported exchange enabled.
func DefaultUserFilters() UserFilters {
	enabled := make(map[ExchangeId]struct{}, len(AllExchanges))
	for _, ex := range AllExchanges {
		enabled[ex] = struct{}{}
	}
	return UserFilters{
		MinSpread:        3.0,
		MaxSpread:        50.0,
		MinVolumeUSD:     0,
		EnabledExchanges: enabled,
	}
}

func (f UserFilters) IsExchangeEnabled(id ExchangeId) bool {
	_, ok := f.EnabledExchanges[id]
	return ok
}
