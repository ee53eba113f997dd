package notify

import (
	"context"

	"github.com/svyatogor/spreadup/pkg/logging"
)

// LogSink logs every published alert at info level instead of delivering
// it anywhere. The chat bot sink that fans alerts out to subscribers per
// their filters is out of scope for this module; LogSink is what the
// engine runs against until that sink exists.
type LogSink struct{}

// NewLogSink returns a Sink that never fails and never suppresses - every
// alert the engine hands it is logged once.
func NewLogSink() *LogSink { return &LogSink{} }

func (LogSink) Publish(ctx context.Context, alert Alert) error {
	opp := alert.Opportunity
	logging.L().Info("spread opportunity",
		logging.Symbol(string(opp.Symbol)),
		logging.String("base_asset", opp.BaseAsset),
		logging.Exchange(string(opp.SpotExchange)),
		logging.Price(opp.SpotPrice),
		logging.String("futures_exchange", string(opp.FuturesExchange)),
		logging.Float64("futures_price", opp.FuturesPrice),
		logging.Spread(opp.SpreadPercent),
	)
	return nil
}
