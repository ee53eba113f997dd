package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Domain field constructors - keep log lines grep-able across connectors,
// the cache and the calculator without every call site hand-rolling keys.
func Exchange(id string) zap.Field       { return zap.String("exchange", id) }
func Symbol(symbol string) zap.Field     { return zap.String("symbol", symbol) }
func Market(market string) zap.Field     { return zap.String("market", market) }
func Price(price float64) zap.Field      { return zap.Float64("price", price) }
func Volume(volume float64) zap.Field    { return zap.Float64("volume", volume) }
func Spread(percent float64) zap.Field   { return zap.Float64("spread_percent", percent) }
func Latency(ms float64) zap.Field       { return zap.Float64("latency_ms", ms) }
func Component(name string) zap.Field    { return zap.String("component", name) }
func State(state string) zap.Field       { return zap.String("state", state) }
func RequestID(id string) zap.Field      { return zap.String("request_id", id) }
func Reconnects(n int32) zap.Field       { return zap.Int32("reconnects", n) }

// Re-exported zap constructors so call sites only import this package.
func String(key, val string) zap.Field    { return zap.String(key, val) }
func Int(key string, val int) zap.Field   { return zap.Int(key, val) }
func Int64(key string, val int64) zap.Field { return zap.Int64(key, val) }
func Float64(key string, val float64) zap.Field { return zap.Float64(key, val) }
func Bool(key string, val bool) zap.Field { return zap.Bool(key, val) }
func Err(err error) zap.Field             { return zap.Error(err) }
func Any(key string, val interface{}) zap.Field { return zap.Any(key, val) }

// fieldsToInterface flattens zap fields into alternating key/value pairs
// for sugar-logger calls that want interface{} varargs instead of fields.
func fieldsToInterface(fields []zap.Field) []interface{} {
	enc := zapcore.NewMapObjectEncoder()
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}

func zapOutput(output string) *os.File {
	if output == "" || output == "stdout" {
		return os.Stdout
	}
	if output == "stderr" {
		return os.Stderr
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}
