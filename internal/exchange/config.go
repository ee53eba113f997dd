package exchange

import "time"

// Config tunes every connector's REST client, rate limiter, circuit
// breaker and feed keepalive. It carries the startup configurables
// uniformly across venues, so one engine-level setting applies to all
// four connectors alike.
type Config struct {
	RateLimitRate  float64
	RateLimitBurst float64

	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration

	WSPingInterval time.Duration
	WSPongTimeout  time.Duration

	HTTPConnectTimeout time.Duration
	HTTPTotalTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RateLimitRate <= 0 {
		c.RateLimitRate = 10
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	if c.BreakerFailureThreshold <= 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerRecoveryTimeout <= 0 {
		c.BreakerRecoveryTimeout = 30 * time.Second
	}
	if c.WSPingInterval <= 0 {
		c.WSPingInterval = 20 * time.Second
	}
	if c.WSPongTimeout <= 0 {
		c.WSPongTimeout = 10 * time.Second
	}
	if c.HTTPConnectTimeout <= 0 {
		c.HTTPConnectTimeout = 5 * time.Second
	}
	if c.HTTPTotalTimeout <= 0 {
		c.HTTPTotalTimeout = 10 * time.Second
	}
	return c
}

// httpClient builds a pooled client sized like DefaultHTTPClientConfig but
// with the connect/total timeouts this Config specifies.
func (c Config) httpClient() *HTTPClient {
	hc := DefaultHTTPClientConfig()
	hc.ConnectTimeout = c.HTTPConnectTimeout
	hc.TotalTimeout = c.HTTPTotalTimeout
	return NewHTTPClient(hc)
}

// feedConfig fills in a venue's ExchangeName/WSURL/PingText against this
// Config's ping/pong tuning.
func (c Config) feedConfig(exchangeName, wsURL, pingText string) FeedConfig {
	return FeedConfig{
		ExchangeName: exchangeName,
		WSURL:        wsURL,
		PingText:     pingText,
		PingInterval: c.WSPingInterval,
		PongTimeout:  c.WSPongTimeout,
	}
}
