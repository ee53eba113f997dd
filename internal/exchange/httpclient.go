package exchange

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPClientConfig tunes the HTTP client every connector's REST calls share.
type HTTPClientConfig struct {
	ConnectTimeout time.Duration // TCP connect timeout, default 5s
	ReadTimeout    time.Duration // response read timeout, default 10s
	WriteTimeout   time.Duration // request write timeout, default 10s
	TotalTimeout   time.Duration // overall request timeout fallback, default 10s

	MaxIdleConns        int           // default 100
	MaxIdleConnsPerHost int           // default 10
	MaxConnsPerHost     int           // default 20
	IdleConnTimeout     time.Duration // default 90s

	TLSHandshakeTimeout time.Duration // default 5s

	DisableKeepAlives bool
	KeepAliveInterval time.Duration // default 30s
}

// DefaultHTTPClientConfig returns settings tuned for frequent, low-latency
// polling of public ticker/symbol endpoints.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		TotalTimeout:   10 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 5 * time.Second,

		DisableKeepAlives: false,
		KeepAliveInterval: 30 * time.Second,
	}
}

// HTTPClient wraps http.Client with the connection pool every connector
// reuses, so many symbol/ticker polls don't each pay a fresh TLS handshake.
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

var (
	globalClient     *HTTPClient
	globalClientOnce sync.Once
)

// GetGlobalHTTPClient returns the process-wide client, built with
// DefaultHTTPClientConfig on first use.
func GetGlobalHTTPClient() *HTTPClient {
	globalClientOnce.Do(func() {
		globalClient = NewHTTPClient(DefaultHTTPClientConfig())
	})
	return globalClient
}

// NewHTTPClient builds a client with its own connection pool.
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if deadline, ok := ctx.Deadline(); ok {
				timeout := time.Until(deadline)
				if timeout < config.ConnectTimeout {
					return (&net.Dialer{Timeout: timeout, KeepAlive: config.KeepAliveInterval}).DialContext(ctx, network, addr)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},

		DisableKeepAlives: config.DisableKeepAlives,

		DisableCompression:   true,
		ForceAttemptHTTP2:    true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	return &HTTPClient{
		client: &http.Client{Transport: transport, Timeout: config.TotalTimeout},
		config: config,
	}
}

// Do runs req using the pooled client.
func (hc *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return hc.client.Do(req)
}

// DoWithTimeout runs req with a timeout distinct from the client's default.
func (hc *HTTPClient) DoWithTimeout(req *http.Request, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	return hc.client.Do(req.WithContext(ctx))
}

// GetClient returns the underlying http.Client.
func (hc *HTTPClient) GetClient() *http.Client { return hc.client }

// GetConfig returns the client's configuration.
func (hc *HTTPClient) GetConfig() HTTPClientConfig { return hc.config }

// Close releases idle connections. Call during graceful shutdown.
func (hc *HTTPClient) Close() {
	if transport, ok := hc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// CloseGlobalClient releases the process-wide client's idle connections.
func CloseGlobalClient() {
	if globalClient != nil {
		globalClient.Close()
	}
}
