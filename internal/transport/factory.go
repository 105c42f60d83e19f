package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reserveflow/config"
)

// Clock returns the current time as fractional seconds since epoch. It is
// injectable so signing and caching can be tested deterministically.
type Clock func() float64

// SystemClock reads the wall clock.
func SystemClock() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Factory lazily builds the shared REST client and websocket dialer for
// one data source. Both are safe to use from multiple call sites.
type Factory struct {
	cfg     *config.Config
	limiter *Limiter

	restOnce sync.Once
	rest     *RestClient

	wsOnce sync.Once
	ws     *websocket.Dialer
}

func NewFactory(cfg *config.Config, limiter *Limiter) *Factory {
	return &Factory{cfg: cfg, limiter: limiter}
}

// RestClient returns the shared REST client, building it on first use.
func (f *Factory) RestClient() *RestClient {
	f.restOnce.Do(func() {
		pool := f.cfg.Reader.ConnectionPool
		transport := &http.Transport{
			MaxIdleConns:        pool.MaxIdleConns,
			MaxIdleConnsPerHost: pool.MaxIdleConns,
			MaxConnsPerHost:     pool.MaxConnsPerHost,
			IdleConnTimeout:     pool.IdleConnTimeout,
		}
		timeout := f.cfg.Reader.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		f.rest = NewRestClient(&http.Client{Transport: transport, Timeout: timeout}, f.limiter)
	})
	return f.rest
}

// WsDialer returns the shared websocket dialer, building it on first use.
func (f *Factory) WsDialer() *websocket.Dialer {
	f.wsOnce.Do(func() {
		timeout := f.cfg.Reader.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		f.ws = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		}
	})
	return f.ws
}
