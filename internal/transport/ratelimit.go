package transport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// The exchange enforces a shared request-weight pool of 1200 units per
// minute across all REST endpoints, with a per-endpoint weight. Each
// endpoint additionally has its own generous per-minute cap.
const (
	requestWeightPerMinute = 1200
	perEndpointPerMinute   = 5000
)

var endpointWeights = map[string]int{
	PrimaryCurrencyCodesPath:   10,
	SecondaryCurrencyCodesPath: 10,
	RecentTradesPath:           40,
	OrderBookPath:              50,
	MinimumVolumesPath:         10,
	PingPath:                   10,
	AccountsPath:               10,
	MyTradesPath:               10,
}

// Limiter grants scoped permits for REST calls. A permit must be acquired
// before every call; the limiter is safe for concurrent use.
type Limiter struct {
	pool      *rate.Limiter
	endpoints map[string]*rate.Limiter
}

// NewLimiter builds a limiter covering all known endpoints.
func NewLimiter() *Limiter {
	endpoints := make(map[string]*rate.Limiter, len(endpointWeights))
	for path := range endpointWeights {
		endpoints[path] = rate.NewLimiter(rate.Limit(perEndpointPerMinute)/60, perEndpointPerMinute)
	}
	return &Limiter{
		pool:      rate.NewLimiter(rate.Limit(requestWeightPerMinute)/60, requestWeightPerMinute),
		endpoints: endpoints,
	}
}

// Acquire blocks until the endpoint's own limit and its share of the
// request-weight pool both allow one call, or until ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context, limitID string) error {
	weight, ok := endpointWeights[limitID]
	if !ok {
		return fmt.Errorf("unknown rate limit id %q", limitID)
	}
	if err := l.endpoints[limitID].Wait(ctx); err != nil {
		return err
	}
	return l.pool.WaitN(ctx, weight)
}
