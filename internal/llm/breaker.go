package llm

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures BreakerProvider.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerSettings returns settings that only trip after a sustained
// run of backend failures.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker. While the
// circuit is open calls fail immediately; nothing is retried. Only the
// opening of a stream counts towards the breaker.
type BreakerProvider struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps provider with a gobreaker circuit breaker.
func NewBreakerProvider(provider Provider, settings BreakerSettings, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("model circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a backend failure.
			return err == nil || err == context.Canceled
		},
	})
	return &BreakerProvider{provider: provider, cb: cb}
}

func (b *BreakerProvider) Name() string {
	return b.provider.Name()
}

// State reports the current breaker state.
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.provider.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*CompletionResponse), nil
}

func (b *BreakerProvider) Stream(ctx context.Context, req CompletionRequest) (Stream, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.provider.Stream(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(Stream), nil
}
