package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/payout"
	"github.com/sony/gobreaker/v2"
)

// StateObserver is notified when a provider circuit breaker changes state.
type StateObserver func(name string, from, to gobreaker.State)

// BreakerConfig tunes the per-provider circuit breakers. A breaker opens
// once MinRequests calls in an interval fail at FailureRatio or more, and
// half-opens after Timeout.
type BreakerConfig struct {
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	Timeout      time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
	}
}

type Factory struct {
	providers       map[string]Provider
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*PayoutResult]
	breaker         BreakerConfig
	observer        StateObserver
}

// NewFactory registers the given providers, or simulated ones for every
// payout method when none are given.
func NewFactory(providersList ...Provider) *Factory {
	return NewFactoryWithConfig(DefaultBreakerConfig(), providersList...)
}

func NewFactoryWithConfig(cfg BreakerConfig, providersList ...Provider) *Factory {
	def := DefaultBreakerConfig()
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	f := &Factory{
		providers:       make(map[string]Provider),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*PayoutResult]),
		breaker:         cfg,
	}

	if len(providersList) == 0 {
		f.Register(NewSimulatedProvider(string(payout.MethodBankTransfer),
			WithLatency(400*time.Millisecond),
			WithFailureRate(0.03),
		))
		f.Register(NewSimulatedProvider(string(payout.MethodStripe),
			WithLatency(200*time.Millisecond),
			WithFailureRate(0.05),
		))
		f.Register(NewSimulatedProvider(string(payout.MethodPayPal),
			WithLatency(300*time.Millisecond),
			WithFailureRate(0.08),
			WithMaxAmount(1000000),
		))
	} else {
		for _, p := range providersList {
			f.Register(p)
		}
	}

	return f
}

// Observe sets the hook called on breaker state changes.
func (f *Factory) Observe(observer StateObserver) *Factory {
	f.observer = observer
	return f
}

func (f *Factory) Register(p Provider) {
	f.providers[p.Name()] = p
	cfg := f.breaker
	f.circuitBreakers[p.Name()] = gobreaker.NewCircuitBreaker[*PayoutResult](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: cfg.MinRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if f.observer != nil {
				f.observer(name, from, to)
			}
		},
	})
}

func (f *Factory) Get(method payout.Method) (Provider, *gobreaker.CircuitBreaker[*PayoutResult], error) {
	p, ok := f.providers[string(method)]
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q: %w", method, domainErrors.ErrProviderNotFound)
	}
	breaker := f.circuitBreakers[string(method)]
	return p, breaker, nil
}

// Submit sends req through the provider's circuit breaker. An open breaker
// is reported as ErrProviderUnavailable.
func (f *Factory) Submit(ctx context.Context, method payout.Method, req PayoutRequest) (*PayoutResult, error) {
	p, breaker, err := f.Get(method)
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*PayoutResult, error) {
		return p.SubmitPayout(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", method, domainErrors.ErrProviderUnavailable)
		}
		return result, err
	}
	return result, nil
}
