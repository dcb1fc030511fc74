package providers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/cassiomorais/marketplace/internal/domain/money"
	"github.com/google/uuid"
)

// SimulatedProvider stands in for a real payout rail. It sleeps for its
// latency, then times out, rejects or accepts the transfer at the
// configured rates. Transfers above the rail's per-transfer limit are
// always rejected.
type SimulatedProvider struct {
	name        string
	latency     time.Duration
	failureRate float64
	timeoutRate float64
	maxAmount   int64

	mu      sync.Mutex
	rng     *rand.Rand
	answers map[string]answer
}

type answer struct {
	result *PayoutResult
	err    error
}

type SimulatedOption func(*SimulatedProvider)

func WithFailureRate(rate float64) SimulatedOption {
	return func(p *SimulatedProvider) { p.failureRate = rate }
}

func WithLatency(d time.Duration) SimulatedOption {
	return func(p *SimulatedProvider) { p.latency = d }
}

func WithTimeoutRate(rate float64) SimulatedOption {
	return func(p *SimulatedProvider) { p.timeoutRate = rate }
}

// WithMaxAmount caps a single transfer, in cents. Zero means no cap.
func WithMaxAmount(cents int64) SimulatedOption {
	return func(p *SimulatedProvider) { p.maxAmount = cents }
}

// WithSeed makes the outcome sequence reproducible.
func WithSeed(seed uint64) SimulatedOption {
	return func(p *SimulatedProvider) { p.rng = rand.New(rand.NewPCG(seed, seed)) }
}

func NewSimulatedProvider(name string, opts ...SimulatedOption) *SimulatedProvider {
	p := &SimulatedProvider{
		name:    name,
		latency: 100 * time.Millisecond,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		answers: make(map[string]answer),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *SimulatedProvider) Name() string { return p.name }

// SubmitPayout answers a repeated idempotency key with the stored outcome.
// Timeouts are not stored, so a timed out key may be submitted again.
func (p *SimulatedProvider) SubmitPayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if prev, ok := p.answered(req.IdempotencyKey); ok {
		return prev.replay(), prev.err
	}
	result, err := p.transfer(req)
	if req.IdempotencyKey != "" && !errors.Is(err, domainErrors.ErrProviderTimeout) {
		p.mu.Lock()
		p.answers[req.IdempotencyKey] = answer{result: result, err: err}
		p.mu.Unlock()
	}
	return result, err
}

func (p *SimulatedProvider) transfer(req PayoutRequest) (*PayoutResult, error) {
	if p.maxAmount > 0 && req.AmountCents > p.maxAmount {
		return p.rejected(fmt.Sprintf("%s: amount %s %s exceeds the per-transfer limit of %s",
			p.name, money.Format(req.AmountCents), req.Currency, money.Format(p.maxAmount)))
	}

	timeout, failure := p.roll()
	if timeout < p.timeoutRate {
		return nil, domainErrors.ErrProviderTimeout
	}
	if failure < p.failureRate {
		return p.rejected(fmt.Sprintf("%s: simulated transfer failure for payout %s", p.name, req.PayoutID))
	}

	return &PayoutResult{
		Reference: fmt.Sprintf("%s_po_%s", p.name, uuid.New().String()[:8]),
		Status:    "success",
		Metadata: map[string]any{
			"provider": p.name,
			"attempt":  req.Attempt,
			"currency": req.Currency,
		},
	}, nil
}

func (p *SimulatedProvider) answered(key string) (answer, bool) {
	if key == "" {
		return answer{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.answers[key]
	return a, ok
}

func (a answer) replay() *PayoutResult {
	if a.result == nil {
		return nil
	}
	cp := *a.result
	cp.Metadata = make(map[string]any, len(a.result.Metadata)+1)
	for k, v := range a.result.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata["replayed"] = true
	return &cp
}

func (p *SimulatedProvider) roll() (timeout, failure float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64(), p.rng.Float64()
}

func (p *SimulatedProvider) rejected(reason string) (*PayoutResult, error) {
	return &PayoutResult{Status: "failed", ErrorMessage: reason}, domainErrors.ErrProviderRejected
}
