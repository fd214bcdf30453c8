package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type memoryRepo struct {
	mu       sync.Mutex
	snapshot domain.WatchlistSnapshot
	loadErr  error
	saveErr  error
	saves    int
}

func (r *memoryRepo) Load(context.Context) (domain.WatchlistSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return domain.WatchlistSnapshot{}, r.loadErr
	}
	return r.snapshot, nil
}

func (r *memoryRepo) Save(_ context.Context, snapshot domain.WatchlistSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.snapshot = snapshot
	return nil
}

func (r *memoryRepo) failSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

func (r *memoryRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *memoryRepo) saved() domain.WatchlistSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("R%03d", n)
	}
}

func newTestStore(repo *memoryRepo) *AlertStore {
	return NewAlertStore(repo, zap.NewNop(),
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
}

// scriptedProvider answers from a per-symbol queue of results; the last entry
// repeats once the queue is drained.
type scriptedProvider struct {
	name string

	mu      sync.Mutex
	answers map[string][]providerAnswer
	calls   map[string]int
}

type providerAnswer struct {
	price    string
	currency string
	err      error
}

func newScriptedProvider(name string) *scriptedProvider {
	return &scriptedProvider{name: name, answers: map[string][]providerAnswer{}, calls: map[string]int{}}
}

func (p *scriptedProvider) on(symbol string, answers ...providerAnswer) *scriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers[symbol] = answers
	return p
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Fetch(_ context.Context, symbol string) (domain.ProviderPrice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls[symbol]
	p.calls[symbol]++

	answers, ok := p.answers[symbol]
	if !ok || len(answers) == 0 {
		return domain.ProviderPrice{}, domain.NewProviderError(p.name, domain.FailureNoData, errors.New("unknown symbol"))
	}
	if idx >= len(answers) {
		idx = len(answers) - 1
	}
	answer := answers[idx]
	if answer.err != nil {
		return domain.ProviderPrice{}, answer.err
	}
	return domain.ProviderPrice{Price: decimal.RequireFromString(answer.price), Currency: answer.currency}, nil
}

func (p *scriptedProvider) callCount(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}

func (p *scriptedProvider) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.calls {
		total += n
	}
	return total
}

func ok(price, currency string) providerAnswer {
	return providerAnswer{price: price, currency: currency}
}

func fail(err error) providerAnswer {
	return providerAnswer{err: err}
}

func quotaErr(provider string) error {
	return domain.NewProviderError(provider, domain.FailureQuotaExceeded, errors.New("status 429"))
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func newTestResolver(providers ...domain.PriceProvider) (*Resolver, *sleepRecorder) {
	entries := make([]ChainEntry, 0, len(providers))
	for _, p := range providers {
		entries = append(entries, ChainEntry{Provider: p, Policy: ProviderPolicy{QuotaBackoff: 10 * time.Second, QuotaRetries: 1}})
	}
	r := NewResolver(entries, ResolverConfig{BatchQuotaInterval: 5 * time.Second, MaxBackoff: time.Minute}, zap.NewNop(), nil)
	rec := &sleepRecorder{}
	r.sleep = rec.sleep
	return r, rec
}

func successQuote(symbol, price string) domain.Quote {
	return domain.NewSuccessQuote(symbol, decimal.RequireFromString(price), "USD", "test", nil, time.Now())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
