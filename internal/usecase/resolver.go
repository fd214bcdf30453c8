package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"go.uber.org/zap"
)

const DefaultCurrency = "USD"

// quotaSignatures are matched against error text when an adapter did not
// classify a rate-limit answer itself.
var quotaSignatures = []string{
	"too many requests",
	"rate limit",
	"quota",
	"request limit",
	"upper limit",
}

var statusTooManyRequests = regexp.MustCompile(`\b429\b`)

// ChainEntry is one provider in the failover chain.
type ChainEntry struct {
	Provider domain.PriceProvider
	Policy   ProviderPolicy
}

type ResolverConfig struct {
	// BatchQuotaInterval replaces every provider's MinInterval for the rest
	// of a ResolveMany batch once a quota error was seen.
	BatchQuotaInterval time.Duration
	MaxBackoff         time.Duration
	DefaultCurrency    string
}

type chainLink struct {
	provider domain.PriceProvider
	policy   ProviderPolicy
	limiter  *providerLimiter
}

// Resolver resolves prices through an ordered chain of providers, first
// success wins.
type Resolver struct {
	chain   []chainLink
	cfg     ResolverConfig
	logger  *zap.Logger
	metrics Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	batchMu sync.Mutex
}

func NewResolver(entries []ChainEntry, cfg ResolverConfig, logger *zap.Logger, metrics Metrics) *Resolver {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = DefaultCurrency
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	chain := make([]chainLink, 0, len(entries))
	for _, entry := range entries {
		chain = append(chain, chainLink{
			provider: entry.Provider,
			policy:   entry.Policy,
			limiter:  newProviderLimiter(entry.Policy.MinInterval),
		})
	}
	return &Resolver{
		chain:   chain,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Providers lists the chain in priority order.
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.chain))
	for _, link := range r.chain {
		names = append(names, link.provider.Name())
	}
	return names
}

// Resolve never returns an error: exhausting the chain yields a failure quote
// listing every attempted provider.
func (r *Resolver) Resolve(ctx context.Context, symbol string) domain.Quote {
	return r.resolve(ctx, domain.CanonicalSymbol(symbol))
}

// ResolveMany resolves symbols one after another so the provider limiters stay
// meaningful. Results are keyed by canonical symbol.
func (r *Resolver) ResolveMany(ctx context.Context, symbols []string) map[string]domain.Quote {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	defer r.resetLimiters()

	r.logger.Info("batch price resolution start", zap.Int("symbols", len(symbols)))

	results := make(map[string]domain.Quote, len(symbols))
	widened := false
	for _, raw := range symbols {
		symbol := domain.CanonicalSymbol(raw)
		if _, done := results[symbol]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			results[symbol] = domain.NewFailureQuote(symbol, []domain.Attempt{{
				Provider: "resolver",
				Kind:     domain.FailureTransport,
				Reason:   err.Error(),
			}}, r.now())
			continue
		}

		quote := r.resolve(ctx, symbol)
		results[symbol] = quote

		if !widened && quote.QuotaHit() && r.cfg.BatchQuotaInterval > 0 {
			widened = true
			r.logger.Warn("quota error detected, widening request interval for the rest of the batch",
				zap.Duration("interval", r.cfg.BatchQuotaInterval),
			)
			for _, link := range r.chain {
				link.limiter.Widen(r.cfg.BatchQuotaInterval)
			}
		}
	}

	succeeded := 0
	for _, q := range results {
		if q.Success {
			succeeded++
		}
	}
	r.logger.Info("batch price resolution complete", zap.Int("symbols", len(results)), zap.Int("succeeded", succeeded))
	return results
}

func (r *Resolver) resetLimiters() {
	for _, link := range r.chain {
		link.limiter.Reset()
	}
}

func (r *Resolver) resolve(ctx context.Context, symbol string) domain.Quote {
	attempts := make([]domain.Attempt, 0, len(r.chain))
	strikes := 0

	for _, link := range r.chain {
		name := link.provider.Name()
		retries := 0
		for {
			price, err := r.fetch(ctx, link, symbol)
			if err == nil {
				currency := r.normalizeCurrency(price.Currency)
				r.metrics.ProviderRequest(name, "ok")
				r.logger.Info("price resolved",
					zap.String("symbol", symbol),
					zap.String("provider", name),
					zap.String("price", price.Price.String()),
					zap.String("currency", currency),
				)
				return domain.NewSuccessQuote(symbol, price.Price, currency, name, attempts, r.now())
			}

			kind := classify(err)
			r.metrics.ProviderRequest(name, string(kind))
			r.logger.Warn("provider request failed",
				zap.String("symbol", symbol),
				zap.String("provider", name),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			attempts = append(attempts, domain.Attempt{Provider: name, Kind: kind, Reason: err.Error()})

			if kind != domain.FailureQuotaExceeded {
				break
			}
			strikes++
			if retries >= link.policy.QuotaRetries || ctx.Err() != nil {
				break
			}
			retries++
			wait := quotaBackoff(link.policy.QuotaBackoff, r.cfg.MaxBackoff, strikes)
			r.logger.Warn("provider quota exceeded, backing off",
				zap.String("provider", name),
				zap.Int("strikes", strikes),
				zap.Duration("wait", wait),
			)
			if err := r.sleep(ctx, wait); err != nil {
				break
			}
		}
	}

	quote := domain.NewFailureQuote(symbol, attempts, r.now())
	r.logger.Error("price resolution failed", zap.String("symbol", symbol), zap.String("error", quote.Error))
	return quote
}

func (r *Resolver) fetch(ctx context.Context, link chainLink, symbol string) (domain.ProviderPrice, error) {
	if err := link.limiter.Wait(ctx); err != nil {
		return domain.ProviderPrice{}, domain.NewProviderError(link.provider.Name(), domain.FailureTransport, err)
	}
	price, err := link.provider.Fetch(ctx, symbol)
	if err != nil {
		return domain.ProviderPrice{}, err
	}
	if !price.Price.IsPositive() {
		return domain.ProviderPrice{}, domain.NewProviderError(link.provider.Name(), domain.FailureNoData, errors.New("non-positive price"))
	}
	return price, nil
}

func (r *Resolver) normalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return r.cfg.DefaultCurrency
	}
	return c
}

// classify trusts an adapter's own classification but still inspects the
// error text for a rate-limit signature.
func classify(err error) domain.FailureKind {
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return domain.FailureQuotaExceeded
	}
	text := strings.ToLower(err.Error())
	if statusTooManyRequests.MatchString(text) {
		return domain.FailureQuotaExceeded
	}
	for _, signature := range quotaSignatures {
		if strings.Contains(text, signature) {
			return domain.FailureQuotaExceeded
		}
	}
	return domain.FailureKindOf(err)
}
