package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type FailureKind string

const (
	FailureQuotaExceeded FailureKind = "quota_exceeded"
	FailureNoData        FailureKind = "no_data"
	FailureTransport     FailureKind = "transport"
	FailureUpstream      FailureKind = "upstream"
)

// ProviderPrice is what an adapter reports for one symbol. Currency may be
// empty when the upstream does not say.
type ProviderPrice struct {
	Price    decimal.Decimal
	Currency string
}

type PriceProvider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (ProviderPrice, error)
}

type ProviderError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func NewProviderError(provider string, kind FailureKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.Kind == FailureQuotaExceeded
}

// FailureKindOf classifies any provider error, falling back to upstream.
func FailureKindOf(err error) FailureKind {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return FailureQuotaExceeded
	}
	return FailureUpstream
}

// Attempt records one provider that failed while resolving a quote.
type Attempt struct {
	Provider string
	Kind     FailureKind
	Reason   string
}

// Quote is the normalized price for one symbol in one cycle. Price is nil and
// Error is set iff Success is false.
type Quote struct {
	Symbol    string
	Price     *decimal.Decimal
	Currency  string
	Source    string
	Success   bool
	Error     string
	Attempts  []Attempt
	FetchedAt time.Time
}

func NewSuccessQuote(symbol string, price decimal.Decimal, currency, source string, attempts []Attempt, at time.Time) Quote {
	p := price
	return Quote{
		Symbol:    symbol,
		Price:     &p,
		Currency:  currency,
		Source:    source,
		Success:   true,
		Attempts:  attempts,
		FetchedAt: at,
	}
}

func NewFailureQuote(symbol string, attempts []Attempt, at time.Time) Quote {
	return Quote{
		Symbol:    symbol,
		Success:   false,
		Error:     failureSummary(attempts),
		Attempts:  attempts,
		FetchedAt: at,
	}
}

// QuotaHit reports whether any provider answered with a quota error.
func (q Quote) QuotaHit() bool {
	for _, a := range q.Attempts {
		if a.Kind == FailureQuotaExceeded {
			return true
		}
	}
	return false
}

func failureSummary(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "no price providers configured"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Provider, a.Reason))
	}
	return "all providers failed: " + strings.Join(parts, ", ")
}
