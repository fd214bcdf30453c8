package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AlphaVantageName = "alphavantage"

	// DemoAPIKey only answers for a handful of documentation symbols.
	DemoAPIKey = "demo"
)

// AlphaVantage is the last fallback. Taiwan listings use the ".TPE" suffix
// there instead of ".TW".
type AlphaVantage struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewAlphaVantage(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *AlphaVantage {
	return &AlphaVantage{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// AlphaVantageUsable reports whether a real API key is configured.
func AlphaVantageUsable(apiKey string) bool {
	key := strings.TrimSpace(apiKey)
	return key != "" && key != DemoAPIKey
}

func (a *AlphaVantage) Name() string { return AlphaVantageName }

func (a *AlphaVantage) Fetch(ctx context.Context, symbol string) (domain.ProviderPrice, error) {
	market := domain.MarketOf(symbol)
	avSymbol := symbol
	if market == domain.MarketTaiwan {
		avSymbol = domain.LocalCode(symbol) + ".TPE"
	}

	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", avSymbol)
	query.Set("apikey", a.apiKey)

	payload, err := getJSON(ctx, a.client, a.logger, AlphaVantageName, a.baseURL+"/query?"+query.Encode(), nil)
	if err != nil {
		var se statusError
		if errors.As(err, &se) {
			return domain.ProviderPrice{}, domain.NewProviderError(AlphaVantageName, domain.FailureUpstream, err)
		}
		return domain.ProviderPrice{}, err
	}

	// Throttled answers are 200s carrying a Note or Information message.
	for _, key := range []string{"Note", "Information"} {
		if note := payload.Get(key); note.Exists() {
			return domain.ProviderPrice{}, domain.NewProviderError(AlphaVantageName, domain.FailureQuotaExceeded, errors.New(note.String()))
		}
	}
	if msg := payload.Get("Error Message"); msg.Exists() {
		return domain.ProviderPrice{}, domain.NewProviderError(AlphaVantageName, domain.FailureNoData, errors.New(msg.String()))
	}

	value, _, ok := firstPositive(payload.Get("Global Quote"), `05\. price`)
	if !ok {
		return domain.ProviderPrice{}, domain.NewProviderError(AlphaVantageName, domain.FailureNoData, fmt.Errorf("no quote for %s", avSymbol))
	}
	price, err := decimal.NewFromString(value.String())
	if err != nil {
		return domain.ProviderPrice{}, domain.NewProviderError(AlphaVantageName, domain.FailureUpstream, err)
	}

	return domain.ProviderPrice{Price: price, Currency: market.Currency()}, nil
}
