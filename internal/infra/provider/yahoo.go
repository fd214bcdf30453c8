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

const YahooName = "yahoo"

// yahooPriceFields are tried in order; the chart meta block carries different
// fields depending on market state.
var yahooPriceFields = []string{
	"regularMarketPrice",
	"currentPrice",
	"previousClose",
	"chartPreviousClose",
	"open",
}

// Yahoo reads the public chart endpoint. It is the primary provider.
type Yahoo struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewYahoo(baseURL string, timeout time.Duration, logger *zap.Logger) *Yahoo {
	return &Yahoo{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (y *Yahoo) Name() string { return YahooName }

func (y *Yahoo) Fetch(ctx context.Context, symbol string) (domain.ProviderPrice, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", y.baseURL, url.PathEscape(symbol))
	payload, err := getJSON(ctx, y.client, y.logger, YahooName, endpoint, nil)
	if err != nil {
		var se statusError
		if errors.As(err, &se) {
			if se.status == http.StatusNotFound {
				return domain.ProviderPrice{}, domain.NewProviderError(YahooName, domain.FailureNoData, fmt.Errorf("unknown symbol %s", symbol))
			}
			return domain.ProviderPrice{}, domain.NewProviderError(YahooName, domain.FailureUpstream, err)
		}
		return domain.ProviderPrice{}, err
	}

	if description := payload.Get("chart.error.description"); description.Exists() && description.String() != "" {
		return domain.ProviderPrice{}, domain.NewProviderError(YahooName, domain.FailureNoData, errors.New(description.String()))
	}

	meta := payload.Get("chart.result.0.meta")
	if !meta.Exists() {
		return domain.ProviderPrice{}, domain.NewProviderError(YahooName, domain.FailureNoData, errors.New("empty chart result"))
	}

	value, field, ok := firstPositive(meta, yahooPriceFields...)
	if !ok {
		return domain.ProviderPrice{}, domain.NewProviderError(YahooName, domain.FailureNoData, errors.New("no price field"))
	}
	price, err := decimal.NewFromString(value.String())
	if err != nil {
		return domain.ProviderPrice{}, domain.NewProviderError(YahooName, domain.FailureUpstream, fmt.Errorf("parse %s: %w", field, err))
	}

	return domain.ProviderPrice{Price: price, Currency: meta.Get("currency").String()}, nil
}
