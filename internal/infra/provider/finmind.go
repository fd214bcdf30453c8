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
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	FinMindName = "finmind"

	finMindLookback = 3 * 24 * time.Hour
	finMindDate     = "2006-01-02"
)

// FinMind serves daily closes for Taiwan and US listings. The latest close in
// a short window is used as the current price.
type FinMind struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

func NewFinMind(baseURL, token string, timeout time.Duration, logger *zap.Logger) *FinMind {
	return &FinMind{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
	}
}

func (f *FinMind) Name() string { return FinMindName }

func (f *FinMind) Fetch(ctx context.Context, symbol string) (domain.ProviderPrice, error) {
	market := domain.MarketOf(symbol)
	dataset := "USStockPrice"
	if market == domain.MarketTaiwan {
		dataset = "TaiwanStockPrice"
	}

	end := f.now()
	query := url.Values{}
	query.Set("dataset", dataset)
	query.Set("data_id", domain.LocalCode(symbol))
	query.Set("start_date", end.Add(-finMindLookback).Format(finMindDate))
	query.Set("end_date", end.Format(finMindDate))

	var header http.Header
	if f.token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + f.token}}
	}

	payload, err := getJSON(ctx, f.client, f.logger, FinMindName, f.baseURL+"/api/v4/data?"+query.Encode(), header)
	if err != nil {
		var se statusError
		if errors.As(err, &se) {
			return domain.ProviderPrice{}, f.classify(se.status, se.body)
		}
		return domain.ProviderPrice{}, err
	}

	if status := payload.Get("status"); status.Exists() && status.Int() != http.StatusOK {
		return domain.ProviderPrice{}, f.classify(int(status.Int()), payload)
	}

	rows := payload.Get("data").Array()
	if len(rows) == 0 {
		return domain.ProviderPrice{}, domain.NewProviderError(FinMindName, domain.FailureNoData, fmt.Errorf("no rows for %s", symbol))
	}
	latest := rows[len(rows)-1]

	value, field, ok := firstPositive(latest, "Close", "close")
	if !ok {
		return domain.ProviderPrice{}, domain.NewProviderError(FinMindName, domain.FailureNoData, errors.New("no close price"))
	}
	price, err := decimal.NewFromString(value.String())
	if err != nil {
		return domain.ProviderPrice{}, domain.NewProviderError(FinMindName, domain.FailureUpstream, fmt.Errorf("parse %s: %w", field, err))
	}

	return domain.ProviderPrice{Price: price, Currency: market.Currency()}, nil
}

// FinMind signals an exhausted request allowance with 402 and a message.
func (f *FinMind) classify(status int, body gjson.Result) error {
	msg := body.Get("msg").String()
	lower := strings.ToLower(msg)
	if status == http.StatusPaymentRequired || status == http.StatusTooManyRequests || strings.Contains(lower, "limit") {
		return domain.NewProviderError(FinMindName, domain.FailureQuotaExceeded, fmt.Errorf("status %d: %s", status, msg))
	}
	return domain.NewProviderError(FinMindName, domain.FailureUpstream, fmt.Errorf("status %d: %s", status, msg))
}
