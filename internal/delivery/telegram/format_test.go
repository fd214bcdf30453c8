package telegram

import (
	"testing"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price    string
		currency string
		want     string
	}{
		{"1234.5", "TWD", "NT$ 1,234.50"},
		{"189.999", "USD", "$ 190.00"},
		{"5", "", "$ 5.00"},
		{"1234567.891", "usd", "$ 1,234,567.89"},
		{"980", "JPY", "980.00 JPY"},
		{"-1500", "USD", "$ -1,500.00"},
		{"100", "USD", "$ 100.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(decimal.RequireFromString(tt.price), tt.currency))
	}
}

func TestFormatTriggeredAlert(t *testing.T) {
	text := FormatTriggeredAlert(domain.TriggeredAlert{
		Rule: domain.AlertRule{
			ID:          "01JABC",
			Symbol:      "2330.TW",
			TargetPrice: decimal.NewFromInt(1000),
			Condition:   domain.ConditionAbove,
		},
		CurrentPrice: decimal.RequireFromString("1005.5"),
		Currency:     "TWD",
	})

	assert.Contains(t, text, "2330.TW")
	assert.Contains(t, text, "above NT$ 1,000.00")
	assert.Contains(t, text, "Current: NT$ 1,005.50")
	assert.Contains(t, text, "01JABC")
}

func TestFormatQuote(t *testing.T) {
	ok := domain.NewSuccessQuote("AAPL", decimal.RequireFromString("190.1"), "USD", "yahoo", nil, time.Now())
	assert.Equal(t, "AAPL: $ 190.10 (via yahoo)", formatQuote(ok))

	failed := domain.NewFailureQuote("ZZZZ", []domain.Attempt{{Provider: "yahoo", Reason: "no data"}}, time.Now())
	assert.Equal(t, "ZZZZ: unavailable (all providers failed: yahoo (no data))", formatQuote(failed))
}
