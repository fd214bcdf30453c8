package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const maxBodyBytes = 2 << 20

// getJSON performs a GET and returns the parsed body. Transport failures and
// non-2xx answers come back as *domain.ProviderError; 429 is a quota error.
func getJSON(ctx context.Context, client *http.Client, logger *zap.Logger, name, endpoint string, header http.Header) (gjson.Result, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, domain.NewProviderError(name, domain.FailureTransport, err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stockwatch/1.0)")
	for key, values := range header {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}

	start := time.Now()
	logger.Debug("provider request start", zap.String("provider", name), zap.String("url", redact(endpoint)))
	response, err := client.Do(request)
	if err != nil {
		return gjson.Result{}, domain.NewProviderError(name, domain.FailureTransport, err)
	}
	defer response.Body.Close()

	logger.Debug("provider request complete",
		zap.String("provider", name),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, domain.NewProviderError(name, domain.FailureTransport, err)
	}

	if response.StatusCode == http.StatusTooManyRequests {
		return gjson.Result{}, domain.NewProviderError(name, domain.FailureQuotaExceeded, fmt.Errorf("status %d", response.StatusCode))
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return gjson.Result{}, statusError{status: response.StatusCode, body: gjson.ParseBytes(body)}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, domain.NewProviderError(name, domain.FailureUpstream, errors.New("invalid json payload"))
	}
	return gjson.ParseBytes(body), nil
}

// statusError lets adapters inspect an error payload before classifying it.
type statusError struct {
	status int
	body   gjson.Result
}

func (e statusError) Error() string {
	return fmt.Sprintf("status %d", e.status)
}

// firstPositive returns the first field in paths holding a positive number.
// Numbers may arrive as JSON numbers or strings.
func firstPositive(result gjson.Result, paths ...string) (gjson.Result, string, bool) {
	for _, path := range paths {
		value := result.Get(path)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		if value.Float() > 0 {
			return value, path, true
		}
	}
	return gjson.Result{}, "", false
}

func redact(endpoint string) string {
	if idx := strings.IndexByte(endpoint, '?'); idx >= 0 {
		return endpoint[:idx]
	}
	return endpoint
}
