package config

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramPollTimeout int    `env:"TELEGRAM_POLL_TIMEOUT,default=60"`

	StorageDriver     string        `env:"STORAGE_DRIVER,default=sqlite"`
	StorageDSN        string        `env:"STORAGE_DSN,default=config/watchlist.db"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=2"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=4"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	CheckInterval       time.Duration `env:"CHECK_INTERVAL,default=5m"`
	DeliveryConcurrency int           `env:"DELIVERY_CONCURRENCY,default=4"`

	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT,default=10s"`
	MinRequestInterval time.Duration `env:"MIN_REQUEST_INTERVAL,default=1s"`
	BatchQuotaInterval time.Duration `env:"BATCH_QUOTA_INTERVAL,default=5s"`
	QuotaBackoff       time.Duration `env:"QUOTA_BACKOFF,default=10s"`
	MaxQuotaBackoff    time.Duration `env:"MAX_QUOTA_BACKOFF,default=60s"`
	QuotaRetries       int           `env:"QUOTA_RETRIES,default=1"`
	DefaultCurrency    string        `env:"DEFAULT_CURRENCY,default=USD"`

	YahooBaseURL        string `env:"YAHOO_BASE_URL,default=https://query1.finance.yahoo.com"`
	FinMindBaseURL      string `env:"FINMIND_BASE_URL,default=https://api.finmindtrade.com"`
	FinMindToken        string `env:"FINMIND_TOKEN"`
	FinMindEnabled      bool   `env:"FINMIND_ENABLED,default=true"`
	AlphaVantageBaseURL string `env:"ALPHA_VANTAGE_BASE_URL,default=https://www.alphavantage.co"`
	AlphaVantageAPIKey  string `env:"ALPHA_VANTAGE_API_KEY,default=demo"`

	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=json"`
}

var ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireBot fails when the Telegram front end cannot start.
func (c Config) RequireBot() error {
	if c.TelegramBotToken == "" || c.TelegramBotToken == "your_bot_token_here" {
		return ErrMissingBotToken
	}
	return nil
}
