package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/stockwatch/internal/config"
	"github.com/NasaVasa/stockwatch/internal/delivery/telegram"
	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/NasaVasa/stockwatch/internal/infra/db"
	"github.com/NasaVasa/stockwatch/internal/infra/log"
	"github.com/NasaVasa/stockwatch/internal/infra/metrics"
	"github.com/NasaVasa/stockwatch/internal/infra/provider"
	"github.com/NasaVasa/stockwatch/internal/usecase"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const shutdownTimeout = 2 * time.Minute

type Options struct {
	// Telegram enables the bot front end and Telegram delivery. Without it
	// triggered alerts are only logged.
	Telegram bool
}

type App struct {
	cfg       config.Config
	logger    *zap.Logger
	metrics   *metrics.Prometheus
	store     *usecase.AlertStore
	resolver  *usecase.Resolver
	alertUC   *usecase.AlertUsecase
	cycle     *usecase.CycleRunner
	bot       *telegram.Bot
	scheduler *cron.Cron
	cleanupFn func() error

	cycles       sync.WaitGroup
	shutdownOnce sync.Once
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	if opts.Telegram {
		if err := cfg.RequireBot(); err != nil {
			return nil, err
		}
	}

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	cleanup := func() error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	promMetrics := metrics.New()
	store := usecase.NewAlertStore(db.NewSnapshotRepository(dbConn, logger), logger)
	store.Load(ctx)

	resolver := usecase.NewResolver(buildChain(cfg, logger), usecase.ResolverConfig{
		BatchQuotaInterval: cfg.BatchQuotaInterval,
		MaxBackoff:         cfg.MaxQuotaBackoff,
		DefaultCurrency:    cfg.DefaultCurrency,
	}, logger, promMetrics)
	logger.Info("price provider chain", zap.Strings("providers", resolver.Providers()))

	alertUC := usecase.NewAlertUsecase(store, resolver)
	evaluator := usecase.NewEvaluator(store, logger)

	var deliverer usecase.Deliverer = logDeliverer{logger: logger}
	var bot *telegram.Bot
	if opts.Telegram {
		api, err := telegram.NewAPI(cfg.TelegramBotToken)
		if err != nil {
			_ = cleanup()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		deliverer = telegram.NewNotifier(api, logger)
		handlers := telegram.NewHandlers(alertUC, api, logger)
		bot = telegram.NewBot(api, handlers, cfg.TelegramPollTimeout)
	}

	cycle := usecase.NewCycleRunner(store, resolver, evaluator, deliverer, cfg.DeliveryConcurrency, logger, promMetrics)

	return &App{
		cfg:       cfg,
		logger:    logger,
		metrics:   promMetrics,
		store:     store,
		resolver:  resolver,
		alertUC:   alertUC,
		cycle:     cycle,
		bot:       bot,
		cleanupFn: cleanup,
	}, nil
}

func buildChain(cfg config.Config, logger *zap.Logger) []usecase.ChainEntry {
	policy := usecase.ProviderPolicy{
		MinInterval:  cfg.MinRequestInterval,
		QuotaBackoff: cfg.QuotaBackoff,
		QuotaRetries: cfg.QuotaRetries,
	}

	chain := []usecase.ChainEntry{{
		Provider: provider.NewYahoo(cfg.YahooBaseURL, cfg.ProviderTimeout, logger),
		Policy:   policy,
	}}
	if cfg.FinMindEnabled {
		chain = append(chain, usecase.ChainEntry{
			Provider: provider.NewFinMind(cfg.FinMindBaseURL, cfg.FinMindToken, cfg.ProviderTimeout, logger),
			Policy:   policy,
		})
	}
	if provider.AlphaVantageUsable(cfg.AlphaVantageAPIKey) {
		// the free tier allows a handful of calls per minute
		avPolicy := policy
		avPolicy.QuotaRetries = 0
		chain = append(chain, usecase.ChainEntry{
			Provider: provider.NewAlphaVantage(cfg.AlphaVantageBaseURL, cfg.AlphaVantageAPIKey, cfg.ProviderTimeout, logger),
			Policy:   avPolicy,
		})
	} else {
		logger.Info("alpha vantage disabled, no api key configured")
	}
	return chain
}

// Run starts the metrics endpoint, one immediate cycle, the periodic trigger
// and the bot, then blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("stockwatch service starting", zap.Duration("check_interval", a.cfg.CheckInterval))

	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr, a.logger); err != nil {
				a.logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	// cycles must be allowed to finish after shutdown starts
	cycleCtx := context.WithoutCancel(ctx)

	a.scheduler = cron.New(
		cron.WithLogger(cronLogger{logger: a.logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: a.logger}), cron.SkipIfStillRunning(cronLogger{logger: a.logger})),
	)
	entryID, err := a.scheduler.AddFunc(fmt.Sprintf("@every %s", a.cfg.CheckInterval), func() {
		a.cycle.RunCycle(cycleCtx)
	})
	if err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}

	a.cycles.Add(1)
	go func() {
		defer a.cycles.Done()
		a.scheduler.Entry(entryID).WrappedJob.Run()
	}()
	a.scheduler.Start()

	a.logger.Info("stockwatch service started")
	if a.bot == nil {
		<-ctx.Done()
		return nil
	}
	return a.bot.Start(ctx)
}

// RunOnce performs a single cycle, used by the check command.
func (a *App) RunOnce(ctx context.Context) usecase.CycleReport {
	return a.cycle.RunCycle(ctx)
}

func (a *App) Alerts() *usecase.AlertUsecase {
	return a.alertUC
}

// Shutdown waits for an in-flight cycle, writes a final snapshot and releases
// storage. It is safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.logger.Info("stockwatch service shutting down")

		if a.scheduler != nil {
			stopped := a.scheduler.Stop()
			select {
			case <-stopped.Done():
			case <-time.After(shutdownTimeout):
				a.logger.Warn("timeout waiting for running cycle")
			}
		}
		a.cycles.Wait()

		flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.store.Flush(flushCtx); err != nil {
			a.logger.Error("final watchlist snapshot failed", zap.Error(err))
		}

		if a.cleanupFn != nil {
			if err := a.cleanupFn(); err != nil {
				a.logger.Warn("failed to close database", zap.Error(err))
			}
		}
		a.logger.Info("stockwatch service stopped")
		_ = a.logger.Sync()
	})
}

type logDeliverer struct {
	logger *zap.Logger
}

func (d logDeliverer) Deliver(_ context.Context, userID int64, alert domain.TriggeredAlert) error {
	d.logger.Info("alert triggered (no delivery channel)",
		zap.Int64("user_id", userID),
		zap.String("rule_id", alert.Rule.ID),
		zap.String("symbol", alert.Rule.Symbol),
		zap.String("price", alert.CurrentPrice.String()),
		zap.String("currency", alert.Currency),
	)
	return nil
}

type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
