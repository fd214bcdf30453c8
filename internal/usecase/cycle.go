package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deliverer hands a triggered alert to the user. Formatting and transport are
// its business.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, alert domain.TriggeredAlert) error
}

type CycleReport struct {
	Started   time.Time
	Duration  time.Duration
	Symbols   int
	Resolved  int
	Triggered int
	Delivered int
	Failed    int
	Skipped   bool
	Err       error
}

// CycleRunner performs one resolve/evaluate/deliver pass.
type CycleRunner struct {
	store       *AlertStore
	resolver    *Resolver
	evaluator   *Evaluator
	deliverer   Deliverer
	concurrency int
	logger      *zap.Logger
	metrics     Metrics

	running sync.Mutex
}

func NewCycleRunner(store *AlertStore, resolver *Resolver, evaluator *Evaluator, deliverer Deliverer, concurrency int, logger *zap.Logger, metrics Metrics) *CycleRunner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &CycleRunner{
		store:       store,
		resolver:    resolver,
		evaluator:   evaluator,
		deliverer:   deliverer,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

// RunCycle is safe to call on a fixed period. A call that overlaps a running
// cycle is skipped. Errors and panics are logged and reported, never raised.
func (c *CycleRunner) RunCycle(ctx context.Context) (report CycleReport) {
	report.Started = time.Now()
	if !c.running.TryLock() {
		c.logger.Warn("previous cycle still running, skipping")
		report.Skipped = true
		return report
	}
	defer c.running.Unlock()

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("cycle panic: %v", r)
		}
		report.Duration = time.Since(report.Started)
		c.metrics.CycleFinished(report.Duration, report.Err)
		if report.Err != nil {
			c.logger.Error("cycle failed", zap.Duration("duration", report.Duration), zap.Error(report.Err))
			return
		}
		c.logger.Info("cycle complete",
			zap.Duration("duration", report.Duration),
			zap.Int("symbols", report.Symbols),
			zap.Int("resolved", report.Resolved),
			zap.Int("triggered", report.Triggered),
			zap.Int("delivered", report.Delivered),
			zap.Int("delivery_failed", report.Failed),
		)
	}()

	symbols := c.store.DistinctSymbols()
	report.Symbols = len(symbols)
	if len(symbols) == 0 {
		c.logger.Info("no alerts configured, skipping cycle")
		return report
	}
	c.logger.Info("cycle start", zap.Int("symbols", len(symbols)), zap.Strings("symbol_list", symbols))

	quotes := c.resolver.ResolveMany(ctx, symbols)
	for _, q := range quotes {
		if q.Success {
			report.Resolved++
		}
	}

	triggered, err := c.evaluator.Evaluate(ctx, quotes)
	if err != nil {
		// in-memory state already moved; still deliver what fired
		report.Err = fmt.Errorf("evaluate: %w", err)
	}
	report.Triggered = len(triggered)
	c.metrics.AlertsTriggered(len(triggered))
	if len(triggered) == 0 {
		return report
	}

	report.Delivered, report.Failed = c.deliver(ctx, triggered)
	return report
}

func (c *CycleRunner) deliver(ctx context.Context, alerts []domain.TriggeredAlert) (delivered, failed int) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)

	for _, alert := range alerts {
		alert := alert
		g.Go(func() error {
			err := c.safeDeliver(ctx, alert)
			c.metrics.Delivery(err == nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				c.logger.Warn("alert delivery failed",
					zap.Int64("user_id", alert.Rule.UserID),
					zap.String("rule_id", alert.Rule.ID),
					zap.Error(err),
				)
				return nil
			}
			delivered++
			return nil
		})
	}
	_ = g.Wait()
	return delivered, failed
}

func (c *CycleRunner) safeDeliver(ctx context.Context, alert domain.TriggeredAlert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliver panic: %v", r)
		}
	}()
	return c.deliverer.Deliver(ctx, alert.Rule.UserID, alert)
}
