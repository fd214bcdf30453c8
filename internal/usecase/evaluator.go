package usecase

import (
	"context"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	bufferRatio = decimal.NewFromFloat(0.02)
	minBuffer   = decimal.NewFromFloat(0.5)
)

// HysteresisBuffer is how far past the target a price has to move back before
// a suppressed rule re-arms.
func HysteresisBuffer(target decimal.Decimal) decimal.Decimal {
	return decimal.Max(target.Mul(bufferRatio), minBuffer)
}

// Evaluator runs the arm/suppress state machine of every enabled rule against
// a batch of quotes.
type Evaluator struct {
	store  *AlertStore
	logger *zap.Logger
	now    func() time.Time
}

func NewEvaluator(store *AlertStore, logger *zap.Logger) *Evaluator {
	return &Evaluator{store: store, logger: logger, now: time.Now}
}

// Evaluate returns the rules that fired in this batch. Rules without a
// successful quote are left exactly as they were. A persistence error is
// returned together with the triggered alerts; the in-memory state is already
// updated. A snapshot is written only when a rule changed, except that a
// write left pending by an earlier failure is retried on every batch.
func (e *Evaluator) Evaluate(ctx context.Context, quotes map[string]domain.Quote) ([]domain.TriggeredAlert, error) {
	var triggered []domain.TriggeredAlert
	now := e.now()

	changed, err := e.store.Apply(ctx, func(rule *domain.AlertRule) bool {
		quote, ok := quotes[rule.Symbol]
		if !ok || !quote.Success || quote.Price == nil {
			return false
		}
		price := *quote.Price

		switch {
		case !rule.Notified && conditionMet(rule, price):
			rule.Notified = true
			at := now
			rule.LastNotifiedAt = &at
			triggered = append(triggered, domain.TriggeredAlert{
				Rule:         rule.Clone(),
				CurrentPrice: price,
				Currency:     quoteCurrency(quote),
			})
			e.logger.Info("alert triggered",
				zap.String("rule_id", rule.ID),
				zap.Int64("user_id", rule.UserID),
				zap.String("symbol", rule.Symbol),
				zap.String("condition", string(rule.Condition)),
				zap.String("target", rule.TargetPrice.String()),
				zap.String("price", price.String()),
			)
			return true
		case rule.Notified && rearmed(rule, price):
			rule.Notified = false
			e.logger.Info("alert re-armed",
				zap.String("rule_id", rule.ID),
				zap.String("symbol", rule.Symbol),
				zap.String("price", price.String()),
			)
			return true
		default:
			return false
		}
	})

	if changed > 0 {
		e.logger.Debug("evaluation changed rules", zap.Int("changed", changed), zap.Int("triggered", len(triggered)))
	}
	return triggered, err
}

func conditionMet(rule *domain.AlertRule, price decimal.Decimal) bool {
	switch rule.Condition {
	case domain.ConditionAbove:
		return price.GreaterThanOrEqual(rule.TargetPrice)
	case domain.ConditionBelow:
		return price.LessThanOrEqual(rule.TargetPrice)
	default:
		return false
	}
}

func rearmed(rule *domain.AlertRule, price decimal.Decimal) bool {
	buffer := HysteresisBuffer(rule.TargetPrice)
	switch rule.Condition {
	case domain.ConditionAbove:
		return price.LessThan(rule.TargetPrice.Sub(buffer))
	case domain.ConditionBelow:
		return price.GreaterThan(rule.TargetPrice.Add(buffer))
	default:
		return false
	}
}

func quoteCurrency(q domain.Quote) string {
	if q.Currency == "" {
		return DefaultCurrency
	}
	return q.Currency
}
