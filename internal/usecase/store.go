package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlertStore owns the alert rules. Every mutation is written through to the
// snapshot repository before the call returns.
type AlertStore struct {
	repo   domain.SnapshotRepository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu        sync.Mutex
	rules     []domain.AlertRule
	lastCheck *time.Time
	dirty     bool
}

type StoreOption func(*AlertStore)

func WithClock(now func() time.Time) StoreOption {
	return func(s *AlertStore) { s.now = now }
}

func WithIDGenerator(newID func() string) StoreOption {
	return func(s *AlertStore) { s.newID = newID }
}

func NewAlertStore(repo domain.SnapshotRepository, logger *zap.Logger, opts ...StoreOption) *AlertStore {
	s := &AlertStore{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  domain.NewRuleID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory rules with the persisted snapshot. A missing or
// unreadable snapshot leaves the store empty.
func (s *AlertStore) Load(ctx context.Context) {
	snapshot, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("watchlist snapshot unreadable, starting empty", zap.Error(err))
		snapshot = domain.WatchlistSnapshot{}
	}

	valid := make([]domain.AlertRule, 0, len(snapshot.Rules))
	for _, rule := range snapshot.Rules {
		if err := rule.Validate(); err != nil {
			s.logger.Warn("dropping invalid rule from snapshot", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		valid = append(valid, rule.Clone())
	}

	s.mu.Lock()
	s.rules = valid
	s.lastCheck = snapshot.LastCheck
	s.dirty = false
	s.mu.Unlock()

	s.logger.Info("watchlist loaded", zap.Int("rules", len(valid)))
}

func (s *AlertStore) Add(ctx context.Context, userID int64, symbol string, target decimal.Decimal, condition string) (domain.AddResult, error) {
	rule, err := domain.NewAlertRule(s.newID(), userID, symbol, target, condition, s.now())
	if err != nil {
		return domain.AddResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rules {
		if existing.SameTarget(rule.UserID, rule.Symbol, rule.TargetPrice, rule.Condition) {
			s.logger.Info("duplicate alert ignored",
				zap.Int64("user_id", userID),
				zap.String("symbol", rule.Symbol),
				zap.String("rule_id", existing.ID),
			)
			result := domain.AddResult{Status: domain.AddStatusDuplicate, Rule: existing.Clone()}
			if s.dirty {
				return result, s.persistLocked(ctx)
			}
			return result, nil
		}
	}

	s.rules = append(s.rules, rule)
	s.logger.Info("alert added",
		zap.Int64("user_id", userID),
		zap.String("symbol", rule.Symbol),
		zap.String("condition", string(rule.Condition)),
		zap.String("target", rule.TargetPrice.String()),
		zap.String("rule_id", rule.ID),
	)
	return domain.AddResult{Status: domain.AddStatusCreated, Rule: rule.Clone()}, s.persistLocked(ctx)
}

// Remove deletes a rule owned by userID. Rules of other users are never touched.
func (s *AlertStore) Remove(ctx context.Context, userID int64, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := lo.Reject(s.rules, func(rule domain.AlertRule, _ int) bool {
		return rule.ID == id && rule.UserID == userID
	})
	if len(kept) == len(s.rules) {
		s.logger.Warn("alert not found or not owned", zap.Int64("user_id", userID), zap.String("rule_id", id))
		return false, nil
	}
	s.rules = kept
	s.logger.Info("alert removed", zap.Int64("user_id", userID), zap.String("rule_id", id))
	return true, s.persistLocked(ctx)
}

// List returns the enabled rules owned by userID in insertion order.
func (s *AlertStore) List(userID int64) []domain.AlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := lo.Filter(s.rules, func(rule domain.AlertRule, _ int) bool {
		return rule.UserID == userID && rule.Enabled
	})
	return lo.Map(owned, func(rule domain.AlertRule, _ int) domain.AlertRule { return rule.Clone() })
}

// DistinctSymbols returns every symbol referenced by an enabled rule, once.
func (s *AlertStore) DistinctSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabled := lo.Filter(s.rules, func(rule domain.AlertRule, _ int) bool { return rule.Enabled })
	return lo.Uniq(lo.Map(enabled, func(rule domain.AlertRule, _ int) string { return rule.Symbol }))
}

func (s *AlertStore) ClearAll(ctx context.Context, userID int64) (int, error) {
	return s.removeWhere(ctx, func(rule domain.AlertRule) bool {
		return rule.UserID == userID
	})
}

func (s *AlertStore) ClearBySymbol(ctx context.Context, userID int64, symbol string) (int, error) {
	canonical := domain.CanonicalSymbol(symbol)
	return s.removeWhere(ctx, func(rule domain.AlertRule) bool {
		return rule.UserID == userID && rule.Symbol == canonical
	})
}

func (s *AlertStore) removeWhere(ctx context.Context, match func(domain.AlertRule) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := lo.Reject(s.rules, func(rule domain.AlertRule, _ int) bool { return match(rule) })
	removed := len(s.rules) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	s.rules = kept
	s.logger.Info("alerts cleared", zap.Int("count", removed))
	return removed, s.persistLocked(ctx)
}

// Mutate applies fn to the rule with the given id. fn reports whether it
// changed the rule; the snapshot is written only when it did. ID, owner and
// symbol are restored if fn touches them.
func (s *AlertStore) Mutate(ctx context.Context, id string, fn func(rule *domain.AlertRule) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID != id {
			continue
		}
		if !s.mutateLocked(i, fn) {
			return false, nil
		}
		return true, s.persistLocked(ctx)
	}
	return false, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
}

// Apply runs fn against every enabled rule under one lock and writes a single
// snapshot if any rule changed, or if an earlier write failed and is still
// pending. It returns the number of changed rules.
func (s *AlertStore) Apply(ctx context.Context, fn func(rule *domain.AlertRule) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.rules {
		if !s.rules[i].Enabled {
			continue
		}
		if s.mutateLocked(i, fn) {
			changed++
		}
	}
	if changed == 0 && !s.dirty {
		return 0, nil
	}
	return changed, s.persistLocked(ctx)
}

func (s *AlertStore) SetEnabled(ctx context.Context, userID int64, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID != id || s.rules[i].UserID != userID {
			continue
		}
		if s.rules[i].Enabled == enabled {
			return nil
		}
		s.rules[i].Enabled = enabled
		s.logger.Info("alert enabled state changed", zap.String("rule_id", id), zap.Bool("enabled", enabled))
		return s.persistLocked(ctx)
	}
	return fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
}

func (s *AlertStore) Get(id string) (domain.AlertRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := lo.Find(s.rules, func(rule domain.AlertRule) bool { return rule.ID == id })
	return rule.Clone(), ok
}

// LastCheck is the time of the last successful snapshot write, nil if none.
func (s *AlertStore) LastCheck() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCheck == nil {
		return nil
	}
	t := *s.lastCheck
	return &t
}

func (s *AlertStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

// Flush writes the current state unconditionally. Used on shutdown.
func (s *AlertStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *AlertStore) mutateLocked(i int, fn func(rule *domain.AlertRule) bool) bool {
	original := s.rules[i]
	working := original.Clone()
	if !fn(&working) {
		return false
	}
	working.ID = original.ID
	working.UserID = original.UserID
	working.Symbol = original.Symbol
	working.CreatedAt = original.CreatedAt
	s.rules[i] = working
	return true
}

// persistLocked must be called with mu held.
func (s *AlertStore) persistLocked(ctx context.Context) error {
	now := s.now()
	snapshot := domain.WatchlistSnapshot{
		Rules:     lo.Map(s.rules, func(rule domain.AlertRule, _ int) domain.AlertRule { return rule.Clone() }),
		LastCheck: &now,
	}
	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.dirty = true
		s.logger.Error("watchlist snapshot write failed", zap.Int("rules", len(snapshot.Rules)), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.dirty = false
	s.lastCheck = &now
	return nil
}
