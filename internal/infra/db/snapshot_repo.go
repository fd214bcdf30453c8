package db

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRepository stores the watchlist as two tables and rewrites both in
// one transaction on every save.
type SnapshotRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewSnapshotRepository(db *gorm.DB, logger *zap.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// Load skips rows that cannot be decoded rather than failing the whole load.
func (r *SnapshotRepository) Load(ctx context.Context) (domain.WatchlistSnapshot, error) {
	var models []ruleModel
	if err := r.db.WithContext(ctx).Order("position").Find(&models).Error; err != nil {
		return domain.WatchlistSnapshot{}, err
	}

	snapshot := domain.WatchlistSnapshot{Rules: make([]domain.AlertRule, 0, len(models))}
	for _, model := range models {
		rule, err := mapRuleToDomain(model)
		if err != nil {
			r.logger.Warn("skipping unreadable rule row", zap.String("rule_id", model.ID), zap.Error(err))
			continue
		}
		snapshot.Rules = append(snapshot.Rules, rule)
	}

	var meta metaModel
	err := r.db.WithContext(ctx).Where("name = ?", lastCheckKey).First(&meta).Error
	switch {
	case err == nil:
		if t, perr := time.Parse(time.RFC3339Nano, meta.Value); perr == nil {
			snapshot.LastCheck = &t
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return domain.WatchlistSnapshot{}, err
	}

	return snapshot, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot domain.WatchlistSnapshot) error {
	models := make([]ruleModel, 0, len(snapshot.Rules))
	for i, rule := range snapshot.Rules {
		models = append(models, mapRuleToModel(rule, i))
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ruleModel{}).Error; err != nil {
			return err
		}
		if len(models) > 0 {
			if err := tx.CreateInBatches(&models, 200).Error; err != nil {
				return err
			}
		}
		if snapshot.LastCheck == nil {
			return nil
		}
		meta := metaModel{Name: lastCheckKey, Value: snapshot.LastCheck.UTC().Format(time.RFC3339Nano)}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&meta).Error
	})
}

func mapRuleToDomain(model ruleModel) (domain.AlertRule, error) {
	target, err := decimal.NewFromString(model.TargetPrice)
	if err != nil {
		return domain.AlertRule{}, err
	}
	rule := domain.AlertRule{
		ID:             model.ID,
		UserID:         model.UserID,
		Symbol:         model.Symbol,
		TargetPrice:    target,
		Condition:      domain.Condition(model.Condition),
		Enabled:        model.Enabled,
		Notified:       model.Notified,
		LastNotifiedAt: model.LastNotifiedAt,
		CreatedAt:      model.CreatedAt,
	}
	if err := rule.Validate(); err != nil {
		return domain.AlertRule{}, err
	}
	return rule, nil
}

func mapRuleToModel(rule domain.AlertRule, position int) ruleModel {
	return ruleModel{
		ID:             rule.ID,
		Position:       position,
		UserID:         rule.UserID,
		Symbol:         rule.Symbol,
		TargetPrice:    rule.TargetPrice.String(),
		Condition:      string(rule.Condition),
		Enabled:        rule.Enabled,
		Notified:       rule.Notified,
		LastNotifiedAt: rule.LastNotifiedAt,
		CreatedAt:      rule.CreatedAt,
	}
}
