package usecase

import (
	"context"
	"errors"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCondition = errors.New("invalid condition")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrAlertNotFound    = errors.New("alert not found")
)

// AlertUsecase is what the chat front end calls.
type AlertUsecase struct {
	store    *AlertStore
	resolver *Resolver
}

func NewAlertUsecase(store *AlertStore, resolver *Resolver) *AlertUsecase {
	return &AlertUsecase{store: store, resolver: resolver}
}

func (u *AlertUsecase) AddAlert(ctx context.Context, userID int64, symbol, condition string, target decimal.Decimal) (domain.AddResult, error) {
	if _, err := domain.ParseCondition(condition); err != nil {
		return domain.AddResult{}, errors.Join(ErrInvalidCondition, err)
	}
	if !target.IsPositive() {
		return domain.AddResult{}, errors.Join(ErrInvalidThreshold, domain.ErrInvalidArgument)
	}
	if _, err := domain.ValidateSymbol(symbol); err != nil {
		return domain.AddResult{}, errors.Join(ErrInvalidSymbol, err)
	}
	return u.store.Add(ctx, userID, symbol, target, condition)
}

func (u *AlertUsecase) RemoveAlert(ctx context.Context, userID int64, alertID string) error {
	removed, err := u.store.Remove(ctx, userID, alertID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrAlertNotFound
	}
	return nil
}

func (u *AlertUsecase) ListAlerts(userID int64) []domain.AlertRule {
	return u.store.List(userID)
}

func (u *AlertUsecase) ClearAll(ctx context.Context, userID int64) (int, error) {
	return u.store.ClearAll(ctx, userID)
}

func (u *AlertUsecase) ClearBySymbol(ctx context.Context, userID int64, symbol string) (int, error) {
	if _, err := domain.ValidateSymbol(symbol); err != nil {
		return 0, errors.Join(ErrInvalidSymbol, err)
	}
	return u.store.ClearBySymbol(ctx, userID, symbol)
}

func (u *AlertUsecase) EnableAlert(ctx context.Context, userID int64, alertID string) error {
	return u.setEnabled(ctx, userID, alertID, true)
}

func (u *AlertUsecase) DisableAlert(ctx context.Context, userID int64, alertID string) error {
	return u.setEnabled(ctx, userID, alertID, false)
}

func (u *AlertUsecase) setEnabled(ctx context.Context, userID int64, alertID string, enabled bool) error {
	if err := u.store.SetEnabled(ctx, userID, alertID, enabled); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrAlertNotFound
		}
		return err
	}
	return nil
}

// ResolvePrice answers an on-demand price query through the same provider
// chain the cycle uses.
func (u *AlertUsecase) ResolvePrice(ctx context.Context, symbol string) (domain.Quote, error) {
	canonical, err := domain.ValidateSymbol(symbol)
	if err != nil {
		return domain.Quote{}, errors.Join(ErrInvalidSymbol, err)
	}
	return u.resolver.Resolve(ctx, canonical), nil
}

// ResolvePrices resolves each distinct symbol on its own. It does not wait
// for a cycle batch that is already running.
func (u *AlertUsecase) ResolvePrices(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	canonical := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		s, err := domain.ValidateSymbol(symbol)
		if err != nil {
			return nil, errors.Join(ErrInvalidSymbol, err)
		}
		canonical = append(canonical, s)
	}

	quotes := make(map[string]domain.Quote, len(canonical))
	for _, symbol := range lo.Uniq(canonical) {
		if err := ctx.Err(); err != nil {
			return quotes, err
		}
		quotes[symbol] = u.resolver.Resolve(ctx, symbol)
	}
	return quotes, nil
}
