package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// ParseCondition accepts only the exact lower-case condition names.
func ParseCondition(input string) (Condition, error) {
	switch Condition(input) {
	case ConditionAbove:
		return ConditionAbove, nil
	case ConditionBelow:
		return ConditionBelow, nil
	default:
		return "", fmt.Errorf("%w: condition %q must be %q or %q", ErrInvalidArgument, input, ConditionAbove, ConditionBelow)
	}
}

func (c Condition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// AlertRule is a user's price threshold on one symbol. Notified is the
// notification gate: false means armed, true means suppressed.
type AlertRule struct {
	ID             string
	UserID         int64
	Symbol         string
	TargetPrice    decimal.Decimal
	Condition      Condition
	Enabled        bool
	Notified       bool
	LastNotifiedAt *time.Time
	CreatedAt      time.Time
}

// NewAlertRule validates the inputs and returns an armed, enabled rule with a
// canonical symbol.
func NewAlertRule(id string, userID int64, symbol string, target decimal.Decimal, condition string, now time.Time) (AlertRule, error) {
	cond, err := ParseCondition(condition)
	if err != nil {
		return AlertRule{}, err
	}
	if !target.IsPositive() {
		return AlertRule{}, fmt.Errorf("%w: target price must be positive, got %s", ErrInvalidArgument, target.String())
	}
	canonical, err := ValidateSymbol(symbol)
	if err != nil {
		return AlertRule{}, err
	}
	if strings.TrimSpace(id) == "" {
		return AlertRule{}, fmt.Errorf("%w: empty rule id", ErrInvalidArgument)
	}
	return AlertRule{
		ID:          id,
		UserID:      userID,
		Symbol:      canonical,
		TargetPrice: target,
		Condition:   cond,
		Enabled:     true,
		CreatedAt:   now,
	}, nil
}

// Validate checks the invariants of a rule that was not built by NewAlertRule,
// e.g. one read back from storage.
func (r AlertRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty rule id", ErrInvalidArgument)
	}
	if !r.Condition.Valid() {
		return fmt.Errorf("%w: condition %q", ErrInvalidArgument, r.Condition)
	}
	if !r.TargetPrice.IsPositive() {
		return fmt.Errorf("%w: target price %s", ErrInvalidArgument, r.TargetPrice.String())
	}
	canonical, err := ValidateSymbol(r.Symbol)
	if err != nil {
		return err
	}
	if canonical != r.Symbol {
		return fmt.Errorf("%w: symbol %q is not canonical", ErrInvalidArgument, r.Symbol)
	}
	return nil
}

// SameTarget reports whether two rules describe the same alert for the same
// user. Matching is exact.
func (r AlertRule) SameTarget(userID int64, symbol string, target decimal.Decimal, condition Condition) bool {
	return r.UserID == userID &&
		r.Symbol == symbol &&
		r.Condition == condition &&
		r.TargetPrice.Equal(target)
}

func (r AlertRule) Clone() AlertRule {
	out := r
	if r.LastNotifiedAt != nil {
		t := *r.LastNotifiedAt
		out.LastNotifiedAt = &t
	}
	return out
}

type AddStatus int

const (
	AddStatusCreated AddStatus = iota + 1
	AddStatusDuplicate
)

func (s AddStatus) String() string {
	switch s {
	case AddStatusCreated:
		return "created"
	case AddStatusDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// AddResult is the outcome of adding a rule. On AddStatusDuplicate, Rule is the
// rule that already existed.
type AddResult struct {
	Status AddStatus
	Rule   AlertRule
}

type TriggeredAlert struct {
	Rule         AlertRule
	CurrentPrice decimal.Decimal
	Currency     string
}

// WatchlistSnapshot is the durable form of the alert store.
type WatchlistSnapshot struct {
	Rules     []AlertRule
	LastCheck *time.Time
}
