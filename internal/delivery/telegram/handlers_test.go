package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/NasaVasa/stockwatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu        sync.Mutex
	messages  []tgbotapi.MessageConfig
	edits     []tgbotapi.EditMessageTextConfig
	callbacks []tgbotapi.CallbackConfig
	err       error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	switch msg := c.(type) {
	case tgbotapi.MessageConfig:
		s.messages = append(s.messages, msg)
	case tgbotapi.EditMessageTextConfig:
		s.edits = append(s.edits, msg)
	}
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if callback, ok := c.(tgbotapi.CallbackConfig); ok {
		s.callbacks = append(s.callbacks, callback)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages)
	return s.messages[len(s.messages)-1]
}

type nopRepo struct{}

func (nopRepo) Load(context.Context) (domain.WatchlistSnapshot, error) {
	return domain.WatchlistSnapshot{}, nil
}

func (nopRepo) Save(context.Context, domain.WatchlistSnapshot) error { return nil }

type switchableRepo struct {
	nopRepo
	failing atomic.Bool
}

func (r *switchableRepo) Save(context.Context, domain.WatchlistSnapshot) error {
	if r.failing.Load() {
		return errors.New("disk full")
	}
	return nil
}

type fixedProvider map[string]string

func (fixedProvider) Name() string { return "fixed" }

func (p fixedProvider) Fetch(_ context.Context, symbol string) (domain.ProviderPrice, error) {
	price, ok := p[symbol]
	if !ok {
		return domain.ProviderPrice{}, domain.NewProviderError("fixed", domain.FailureNoData, errors.New("no data"))
	}
	return domain.ProviderPrice{Price: decimal.RequireFromString(price), Currency: domain.MarketOf(symbol).Currency()}, nil
}

func newTestHandlers() (*Handlers, *fakeSender) {
	return newTestHandlersWithRepo(nopRepo{})
}

func newTestHandlersWithRepo(repo domain.SnapshotRepository) (*Handlers, *fakeSender) {
	logger := zap.NewNop()
	store := usecase.NewAlertStore(repo, logger)
	resolver := usecase.NewResolver([]usecase.ChainEntry{
		{Provider: fixedProvider{"AAPL": "190.1", "2330.TW": "598"}},
	}, usecase.ResolverConfig{}, logger, nil)
	sender := &fakeSender{}
	return NewHandlers(usecase.NewAlertUsecase(store, resolver), sender, logger), sender
}

func TestHandlers_AddListRemove(t *testing.T) {
	h, sender := newTestHandlers()
	ctx := context.Background()

	h.handleCommand(ctx, 10, 1, "add", "2330 above 600")
	reply := sender.last(t)
	assert.Equal(t, int64(10), reply.ChatID)
	assert.Contains(t, reply.Text, "Alert created")
	assert.Contains(t, reply.Text, "2330.TW above NT$ 600.00")

	h.handleCommand(ctx, 10, 1, "add", "2330 above 600")
	assert.Contains(t, sender.last(t).Text, "already exists")

	h.handleCommand(ctx, 10, 1, "list", "")
	list := sender.last(t).Text
	assert.Contains(t, list, "Your alerts (1)")

	id := list[strings.Index(list, "ID: ")+4:]
	id = strings.TrimSpace(id)

	h.handleCommand(ctx, 11, 2, "remove", id)
	assert.Equal(t, "Alert not found.", sender.last(t).Text)

	h.handleCommand(ctx, 10, 1, "remove", strings.ToLower(id))
	assert.Contains(t, sender.last(t).Text, "removed")

	h.handleCommand(ctx, 10, 1, "list", "")
	assert.Contains(t, sender.last(t).Text, "No alerts yet")
}

func TestHandlers_AddValidation(t *testing.T) {
	h, sender := newTestHandlers()
	ctx := context.Background()

	h.handleCommand(ctx, 10, 1, "add", "AAPL")
	assert.Contains(t, sender.last(t).Text, "Usage: /add")

	h.handleCommand(ctx, 10, 1, "add", "AAPL sideways 10")
	assert.Contains(t, sender.last(t).Text, "Invalid condition")

	h.handleCommand(ctx, 10, 1, "add", "AAPL above -1")
	assert.Contains(t, sender.last(t).Text, "Invalid price")

	h.handleCommand(ctx, 10, 1, "add", "AA*PL above 10")
	assert.Contains(t, sender.last(t).Text, "Invalid symbol")
}

func TestHandlers_Clear(t *testing.T) {
	h, sender := newTestHandlers()
	ctx := context.Background()

	h.handleCommand(ctx, 10, 1, "add", "AAPL above 200")
	h.handleCommand(ctx, 10, 1, "add", "AAPL below 150")
	h.handleCommand(ctx, 10, 1, "add", "2330 above 600")

	h.handleCommand(ctx, 10, 1, "clear", "aapl")
	assert.Equal(t, "Removed 2 alert(s).", sender.last(t).Text)

	h.handleCommand(ctx, 10, 1, "clear", "")
	assert.Equal(t, "Removed 1 alert(s).", sender.last(t).Text)

	h.handleCommand(ctx, 10, 1, "clear", "")
	assert.Equal(t, "Nothing to clear.", sender.last(t).Text)
}

func TestHandlers_ClearWarnsWhenNotSaved(t *testing.T) {
	repo := &switchableRepo{}
	h, sender := newTestHandlersWithRepo(repo)
	ctx := context.Background()

	h.handleCommand(ctx, 10, 1, "add", "AAPL above 200")
	h.handleCommand(ctx, 10, 1, "add", "AAPL below 150")
	repo.failing.Store(true)

	h.handleCommand(ctx, 10, 1, "clear", "AAPL")
	text := sender.last(t).Text
	assert.True(t, strings.HasPrefix(text, "Removed 2 alert(s)."), text)
	assert.Contains(t, text, "could not be saved to disk yet")
	assert.Empty(t, h.alertUC.ListAlerts(1))
}

func removeButtonUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: userID},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 77,
			Chat:      &tgbotapi.Chat{ID: userID},
			Text:      "Price alert: AAPL",
		},
	}}
}

func TestHandlers_RemoveButton(t *testing.T) {
	h, sender := newTestHandlers()
	ctx := context.Background()

	h.handleCommand(ctx, 1, 1, "add", "AAPL above 200")
	rules := h.alertUC.ListAlerts(1)
	require.Len(t, rules, 1)

	h.HandleUpdate(ctx, removeButtonUpdate(1, removeAlertCallback+rules[0].ID))

	assert.Empty(t, h.alertUC.ListAlerts(1))
	require.Len(t, sender.callbacks, 1)
	assert.Equal(t, "cb-1", sender.callbacks[0].CallbackQueryID)
	assert.Equal(t, "Alert removed.", sender.callbacks[0].Text)
	require.Len(t, sender.edits, 1)
	assert.Equal(t, int64(1), sender.edits[0].ChatID)
	assert.Equal(t, 77, sender.edits[0].MessageID)
	assert.Equal(t, "Price alert: AAPL\n\nAlert removed.", sender.edits[0].Text)
}

func TestHandlers_RemoveButtonForeignAlert(t *testing.T) {
	h, sender := newTestHandlers()
	ctx := context.Background()

	h.handleCommand(ctx, 1, 1, "add", "AAPL above 200")
	rules := h.alertUC.ListAlerts(1)
	require.Len(t, rules, 1)

	h.HandleUpdate(ctx, removeButtonUpdate(2, removeAlertCallback+rules[0].ID))

	assert.Len(t, h.alertUC.ListAlerts(1), 1)
	require.Len(t, sender.callbacks, 1)
	assert.Equal(t, "Alert not found.", sender.callbacks[0].Text)
	assert.Empty(t, sender.edits)

	h.HandleUpdate(ctx, removeButtonUpdate(1, "buy_more:"+rules[0].ID))
	assert.Len(t, h.alertUC.ListAlerts(1), 1)
	require.Len(t, sender.callbacks, 2)
	assert.Equal(t, "Unknown action.", sender.callbacks[1].Text)
}

func TestHandlers_Price(t *testing.T) {
	h, sender := newTestHandlers()
	ctx := context.Background()

	h.handleCommand(ctx, 10, 1, "price", "2330")
	assert.Equal(t, "2330.TW: NT$ 598.00 (via fixed)", sender.last(t).Text)

	h.handleCommand(ctx, 10, 1, "price", "aapl ZZZZ aapl")
	text := sender.last(t).Text
	assert.Contains(t, text, "AAPL: $ 190.10 (via fixed)")
	assert.Contains(t, text, "ZZZZ: unavailable")
	assert.Equal(t, 1, strings.Count(text, "AAPL:"))

	h.handleCommand(ctx, 10, 1, "price", "")
	assert.Contains(t, sender.last(t).Text, "Usage: /price")
}

func TestHandlers_EnableDisable(t *testing.T) {
	h, sender := newTestHandlers()
	ctx := context.Background()

	h.handleCommand(ctx, 10, 1, "add", "AAPL above 200")
	rules := h.alertUC.ListAlerts(1)
	require.Len(t, rules, 1)

	h.handleCommand(ctx, 10, 1, "disable", rules[0].ID)
	assert.Contains(t, sender.last(t).Text, "disabled")
	assert.Empty(t, h.alertUC.ListAlerts(1))

	h.handleCommand(ctx, 10, 1, "enable", rules[0].ID)
	assert.Contains(t, sender.last(t).Text, "enabled")
	assert.Len(t, h.alertUC.ListAlerts(1), 1)
}

func TestHandlers_UnknownCommand(t *testing.T) {
	h, sender := newTestHandlers()
	h.handleCommand(context.Background(), 10, 1, "sell", "")
	assert.Contains(t, sender.last(t).Text, "Unknown command")
}

func TestNotifier_Deliver(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewNotifier(sender, zap.NewNop())
	alert := domain.TriggeredAlert{
		Rule:         domain.AlertRule{ID: "01J", UserID: 42, Symbol: "AAPL", TargetPrice: decimal.NewFromInt(150), Condition: domain.ConditionAbove},
		CurrentPrice: decimal.NewFromInt(155),
		Currency:     "USD",
	}

	require.NoError(t, notifier.Deliver(context.Background(), 42, alert))
	msg := sender.last(t)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "Current: $ 155.00")
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 1)
	require.NotNil(t, keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "remove_alert:01J", *keyboard.InlineKeyboard[0][0].CallbackData)

	sender.err = errors.New("Forbidden: bot was blocked by the user")
	assert.Error(t, notifier.Deliver(context.Background(), 42, alert))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, notifier.Deliver(ctx, 42, alert), context.Canceled)
}
