package telegram

import (
	"context"
	"sync"

	"github.com/NasaVasa/stockwatch/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of the Bot API the handlers and notifier use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	handlers    *Handlers
	pollTimeout int

	inflight sync.WaitGroup
}

func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api *tgbotapi.BotAPI, handlers *Handlers, pollTimeout int) *Bot {
	return &Bot{api: api, handlers: handlers, pollTimeout: pollTimeout}
}

// Start polls for updates until ctx is cancelled. Each update is handled on
// its own goroutine so a slow price query does not hold up other users.
func (b *Bot) Start(ctx context.Context) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(config)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.inflight.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.inflight.Wait()
				return nil
			}
			b.inflight.Add(1)
			go func() {
				defer b.inflight.Done()
				b.handlers.HandleUpdate(ctx, update)
			}()
		}
	}
}

// Notifier delivers triggered alerts as Telegram messages. The user id is the
// private chat id.
type Notifier struct {
	sender Sender
	logger *zap.Logger
}

func NewNotifier(sender Sender, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

func (n *Notifier) Deliver(ctx context.Context, userID int64, alert domain.TriggeredAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, FormatTriggeredAlert(alert))
	msg.ReplyMarkup = removeAlertKeyboard(alert.Rule.ID)
	n.logger.Info("telegram alert send", zap.Int64("user_id", userID), zap.String("rule_id", alert.Rule.ID))
	_, err := n.sender.Send(msg)
	if err != nil {
		n.logger.Warn("failed to deliver alert", zap.Int64("user_id", userID), zap.Error(err))
	}
	return err
}
