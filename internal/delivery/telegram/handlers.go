package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/NasaVasa/stockwatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// removeAlertCallback prefixes the callback data of the button attached to
// triggered-alert messages.
const removeAlertCallback = "remove_alert:"

type Handlers struct {
	alertUC *usecase.AlertUsecase
	sender  Sender
	logger  *zap.Logger
}

func NewHandlers(alertUC *usecase.AlertUsecase, sender Sender, logger *zap.Logger) *Handlers {
	return &Handlers{alertUC: alertUC, sender: sender, logger: logger}
}

func (h *Handlers) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		h.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil {
		return
	}
	if update.Message.From == nil {
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, update.Message.Chat.ID, update.Message.From.ID, update.Message.Command(), update.Message.CommandArguments())
		return
	}
}

func (h *Handlers) handleCommand(ctx context.Context, chatID, userID int64, command, args string) {
	h.logger.Info(
		"telegram command received",
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.String("command", command),
		zap.String("args", args),
	)

	switch command {
	case "start", "help":
		h.reply(chatID, "Stock price alerts.\n\n"+HelpText)
	case "add":
		parsed, err := ParseAddArgs(args)
		if err != nil {
			h.reply(chatID, "Usage: /add <symbol> <above|below> <price>")
			return
		}
		result, err := h.alertUC.AddAlert(ctx, userID, parsed.Symbol, parsed.Condition, parsed.Target)
		if err != nil {
			h.logger.Warn("add failed", zap.Int64("user_id", userID), zap.Error(err))
			if result.Status == 0 {
				h.reply(chatID, h.alertErrorMessage(err))
				return
			}
		}
		if result.Status == domain.AddStatusDuplicate {
			h.reply(chatID, "This alert already exists, nothing added.\n"+formatRule(result.Rule))
			return
		}
		h.logger.Info("add complete", zap.Int64("user_id", userID), zap.String("rule_id", result.Rule.ID))
		reply := "Alert created:\n" + formatRule(result.Rule)
		if err != nil {
			reply += "\n\nWarning: the alert could not be saved to disk yet and will be retried."
		}
		h.reply(chatID, reply)
	case "list":
		rules := h.alertUC.ListAlerts(userID)
		if len(rules) == 0 {
			h.reply(chatID, "No alerts yet. Use /add to create one.")
			return
		}
		var builder strings.Builder
		builder.WriteString(fmt.Sprintf("Your alerts (%d):\n", len(rules)))
		for i, rule := range rules {
			builder.WriteString(fmt.Sprintf("\n%d) %s\n", i+1, formatRule(rule)))
		}
		h.reply(chatID, builder.String())
	case "remove", "delete":
		alertID, err := ParseAlertID(args)
		if err != nil {
			h.reply(chatID, "Usage: /remove <alert_id>")
			return
		}
		if err := h.alertUC.RemoveAlert(ctx, userID, alertID); err != nil {
			h.logger.Warn("remove failed", zap.Int64("user_id", userID), zap.String("rule_id", alertID), zap.Error(err))
			h.reply(chatID, h.alertErrorMessage(err))
			return
		}
		h.reply(chatID, fmt.Sprintf("Alert %s removed.", alertID))
	case "clear":
		symbol, err := ParseOptionalSymbol(args)
		if err != nil {
			h.reply(chatID, "Usage: /clear [symbol]")
			return
		}
		var count int
		if symbol == "" {
			count, err = h.alertUC.ClearAll(ctx, userID)
		} else {
			count, err = h.alertUC.ClearBySymbol(ctx, userID, symbol)
		}
		if err != nil && count == 0 {
			h.logger.Warn("clear failed", zap.Int64("user_id", userID), zap.Error(err))
			h.reply(chatID, h.alertErrorMessage(err))
			return
		}
		if count == 0 {
			h.reply(chatID, "Nothing to clear.")
			return
		}
		reply := fmt.Sprintf("Removed %d alert(s).", count)
		if err != nil {
			h.logger.Warn("clear not saved", zap.Int64("user_id", userID), zap.Int("count", count), zap.Error(err))
			reply += "\n\nWarning: the removal could not be saved to disk yet and will be retried."
		}
		h.reply(chatID, reply)
	case "price":
		symbols, err := ParseSymbols(args)
		if err != nil {
			h.reply(chatID, fmt.Sprintf("Usage: /price <symbol> [symbol...] (up to %d)", maxPriceSymbols))
			return
		}
		h.replyPrices(ctx, chatID, symbols)
	case "enable", "disable":
		alertID, err := ParseAlertID(args)
		if err != nil {
			h.reply(chatID, fmt.Sprintf("Usage: /%s <alert_id>", command))
			return
		}
		if command == "enable" {
			err = h.alertUC.EnableAlert(ctx, userID, alertID)
		} else {
			err = h.alertUC.DisableAlert(ctx, userID, alertID)
		}
		if err != nil {
			h.logger.Warn(command+" failed", zap.Int64("user_id", userID), zap.String("rule_id", alertID), zap.Error(err))
			h.reply(chatID, h.alertErrorMessage(err))
			return
		}
		h.reply(chatID, fmt.Sprintf("Alert %s %sd.", alertID, command))
	default:
		h.logger.Warn("unknown command", zap.Int64("user_id", userID), zap.String("command", command))
		h.reply(chatID, "Unknown command.\n\n"+HelpText)
	}
}

// handleCallback serves the remove button under a triggered alert. Only the
// owner of the rule can remove it.
func (h *Handlers) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}
	userID := query.From.ID
	h.logger.Info("telegram callback received", zap.Int64("user_id", userID), zap.String("data", query.Data))

	data, ok := strings.CutPrefix(query.Data, removeAlertCallback)
	if !ok {
		h.answer(query.ID, "Unknown action.")
		return
	}
	alertID, err := ParseAlertID(data)
	if err != nil {
		h.answer(query.ID, "Unknown action.")
		return
	}

	err = h.alertUC.RemoveAlert(ctx, userID, alertID)
	if err != nil && !errors.Is(err, domain.ErrPersistence) {
		h.logger.Warn("remove failed", zap.Int64("user_id", userID), zap.String("rule_id", alertID), zap.Error(err))
		h.answer(query.ID, h.alertErrorMessage(err))
		return
	}
	status := "Alert removed."
	if err != nil {
		status = "Alert removed, but it could not be saved to disk yet."
	}
	h.answer(query.ID, status)

	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, query.Message.Text+"\n\n"+status)
	if _, err := h.sender.Send(edit); err != nil {
		h.logger.Warn("failed to edit message", zap.Int64("chat_id", query.Message.Chat.ID), zap.Error(err))
	}
}

func (h *Handlers) replyPrices(ctx context.Context, chatID int64, symbols []string) {
	if len(symbols) == 1 {
		quote, err := h.alertUC.ResolvePrice(ctx, symbols[0])
		if err != nil {
			h.reply(chatID, h.alertErrorMessage(err))
			return
		}
		h.reply(chatID, formatQuote(quote))
		return
	}

	quotes, err := h.alertUC.ResolvePrices(ctx, symbols)
	if err != nil {
		h.reply(chatID, h.alertErrorMessage(err))
		return
	}
	var builder strings.Builder
	seen := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		canonical := domain.CanonicalSymbol(symbol)
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		builder.WriteString(formatQuote(quotes[canonical]))
		builder.WriteString("\n")
	}
	h.reply(chatID, builder.String())
}

func (h *Handlers) alertErrorMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrInvalidCondition):
		return "Invalid condition. Use above or below."
	case errors.Is(err, usecase.ErrInvalidThreshold):
		return "Invalid price. Use a positive number like 150.5."
	case errors.Is(err, usecase.ErrInvalidSymbol):
		return "Invalid symbol. Use letters, digits and dots, e.g. AAPL or 2330."
	case errors.Is(err, usecase.ErrAlertNotFound):
		return "Alert not found."
	case errors.Is(err, domain.ErrPersistence):
		return "Your change is active but could not be saved yet. Please try again later."
	}

	h.logger.Warn("unhandled error", zap.Error(err))
	return "Something went wrong. Please try again."
}

func (h *Handlers) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.sender.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handlers) answer(queryID, text string) {
	if _, err := h.sender.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		h.logger.Warn("failed to answer callback", zap.String("callback_id", queryID), zap.Error(err))
	}
}

func removeAlertKeyboard(alertID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Remove this alert", removeAlertCallback+alertID),
		),
	)
}
