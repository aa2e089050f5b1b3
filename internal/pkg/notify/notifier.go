package notify

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2/log"

	"tribute-gateway/internal/pkg/env"
)

// MessageSender is the slice of the Telegram bot API the notifier needs.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier delivers user-facing and admin-facing messages through the
// Telegram Bot API. Delivery is best-effort: callers log returned errors and
// move on, a failed notification never affects committed payment state.
type TelegramNotifier struct {
	bot          MessageSender
	adminChatIDs []int64
}

func NewTelegramNotifier(bot MessageSender, adminChatIDs []int64) *TelegramNotifier {
	return &TelegramNotifier{
		bot:          bot,
		adminChatIDs: adminChatIDs,
	}
}

// NewTelegramNotifierFromEnv connects the bot and reads the admin chat list
// from ADMIN_CHAT_ID (comma-separated chat ids).
func NewTelegramNotifierFromEnv() (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(env.GetEnv("BOT_TOKEN", ""))
	if err != nil {
		return nil, err
	}
	return NewTelegramNotifier(bot, AdminChatIDsFromEnv()), nil
}

// AdminChatIDsFromEnv parses the comma-separated ADMIN_CHAT_ID value.
func AdminChatIDsFromEnv() []int64 {
	var ids []int64
	for _, part := range strings.Split(env.GetEnv("ADMIN_CHAT_ID", ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warnf("notify: ignoring invalid admin chat id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// NotifyPaymentSuccess sends the payment confirmation to the paying user.
func (n *TelegramNotifier) NotifyPaymentSuccess(ctx context.Context, notice PaymentNotice) error {
	_ = ctx
	msg := tgbotapi.NewMessage(notice.User.TelegramID, ComposePaymentMessage(notice))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := n.bot.Send(msg)
	return err
}

// NotifyAdmins sends the payment summary to every configured admin chat.
// Delivery continues past individual failures; the first error is returned.
func (n *TelegramNotifier) NotifyAdmins(ctx context.Context, notice PaymentNotice) error {
	_ = ctx
	text := ComposeAdminSummary(notice)

	var firstErr error
	for _, chatID := range n.adminChatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.bot.Send(msg); err != nil {
			log.Errorf("notify: admin message to chat %d failed: %v", chatID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SendNotConnectedReminder nudges a user who activated but never connected a
// device.
func (n *TelegramNotifier) SendNotConnectedReminder(ctx context.Context, userID int64, connectURL string) error {
	_ = ctx
	msg := tgbotapi.NewMessage(userID, ComposeNotConnectedReminder(connectURL))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := n.bot.Send(msg)
	return err
}
