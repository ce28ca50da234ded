package notify

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of the bot API the notifier needs; the real
// client and test fakes both satisfy it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes strike and ban alerts to the facility
// managers' Telegram chats. Delivery is best effort: a failed send is
// logged and the remaining managers are still notified.
type TelegramNotifier struct {
	sender   Sender
	managers []int64
	logger   *zerolog.Logger
}

func NewTelegramNotifier(sender Sender, managers []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, managers: managers, logger: logger}
}

// NewBotAPI builds the underlying Telegram client.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (n *TelegramNotifier) NotifyStrike(userID, bookingID int64, activeStrikes int) error {
	message := fmt.Sprintf(`⚠️ No-show strike recorded:

👤 User ID: %d
🆔 Booking ID: %d
❗ Active strikes: %d`,
		userID, bookingID, activeStrikes)

	return n.broadcast(message)
}

func (n *TelegramNotifier) NotifyBan(userID int64, until time.Time) error {
	message := fmt.Sprintf(`🚫 User banned from booking:

👤 User ID: %d
📅 Banned until: %s`,
		userID, until.Format("02.01.2006 15:04"))

	return n.broadcast(message)
}

func (n *TelegramNotifier) broadcast(message string) error {
	if n.sender == nil {
		return nil
	}

	var lastErr error
	for _, managerID := range n.managers {
		msg := tgbotapi.NewMessage(managerID, message)
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("manager_id", managerID).Msg("failed to notify manager")
			lastErr = err
		}
	}
	return lastErr
}
