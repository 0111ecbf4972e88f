package notifier

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
)

// Dispatcher delivers expiration notices. Delivery and backoff belong to the
// implementation; callers only hand over the recipient and item descriptors.
type Dispatcher interface {
	SendExpireNotification(ctx context.Context, chatID int64, items []string) error
}

type TelegramDispatcher struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramDispatcher(token string) (*TelegramDispatcher, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramDispatcher{bot: bot}, nil
}

func (d *TelegramDispatcher) SendExpireNotification(ctx context.Context, chatID int64, items []string) error {
	message := "Next items have been expired:\n" + strings.Join(items, ", ")
	_, err := d.bot.Send(tgbotapi.NewMessage(chatID, message))
	return err
}

// CheckExpiration recomputes the expired flag on all order items and fans
// the newly expired ones out to every subscriber. Runs as its own scheduled
// job, independent of reconciliation.
func CheckExpiration(ctx context.Context, dispatcher Dispatcher, today time.Time) {
	logger := config.GetLogger()

	newlyExpired, err := models.RefreshExpiration(ctx, today)
	if err != nil {
		config.LogError(logger, "notifier", "CheckExpiration", "refresh expiration", nil, err)
		return
	}
	if len(newlyExpired) == 0 || dispatcher == nil {
		return
	}

	descriptors := make([]string, 0, len(newlyExpired))
	for _, item := range newlyExpired {
		descriptors = append(descriptors, item.Describe())
	}

	subscriptions, err := models.GetSubscriptions(ctx)
	if err != nil {
		config.LogError(logger, "notifier", "CheckExpiration", "load subscriptions", nil, err)
		return
	}
	chatIDs := make([]int64, 0, len(subscriptions))
	for _, sub := range subscriptions {
		chatIDs = append(chatIDs, sub.ChatID)
	}

	notifySubscribers(ctx, dispatcher, chatIDs, descriptors)
}

// notifySubscribers delivers sequentially; one failed recipient must not
// stop the rest.
func notifySubscribers(ctx context.Context, dispatcher Dispatcher, chatIDs []int64, descriptors []string) {
	logger := config.GetLogger()
	for _, chatID := range chatIDs {
		if err := dispatcher.SendExpireNotification(ctx, chatID, descriptors); err != nil {
			config.LogError(logger, "notifier", "notifySubscribers", "notify subscriber", chatID, err)
		}
	}
}
