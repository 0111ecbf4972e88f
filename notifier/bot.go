package notifier

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
)

const startReply = "You can use the next commands:\n" +
	"  /subscribe - to subscribe on notifications\n" +
	"  /unsubscribe - to unsubscribe from notifications"

type commandHandler func(ctx context.Context, msg *tgbotapi.Message) (string, error)

// commandHandlers is the dispatch table keyed by command name. Each entry is
// a pure function of the incoming message producing the reply text.
func commandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"start":       startCommand,
		"subscribe":   subscribeCommand,
		"unsubscribe": unsubscribeCommand,
	}
}

func startCommand(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	return startReply, nil
}

func subscribeCommand(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	if err := models.SubscribeChat(ctx, msg.Chat.ID); err != nil {
		return "", err
	}
	return "You've been subscribed!", nil
}

func unsubscribeCommand(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	if err := models.UnsubscribeChat(ctx, msg.Chat.ID); err != nil {
		return "", err
	}
	return "You've been unsubscribed!", nil
}

// RunBot long-polls Telegram and dispatches recognized commands. Each
// message is handled in its own goroutine; the subscription store is the
// only shared state.
func RunBot(ctx context.Context, token string) error {
	logger := config.GetLogger()

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return err
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := bot.GetUpdatesChan(updateConfig)
	handlers := commandHandlers()

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		case update, open := <-updates:
			if !open {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			handler, known := handlers[update.Message.Command()]
			if !known {
				continue
			}

			msg := update.Message
			go func() {
				reply, err := handler(ctx, msg)
				if err != nil {
					config.LogError(logger, "notifier", "RunBot", msg.Command(), msg.Chat.ID, err)
					return
				}
				if _, err := bot.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
					config.LogError(logger, "notifier", "RunBot", "send reply", msg.Chat.ID, err)
				}
			}()
		}
	}
}
