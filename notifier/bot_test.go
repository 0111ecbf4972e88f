package notifier

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestCommandHandlers_CoverExpectedCommands(t *testing.T) {
	handlers := commandHandlers()
	for _, command := range []string{"start", "subscribe", "unsubscribe"} {
		if _, ok := handlers[command]; !ok {
			t.Fatalf("missing handler for /%s", command)
		}
	}
	if len(handlers) != 3 {
		t.Fatalf("unexpected extra handlers: %d", len(handlers))
	}
}

func TestStartCommand_ListsAvailableCommands(t *testing.T) {
	reply, err := startCommand(context.Background(), &tgbotapi.Message{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, command := range []string{"/subscribe", "/unsubscribe"} {
		if !strings.Contains(reply, command) {
			t.Fatalf("expected reply to mention %s", command)
		}
	}
}
