package notifier

import (
	"context"
	"errors"
	"testing"
)

type fakeDispatcher struct {
	failFor map[int64]bool
	sent    []int64
	items   []string
}

func (d *fakeDispatcher) SendExpireNotification(ctx context.Context, chatID int64, items []string) error {
	if d.failFor[chatID] {
		return errors.New("delivery failed")
	}
	d.sent = append(d.sent, chatID)
	d.items = items
	return nil
}

func TestNotifySubscribers_IsolatesPerRecipientFailures(t *testing.T) {
	dispatcher := &fakeDispatcher{failFor: map[int64]bool{20: true}}

	notifySubscribers(context.Background(), dispatcher, []int64{10, 20, 30}, []string{"item 1 (order 100, due 01.01.2024)"})

	if len(dispatcher.sent) != 2 {
		t.Fatalf("expected 2 deliveries despite one failure, got %d", len(dispatcher.sent))
	}
	if dispatcher.sent[0] != 10 || dispatcher.sent[1] != 30 {
		t.Fatalf("expected deliveries to 10 and 30, got %v", dispatcher.sent)
	}
}
