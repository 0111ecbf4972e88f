package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. partitionByExpiry carries the
// sweep's boundary rule; RefreshExpiration only persists its result.

func sweepItem(id int64, due time.Time, expired bool) OrderItem {
	return OrderItem{
		ID:           id,
		OrderNumber:  uint(id),
		CostUsd:      decimal.RequireFromString("10.00"),
		CostRub:      decimal.RequireFromString("900.00"),
		DeliveryDate: due,
		Expired:      expired,
	}
}

func TestPartitionByExpiry_BoundaryIsStrictlyBeforeToday(t *testing.T) {
	today := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	items := []OrderItem{
		sweepItem(1, yesterday, false), // overdue, must expire
		sweepItem(2, today, false),     // due today, must stay current
		sweepItem(3, tomorrow, false),  // future, must stay current
		sweepItem(4, today, true),      // due today, must un-expire
		sweepItem(5, tomorrow, true),   // rescheduled, must un-expire
		sweepItem(6, yesterday, true),  // overdue and already flagged
	}

	newlyExpired, unexpireIDs := partitionByExpiry(items, today)

	if len(newlyExpired) != 1 || newlyExpired[0].ID != 1 {
		t.Fatalf("expected only item 1 to expire, got %+v", newlyExpired)
	}
	if len(unexpireIDs) != 2 || unexpireIDs[0] != 4 || unexpireIDs[1] != 5 {
		t.Fatalf("expected items 4 and 5 to un-expire, got %v", unexpireIDs)
	}
}

func TestPartitionByExpiry_TimeOfDayIsIgnored(t *testing.T) {
	today := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	dueEarlierSameDay := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	newlyExpired, unexpireIDs := partitionByExpiry(
		[]OrderItem{sweepItem(1, dueEarlierSameDay, false)}, today)

	if len(newlyExpired) != 0 || len(unexpireIDs) != 0 {
		t.Fatalf("same-day item must not be touched, got expired=%v unexpire=%v",
			newlyExpired, unexpireIDs)
	}
}

func TestPartitionByExpiry_RepeatedSweepIsIdempotent(t *testing.T) {
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	items := []OrderItem{
		sweepItem(1, today.AddDate(0, 0, -2), false),
		sweepItem(2, today, false),
		sweepItem(3, today.AddDate(0, 0, 3), true),
	}

	newlyExpired, unexpireIDs := partitionByExpiry(items, today)
	if len(newlyExpired) == 0 && len(unexpireIDs) == 0 {
		t.Fatal("expected the first sweep to flip something")
	}

	// Apply the flips the way RefreshExpiration persists them.
	flipped := map[int64]bool{}
	for _, item := range newlyExpired {
		flipped[item.ID] = true
	}
	unexpire := map[int64]bool{}
	for _, id := range unexpireIDs {
		unexpire[id] = true
	}
	for i := range items {
		if flipped[items[i].ID] {
			items[i].Expired = true
		}
		if unexpire[items[i].ID] {
			items[i].Expired = false
		}
	}

	newlyExpired, unexpireIDs = partitionByExpiry(items, today)
	if len(newlyExpired) != 0 || len(unexpireIDs) != 0 {
		t.Fatalf("second sweep with the same date must be a no-op, got expired=%v unexpire=%v",
			newlyExpired, unexpireIDs)
	}
}
