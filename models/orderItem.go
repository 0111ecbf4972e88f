package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem mirrors one row of the tracked spreadsheet. The primary key is
// the external sheet ID, never auto-generated here.
type OrderItem struct {
	ID           int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OrderNumber  uint            `gorm:"not null" json:"order_number" binding:"required"`
	CostUsd      decimal.Decimal `gorm:"type:decimal(8,2);not null" json:"cost_usd"`
	CostRub      decimal.Decimal `gorm:"type:decimal(8,2);not null" json:"cost_rub"`
	DeliveryDate time.Time       `gorm:"type:date;index;not null" json:"delivery_date"`
	Expired      bool            `gorm:"default:false;index" json:"expired"`
}

func (oi OrderItem) Describe() string {
	return fmt.Sprintf("item %d (order %d, due %s)", oi.ID, oi.OrderNumber, oi.DeliveryDate.Format("02.01.2006"))
}

func GetOrderItems(ctx context.Context) ([]*OrderItem, error) {
	db := config.GetDB()
	var results []*OrderItem
	err := db.WithContext(ctx).Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// OrderItemStore is the GORM-backed persistence layer used by the
// reconciliation engine.
type OrderItemStore struct{}

func (OrderItemStore) All(ctx context.Context) ([]OrderItem, error) {
	db := config.GetDB()
	var results []OrderItem
	err := db.WithContext(ctx).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteAbsent removes every persisted item whose ID is not in presentIDs.
func (OrderItemStore) DeleteAbsent(ctx context.Context, presentIDs []int64) error {
	db := config.GetDB().WithContext(ctx)
	if len(presentIDs) == 0 {
		return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&OrderItem{}).Error
	}
	return db.Where("id NOT IN ?", presentIDs).Delete(&OrderItem{}).Error
}

func (OrderItemStore) UpdateBatch(ctx context.Context, items []*OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			err := tx.Model(&OrderItem{}).
				Where("id = ?", item.ID).
				Updates(map[string]interface{}{
					"order_number":  item.OrderNumber,
					"cost_usd":      item.CostUsd,
					"cost_rub":      item.CostRub,
					"delivery_date": item.DeliveryDate,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (OrderItemStore) CreateBatch(ctx context.Context, items []*OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	db := config.GetDB()
	return db.WithContext(ctx).CreateInBatches(items, 100).Error
}

// RebaseCostRub recomputes cost_rub from cost_usd with the given rate across
// all rows in one statement, leaving every other field untouched.
func (OrderItemStore) RebaseCostRub(ctx context.Context, rate float64) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&OrderItem{}).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Update("cost_rub", gorm.Expr("ROUND(cost_usd * ?, 2)", rate)).Error
}

// partitionByExpiry classifies items against today. Items dated strictly
// before today must carry the expired flag; items dated today or later must
// not. Only items whose flag disagrees with that rule are returned.
func partitionByExpiry(items []OrderItem, today time.Time) (newlyExpired []OrderItem, unexpireIDs []int64) {
	day := today.Format("2006-01-02")
	for _, item := range items {
		due := item.DeliveryDate.Format("2006-01-02")
		switch {
		case !item.Expired && due < day:
			newlyExpired = append(newlyExpired, item)
		case item.Expired && due >= day:
			unexpireIDs = append(unexpireIDs, item.ID)
		}
	}
	return newlyExpired, unexpireIDs
}

// RefreshExpiration flips the derived expired flag in both directions.
// Items with a delivery date strictly before today become expired and are
// returned; items rescheduled to today or later are un-expired silently.
// One batch write per direction.
func RefreshExpiration(ctx context.Context, today time.Time) ([]OrderItem, error) {
	db := config.GetDB().WithContext(ctx)

	var items []OrderItem
	if err := db.Find(&items).Error; err != nil {
		return nil, err
	}

	newlyExpired, unexpireIDs := partitionByExpiry(items, today)

	if len(newlyExpired) > 0 {
		ids := make([]int64, 0, len(newlyExpired))
		for _, item := range newlyExpired {
			ids = append(ids, item.ID)
		}
		err := db.Model(&OrderItem{}).Where("id IN ?", ids).Update("expired", true).Error
		if err != nil {
			return nil, err
		}
	}

	if len(unexpireIDs) > 0 {
		err := db.Model(&OrderItem{}).
			Where("id IN ?", unexpireIDs).
			Update("expired", false).Error
		if err != nil {
			return nil, err
		}
	}

	return newlyExpired, nil
}
