package models

import (
	"context"

	"github.com/mmdatafocus/orders_backend/config"
	"gorm.io/gorm/clause"
)

// Subscription is one chat subscribed to expiration notifications.
type Subscription struct {
	ID     uint  `gorm:"primaryKey" json:"id"`
	ChatID int64 `gorm:"uniqueIndex;not null" json:"chat_id"`
}

// SubscribeChat is an upsert: subscribing twice is a no-op.
func SubscribeChat(ctx context.Context, chatID int64) error {
	db := config.GetDB()
	sub := Subscription{ChatID: chatID}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&sub).Error
}

func UnsubscribeChat(ctx context.Context, chatID int64) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&Subscription{}).Error
}

func GetSubscriptions(ctx context.Context) ([]*Subscription, error) {
	db := config.GetDB()
	var results []*Subscription
	err := db.WithContext(ctx).Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
