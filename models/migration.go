package models

import (
	"log"

	"github.com/mmdatafocus/orders_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&OrderItem{},
		&UpdateExecution{}, &UpdateExecutionError{},
		&Subscription{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
