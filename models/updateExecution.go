package models

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/utils"
	"gorm.io/gorm"
)

const (
	ExecutionStatusSuccess    = "success"
	ExecutionStatusPartlyFail = "partly_fail"
	ExecutionStatusFail       = "fail"
)

// UpdateExecution is one audit entry per reconciliation attempt. Rows are
// mutated only while the attempt is running and pruned by age afterwards.
type UpdateExecution struct {
	ID                uint                   `gorm:"primaryKey" json:"id"`
	Created           time.Time              `gorm:"autoCreateTime;index" json:"created"`
	Status            string                 `gorm:"size:20;not null;default:success" json:"status"`
	DocumentTimestamp *string                `gorm:"size:64" json:"document_timestamp"`
	UsdExchangeRate   *float64               `json:"usd_exchange_rate"`
	Errors            []UpdateExecutionError `gorm:"foreignKey:ExecutionId;constraint:OnDelete:CASCADE" json:"errors,omitempty"`
}

type UpdateExecutionError struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExecutionId      uint      `gorm:"index;not null" json:"execution_id"`
	ShortDescription string    `gorm:"size:255;not null" json:"short_description"`
	Details          string    `gorm:"type:text" json:"details"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NextExecutionStatus applies the monotonic severity rule
// success < partly_fail < fail: a fatal error pins the status at fail, a
// non-fatal error only escalates success to partly_fail.
func NextExecutionStatus(current string, fatal bool) string {
	if fatal {
		return ExecutionStatusFail
	}
	if current == ExecutionStatusSuccess {
		return ExecutionStatusPartlyFail
	}
	return current
}

// ExecutionLedger is the GORM-backed audit log used by the reconciliation
// engine.
type ExecutionLedger struct{}

func (ExecutionLedger) Begin(ctx context.Context) (*UpdateExecution, error) {
	db := config.GetDB()
	exec := UpdateExecution{Status: ExecutionStatusSuccess}
	err := db.WithContext(ctx).Create(&exec).Error
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (ExecutionLedger) AddError(ctx context.Context, exec *UpdateExecution, description string, details string, fatal bool) error {
	db := config.GetDB().WithContext(ctx)

	description = truncateDescription(description, 255)
	entry := UpdateExecutionError{
		ExecutionId:      exec.ID,
		ShortDescription: description,
		Details:          details,
	}
	if err := db.Create(&entry).Error; err != nil {
		return err
	}

	next := NextExecutionStatus(exec.Status, fatal)
	if next == exec.Status {
		return nil
	}
	exec.Status = next
	return db.Model(exec).Update("status", next).Error
}

// truncateDescription bounds s to max bytes without splitting a UTF-8 rune.
func truncateDescription(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (ExecutionLedger) SetRate(ctx context.Context, exec *UpdateExecution, rate float64) error {
	db := config.GetDB()
	exec.UsdExchangeRate = &rate
	return db.WithContext(ctx).Model(exec).Update("usd_exchange_rate", rate).Error
}

func (ExecutionLedger) SetMarker(ctx context.Context, exec *UpdateExecution, marker string) error {
	db := config.GetDB()
	exec.DocumentTimestamp = &marker
	return db.WithContext(ctx).Model(exec).Update("document_timestamp", marker).Error
}

// LastSuccessful returns the newest execution that finished with status
// success, excluding the given in-flight execution. Returns (nil, nil) when
// no such execution exists yet.
func (ExecutionLedger) LastSuccessful(ctx context.Context, excludeID uint) (*UpdateExecution, error) {
	db := config.GetDB()
	var exec UpdateExecution
	err := db.WithContext(ctx).
		Where("status = ? AND id <> ?", ExecutionStatusSuccess, excludeID).
		Order("created DESC").
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// DeleteOldExecutions prunes executions older than maxAge. Error children go
// with their parent through the cascade constraint. Safe to call repeatedly.
func DeleteOldExecutions(ctx context.Context, maxAge time.Duration) error {
	db := config.GetDB()
	cutoff := time.Now().Add(-maxAge)
	return db.WithContext(ctx).
		Where("created < ?", cutoff).
		Delete(&UpdateExecution{}).Error
}

func GetUpdateExecutions(ctx context.Context, limit int) ([]*UpdateExecution, error) {
	db := config.GetDB()
	var results []*UpdateExecution
	query := db.WithContext(ctx).Order("created DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetUpdateExecution(ctx context.Context, id uint) (*UpdateExecution, error) {
	db := config.GetDB()
	var result UpdateExecution
	err := db.WithContext(ctx).Preload("Errors").First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}
