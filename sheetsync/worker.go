package sheetsync

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const UsdCurrencyCode = "USD"

type RateSource interface {
	Rate(ctx context.Context, currency string) (float64, bool)
}

type SheetSource interface {
	PageSource
	ModifiedTime(ctx context.Context, spreadsheetID string) (string, error)
}

type OrderStore interface {
	All(ctx context.Context) ([]models.OrderItem, error)
	DeleteAbsent(ctx context.Context, presentIDs []int64) error
	UpdateBatch(ctx context.Context, items []*models.OrderItem) error
	CreateBatch(ctx context.Context, items []*models.OrderItem) error
	RebaseCostRub(ctx context.Context, rate float64) error
}

type Ledger interface {
	Begin(ctx context.Context) (*models.UpdateExecution, error)
	AddError(ctx context.Context, exec *models.UpdateExecution, description string, details string, fatal bool) error
	SetRate(ctx context.Context, exec *models.UpdateExecution, rate float64) error
	SetMarker(ctx context.Context, exec *models.UpdateExecution, marker string) error
	LastSuccessful(ctx context.Context, excludeID uint) (*models.UpdateExecution, error)
}

// Engine reconciles persisted order items against the source spreadsheet.
// Every tick starts fresh: a failed transition ends the tick with a fatal
// ledger entry and the next trigger retries from scratch.
type Engine struct {
	Store  OrderStore
	Ledger Ledger
	Rates  RateSource
	// Connect validates credentials and returns a ready source client.
	// ok=false means credentials are missing or invalid.
	Connect func(ctx context.Context) (SheetSource, bool)

	SpreadsheetID string
	SheetName     string
	FirstRow      int64
	PageSize      int64
	// CheckModifiedTime enables the cheap-path skip when the document's
	// change marker matches the last successful run.
	CheckModifiedTime bool

	Logger *logrus.Logger
}

// ProcessTick runs one reconciliation attempt. All outcomes, including
// per-row parse problems, land on the execution ledger; nothing is returned
// because the scheduler has no use for it.
func (e *Engine) ProcessTick(ctx context.Context) {
	exec, err := e.Ledger.Begin(ctx)
	if err != nil {
		config.LogError(e.Logger, "sheetsync", "ProcessTick", "begin execution", nil, err)
		return
	}

	rate, ok := e.Rates.Rate(ctx, UsdCurrencyCode)
	if !ok {
		e.recordError(ctx, exec, "USD exchange rate cannot be retrieved", "", true)
		return
	}
	if err := e.Ledger.SetRate(ctx, exec, rate); err != nil {
		e.recordError(ctx, exec, "Execution record cannot be updated", err.Error(), true)
		return
	}

	source, ok := e.Connect(ctx)
	if !ok {
		e.recordError(ctx, exec, "Google API credentials are missing or not valid", "", true)
		return
	}

	previous, err := e.Ledger.LastSuccessful(ctx, exec.ID)
	if err != nil {
		e.recordError(ctx, exec, "Previous execution cannot be loaded", err.Error(), true)
		return
	}
	var previousMarker *string
	var previousRate *float64
	if previous != nil {
		previousMarker = previous.DocumentTimestamp
		previousRate = previous.UsdExchangeRate
	}
	rateChanged := previousRate == nil || *previousRate != rate

	if e.CheckModifiedTime {
		marker, err := source.ModifiedTime(ctx, e.SpreadsheetID)
		if err != nil {
			// A marker-check transport failure ends the tick instead of
			// silently falling through to a full sync.
			e.recordError(ctx, exec, "A critical error occurred during retrieving the document modification time", err.Error(), true)
			return
		}
		if err := e.Ledger.SetMarker(ctx, exec, marker); err != nil {
			e.recordError(ctx, exec, "Execution record cannot be updated", err.Error(), true)
			return
		}

		if previousMarker != nil && *previousMarker == marker {
			// Document unchanged: at most the derived ruble costs need a
			// rebase with the fresh rate.
			if rateChanged {
				if err := e.Store.RebaseCostRub(ctx, rate); err != nil {
					e.recordError(ctx, exec, "Ruble costs cannot be rebased", err.Error(), true)
				}
			}
			return
		}
	}

	records, rowErrors, err := ReadSheetData(ctx, source, e.SpreadsheetID, e.SheetName, e.FirstRow, e.PageSize)
	if err != nil {
		e.recordError(ctx, exec, "A critical error occurred during the processing of the document", err.Error(), true)
		return
	}

	if err := e.fullSync(ctx, records, rate, rateChanged); err != nil {
		e.recordError(ctx, exec, "A critical error occurred during updating the database", err.Error(), true)
		return
	}

	// Row-level problems are expected; they degrade the status to
	// partly_fail without undoing the applied writes.
	for _, rowErr := range rowErrors {
		e.recordError(ctx, exec, rowErr.Description, rowErr.Details, false)
	}
}

// fullSync applies deletions, updates and creations in that order, matching
// persisted rows against the source mapping by external ID.
func (e *Engine) fullSync(ctx context.Context, records map[int64]OrderRecord, rate float64, rateChanged bool) error {
	presentIDs := make([]int64, 0, len(records))
	for id := range records {
		presentIDs = append(presentIDs, id)
	}
	if err := e.Store.DeleteAbsent(ctx, presentIDs); err != nil {
		return err
	}

	existing, err := e.Store.All(ctx)
	if err != nil {
		return err
	}

	rateDecimal := decimal.NewFromFloat(rate)
	var toUpdate []*models.OrderItem
	for i := range existing {
		item := existing[i]
		record, found := records[item.ID]
		if !found {
			continue
		}
		delete(records, item.ID)

		changed := item.OrderNumber != record.OrderNumber ||
			!item.CostUsd.Equal(record.CostUsd) ||
			!sameDate(item.DeliveryDate, record.DeliveryDate)
		if !changed && !rateChanged {
			continue
		}

		item.OrderNumber = record.OrderNumber
		item.CostUsd = record.CostUsd
		item.CostRub = record.CostUsd.Mul(rateDecimal).Round(2)
		item.DeliveryDate = record.DeliveryDate
		toUpdate = append(toUpdate, &item)
	}
	if err := e.Store.UpdateBatch(ctx, toUpdate); err != nil {
		return err
	}

	remainingIDs := make([]int64, 0, len(records))
	for id := range records {
		remainingIDs = append(remainingIDs, id)
	}
	sort.Slice(remainingIDs, func(i, j int) bool { return remainingIDs[i] < remainingIDs[j] })

	toCreate := make([]*models.OrderItem, 0, len(remainingIDs))
	for _, id := range remainingIDs {
		record := records[id]
		toCreate = append(toCreate, &models.OrderItem{
			ID:           id,
			OrderNumber:  record.OrderNumber,
			CostUsd:      record.CostUsd,
			CostRub:      record.CostUsd.Mul(rateDecimal).Round(2),
			DeliveryDate: record.DeliveryDate,
		})
	}
	return e.Store.CreateBatch(ctx, toCreate)
}

func (e *Engine) recordError(ctx context.Context, exec *models.UpdateExecution, description string, details string, fatal bool) {
	if err := e.Ledger.AddError(ctx, exec, description, details, fatal); err != nil {
		config.LogError(e.Logger, "sheetsync", "recordError", description, nil, err)
	}
}

func sameDate(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
