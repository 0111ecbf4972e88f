package sheetsync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PageSource interface {
	ReadPage(ctx context.Context, spreadsheetID string, sheetName string, first int64, count int64) ([][]interface{}, error)
}

// ReadSheetData paginates through the sheet in fixed-size row windows until
// an empty page and parses each row into an OrderRecord. Per-row failures
// are collected and the row skipped; only transport errors from the source
// abort the read. A duplicate ID yields an error entry and the later
// occurrence wins.
func ReadSheetData(ctx context.Context, src PageSource, spreadsheetID string, sheetName string, firstRow int64, pageSize int64) (map[int64]OrderRecord, []RowError, error) {
	records := map[int64]OrderRecord{}
	var rowErrors []RowError

	for first := firstRow; ; first += pageSize {
		rows, err := src.ReadPage(ctx, spreadsheetID, sheetName, first, pageSize)
		if err != nil {
			return nil, nil, err
		}
		if len(rows) == 0 {
			break
		}

		for i, row := range rows {
			id, record, parseErr := parseRow(row)
			if parseErr != nil {
				rowErrors = append(rowErrors, RowError{
					Description: fmt.Sprintf("Row %d cannot be parsed", first+int64(i)),
					Details:     parseErr.Error(),
				})
				continue
			}
			if _, seen := records[id]; seen {
				rowErrors = append(rowErrors, RowError{
					Description: fmt.Sprintf("ID %d occurs more than once", id),
				})
			}
			records[id] = record
		}
	}

	return records, rowErrors, nil
}

func parseRow(row []interface{}) (int64, OrderRecord, error) {
	if len(row) < columnCount {
		return 0, OrderRecord{}, fmt.Errorf("expected %d columns, got %d", columnCount, len(row))
	}

	id, err := strconv.ParseInt(cellText(row[colID]), 10, 64)
	if err != nil {
		return 0, OrderRecord{}, fmt.Errorf("id column: %w", err)
	}

	orderNumber, err := strconv.ParseUint(cellText(row[colOrderNumber]), 10, 32)
	if err != nil {
		return 0, OrderRecord{}, fmt.Errorf("order number column: %w", err)
	}

	costUsd, err := decimal.NewFromString(cellText(row[colCostUsd]))
	if err != nil {
		return 0, OrderRecord{}, fmt.Errorf("cost column: %w", err)
	}

	deliveryDate, err := time.Parse(deliveryDateLayout, cellText(row[colDeliveryDate]))
	if err != nil {
		return 0, OrderRecord{}, fmt.Errorf("delivery date column: %w", err)
	}

	return id, OrderRecord{
		OrderNumber:  uint(orderNumber),
		CostUsd:      costUsd.Round(2),
		DeliveryDate: deliveryDate,
	}, nil
}

func cellText(cell interface{}) string {
	if s, ok := cell.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(cell))
}
