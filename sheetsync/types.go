package sheetsync

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source sheet row layout: [id, order_number, cost_usd, delivery_date].
const (
	colID = iota
	colOrderNumber
	colCostUsd
	colDeliveryDate
	columnCount
)

// Delivery dates arrive as dd.mm.yyyy text.
const deliveryDateLayout = "02.01.2006"

// OrderRecord is one parsed source row, keyed externally by its sheet ID.
type OrderRecord struct {
	OrderNumber  uint
	CostUsd      decimal.Decimal
	DeliveryDate time.Time
}

// RowError describes one source row that could not be used. Collecting these
// instead of failing lets a single malformed row never abort a read pass.
type RowError struct {
	Description string
	Details     string
}
