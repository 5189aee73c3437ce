package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical column names of the financial sheet, in export order.
const (
	ColumnDate       = "Date"
	ColumnDepartment = "Department"
	ColumnProduct    = "Product"
	ColumnSales      = "Sales"
	ColumnCOGS       = "COGS"
	ColumnProfit     = "Profit"
)

// Columns returns the canonical column names in their fixed order.
func Columns() []string {
	return []string{ColumnDate, ColumnDepartment, ColumnProduct, ColumnSales, ColumnCOGS, ColumnProfit}
}

type (
	// RawRow is one row of untyped cells as returned by the data source.
	// The first row of a source is the header.
	RawRow []string

	// Record is one normalized line of financial activity.
	Record struct {
		Date       time.Time // date only, UTC midnight
		Department string
		Product    string
		Sales      Amount
		COGS       Amount
		Profit     Amount
	}

	// Bucket holds the measure sums for one calendar month.
	Bucket struct {
		Period  time.Time // first day of the month
		Sales   decimal.Decimal
		COGS    decimal.Decimal
		Profit  decimal.Decimal
		Records int
	}

	// FilterSpec constrains department and product. An empty value leaves
	// that field unconstrained.
	FilterSpec struct {
		Department string `json:"department,omitempty"`
		Product    string `json:"product,omitempty"`
	}
)

var (
	ErrEmptySource   = errors.New("no data found")
	ErrMalformedDate = errors.New("malformed date")
	ErrMissingColumn = errors.New("missing column")
)

// DateError reports a data row whose date cell does not match DateLayout.
type DateError struct {
	Row   int // 1-based sheet row, header included
	Value string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("row %d: date %q does not match MM/DD/YYYY", e.Row, e.Value)
}

func (e *DateError) Unwrap() error {
	return ErrMalformedDate
}

// IsZero reports whether the spec leaves both fields unconstrained.
func (f FilterSpec) IsZero() bool {
	return f.Department == "" && f.Product == ""
}

// Matches reports whether r satisfies every constrained field.
func (f FilterSpec) Matches(r Record) bool {
	if f.Department != "" && r.Department != f.Department {
		return false
	}
	if f.Product != "" && r.Product != f.Product {
		return false
	}
	return true
}
