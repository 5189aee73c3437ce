// Package present translates filtered records into the views the dashboard
// shows: a table, a monthly chart and downloadable exports.
package present

import "insight/internal/core"

// DisplayDateLayout is the date format used by the table view.
const DisplayDateLayout = "2006-01-02"

// Row maps a canonical column name to its display value.
type Row map[string]string

// Table renders one Row per record in input order. Money columns use the
// two-decimal display format; absent amounts become empty cells.
func Table(records []core.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, Row{
			core.ColumnDate:       r.Date.Format(DisplayDateLayout),
			core.ColumnDepartment: r.Department,
			core.ColumnProduct:    r.Product,
			core.ColumnSales:      r.Sales.Money(),
			core.ColumnCOGS:       r.COGS.Money(),
			core.ColumnProfit:     r.Profit.Money(),
		})
	}
	return rows
}
