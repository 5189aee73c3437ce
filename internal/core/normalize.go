package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DateLayout is the month/day/year format of the Date column. Month and day
// may be one or two digits; the year must have four.
const DateLayout = "1/2/2006"

// Normalize turns the header and data rows of a source into Records sorted by
// date. Rows with equal dates keep their source order.
//
// Zero rows fail with ErrEmptySource, a header lacking a canonical column
// fails with ErrMissingColumn and any unparseable date fails the whole build
// with a *DateError. Measure cells that hold no numeral become absent amounts.
// Rows with no non-blank cell are skipped.
func Normalize(rows []RawRow) ([]Record, error) {
	if len(rows) == 0 {
		return nil, ErrEmptySource
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	var missing []string
	for _, c := range Columns() {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		cell := func(name string) string {
			if j := index[name]; j < len(row) {
				return row[j]
			}
			return ""
		}

		raw := cell(ColumnDate)
		date, err := time.Parse(DateLayout, raw)
		if err != nil {
			return nil, &DateError{Row: i + 2, Value: raw}
		}

		records = append(records, Record{
			Date:       date,
			Department: strings.TrimSpace(cell(ColumnDepartment)),
			Product:    strings.TrimSpace(cell(ColumnProduct)),
			Sales:      ParseAmount(cell(ColumnSales)),
			COGS:       ParseAmount(cell(ColumnCOGS)),
			Profit:     ParseAmount(cell(ColumnProfit)),
		})
	}

	slices.SortStableFunc(records, func(a, b Record) int {
		return a.Date.Compare(b.Date)
	})
	return records, nil
}

func isBlank(row RawRow) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
