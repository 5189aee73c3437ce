package core

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// MonthStart returns the first day of t's month at UTC midnight.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// AggregateMonthly sums Sales, COGS and Profit per calendar month. Absent
// amounts count as zero. Buckets are returned in ascending period order and
// months without records are omitted.
func AggregateMonthly(records []Record) []Bucket {
	index := make(map[int]int)
	buckets := make([]Bucket, 0)
	for _, r := range records {
		key := r.Date.Year()*12 + int(r.Date.Month())
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{
				Period: MonthStart(r.Date),
				Sales:  decimal.Zero,
				COGS:   decimal.Zero,
				Profit: decimal.Zero,
			})
		}
		b := &buckets[i]
		b.Sales = b.Sales.Add(r.Sales.OrZero())
		b.COGS = b.COGS.Add(r.COGS.OrZero())
		b.Profit = b.Profit.Add(r.Profit.OrZero())
		b.Records++
	}

	slices.SortFunc(buckets, func(a, b Bucket) int {
		return a.Period.Compare(b.Period)
	})
	return buckets
}
