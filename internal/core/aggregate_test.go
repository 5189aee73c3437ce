package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(d time.Time, dept, prod, sales, cogs, profit string) Record {
	return Record{
		Date:       d,
		Department: dept,
		Product:    prod,
		Sales:      ParseAmount(sales),
		COGS:       ParseAmount(cogs),
		Profit:     ParseAmount(profit),
	}
}

func TestAggregateMonthly(t *testing.T) {
	records := []Record{
		rec(date(2021, time.January, 5), "Retail", "Widget", "100", "40", "60"),
		rec(date(2021, time.January, 20), "Retail", "Gadget", "50", "20", "30"),
	}

	buckets := AggregateMonthly(records)
	require.Len(t, buckets, 1)
	assert.True(t, buckets[0].Period.Equal(date(2021, time.January, 1)))
	assert.True(t, buckets[0].Sales.Equal(dec("150")))
	assert.True(t, buckets[0].COGS.Equal(dec("60")))
	assert.True(t, buckets[0].Profit.Equal(dec("90")))
	assert.Equal(t, 2, buckets[0].Records)

	records = append(records, rec(date(2021, time.February, 1), "Retail", "Widget", "7", "", ""))
	buckets = AggregateMonthly(records)
	require.Len(t, buckets, 2)
	assert.True(t, buckets[0].Sales.Equal(dec("150")), "january must not change")
	assert.True(t, buckets[1].Period.Equal(date(2021, time.February, 1)))
	assert.True(t, buckets[1].Sales.Equal(dec("7")))
}

func TestAggregateMonthly_AbsentCountsAsZero(t *testing.T) {
	buckets := AggregateMonthly([]Record{
		rec(date(2021, time.March, 3), "Retail", "Widget", "-", "", "N/A"),
		rec(date(2021, time.March, 4), "Retail", "Widget", "(10)", "", "5"),
	})
	require.Len(t, buckets, 1)
	assert.True(t, buckets[0].Sales.Equal(dec("-10")))
	assert.True(t, buckets[0].COGS.IsZero())
	assert.True(t, buckets[0].Profit.Equal(dec("5")))
}

func TestAggregateMonthly_OrderAndGaps(t *testing.T) {
	// Input is deliberately unsorted and spans a year boundary with a gap.
	buckets := AggregateMonthly([]Record{
		rec(date(2022, time.February, 1), "A", "x", "1", "", ""),
		rec(date(2021, time.November, 30), "A", "x", "2", "", ""),
		rec(date(2022, time.February, 28), "A", "x", "3", "", ""),
	})
	require.Len(t, buckets, 2)
	assert.True(t, buckets[0].Period.Equal(date(2021, time.November, 1)))
	assert.True(t, buckets[1].Period.Equal(date(2022, time.February, 1)))
	assert.True(t, buckets[1].Sales.Equal(dec("4")))
}

func TestAggregateMonthly_Empty(t *testing.T) {
	buckets := AggregateMonthly(nil)
	assert.NotNil(t, buckets)
	assert.Empty(t, buckets)
}
