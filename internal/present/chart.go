package present

import (
	"github.com/shopspring/decimal"

	"insight/internal/core"
)

// ChartTitle is the title of the monthly trend chart.
const ChartTitle = "P&L Trend"

// PeriodLayout formats bucket labels.
const PeriodLayout = "2006-01"

// SeriesKind tells the front end how to draw a series.
type SeriesKind string

const (
	KindBar  SeriesKind = "bar"
	KindLine SeriesKind = "line"
)

// Series is one named sequence of monthly values aligned with Chart.Labels.
type Series struct {
	Name   string            `json:"name"`
	Kind   SeriesKind        `json:"kind"`
	Values []decimal.Decimal `json:"values"`
}

// Chart is the month-bucketed view: sales and COGS as bars, profit as a line.
type Chart struct {
	Title   string        `json:"title"`
	Labels  []string      `json:"labels"`
	Series  []Series      `json:"series"`
	Buckets []core.Bucket `json:"-"`
}

// ChartView aggregates records by month and lays the sums out as series.
func ChartView(records []core.Record) Chart {
	buckets := core.AggregateMonthly(records)

	labels := make([]string, len(buckets))
	sales := make([]decimal.Decimal, len(buckets))
	cogs := make([]decimal.Decimal, len(buckets))
	profit := make([]decimal.Decimal, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Period.Format(PeriodLayout)
		sales[i] = b.Sales
		cogs[i] = b.COGS
		profit[i] = b.Profit
	}

	return Chart{
		Title:  ChartTitle,
		Labels: labels,
		Series: []Series{
			{Name: core.ColumnSales, Kind: KindBar, Values: sales},
			{Name: core.ColumnCOGS, Kind: KindBar, Values: cogs},
			{Name: core.ColumnProfit, Kind: KindLine, Values: profit},
		},
		Buckets: buckets,
	}
}
