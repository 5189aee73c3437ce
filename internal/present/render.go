package present

import "insight/internal/core"

// Source is anything holding a record set to render, typically a dataset snapshot.
type Source interface {
	Records() []core.Record
}

// View is the result of one dashboard interaction.
type View struct {
	Filter  core.FilterSpec `json:"-"`
	Records []core.Record   `json:"-"`
	Table   []Row           `json:"table"`
	Chart   Chart           `json:"chart"`
}

// Render filters the source and builds the table and chart views. It keeps no
// state between calls and may run concurrently.
func Render(spec core.FilterSpec, src Source) View {
	records := core.Filter(src.Records(), spec)
	return View{
		Filter:  spec,
		Records: records,
		Table:   Table(records),
		Chart:   ChartView(records),
	}
}
