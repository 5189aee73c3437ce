package present

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"insight/internal/core"
)

// ExportDateLayout is the date format written to exports. It matches the
// layout the normalizer reads, so an export can be fed back in as a source.
const ExportDateLayout = "01/02/2006"

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Export is a rendered file ready to be sent as a download.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportFilename joins "Sales" with the active filter values by hyphens and
// appends ext, e.g. "Sales-Retail-Widget.csv". Unset values are omitted.
func ExportFilename(spec core.FilterSpec, ext string) string {
	parts := []string{"Sales"}
	if spec.Department != "" {
		parts = append(parts, spec.Department)
	}
	if spec.Product != "" {
		parts = append(parts, spec.Product)
	}
	return strings.Join(parts, "-") + "." + ext
}

// WriteCSV writes the header and one line per record in canonical column
// order. Fields are quoted only where the CSV format requires it.
func WriteCSV(w io.Writer, records []core.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(core.Columns()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		line := []string{
			r.Date.Format(ExportDateLayout),
			r.Department,
			r.Product,
			r.Sales.String(),
			r.COGS.String(),
			r.Profit.String(),
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// CSV renders records as a CSV download named after spec.
func CSV(records []core.Record, spec core.FilterSpec) (Export, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return Export{}, err
	}
	return Export{
		Filename:    ExportFilename(spec, "csv"),
		ContentType: ContentTypeCSV,
		Body:        buf.Bytes(),
	}, nil
}
