package present

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"insight/internal/core"
)

// SheetName is the worksheet name used in XLSX exports.
const SheetName = "Sales"

// XLSX renders records as a single-sheet workbook with the same columns as
// the CSV export. Dates are real date cells and amounts are numbers with a
// #,##0.00 format; absent amounts stay empty.
func XLSX(records []core.Record, spec core.FilterSpec) (Export, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return Export{}, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E9ECEF"}, Pattern: 1},
	})
	if err != nil {
		return Export{}, fmt.Errorf("header style: %w", err)
	}
	dateFmt := "yyyy-mm-dd"
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return Export{}, fmt.Errorf("date style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return Export{}, fmt.Errorf("money style: %w", err)
	}

	header := make([]interface{}, 0, len(core.Columns()))
	for _, c := range core.Columns() {
		header = append(header, c)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return Export{}, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "F1", headerStyle); err != nil {
		return Export{}, fmt.Errorf("style header: %w", err)
	}

	for i, r := range records {
		row := i + 2
		values := []interface{}{r.Date, r.Department, r.Product, amountCell(r.Sales), amountCell(r.COGS), amountCell(r.Profit)}
		if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", row), &values); err != nil {
			return Export{}, fmt.Errorf("write row %d: %w", row, err)
		}
		if err := f.SetCellStyle(SheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), dateStyle); err != nil {
			return Export{}, fmt.Errorf("style row %d: %w", row, err)
		}
		if err := f.SetCellStyle(SheetName, fmt.Sprintf("D%d", row), fmt.Sprintf("F%d", row), moneyStyle); err != nil {
			return Export{}, fmt.Errorf("style row %d: %w", row, err)
		}
	}

	for _, w := range []struct {
		from, to string
		width    float64
	}{{"A", "A", 12}, {"B", "C", 18}, {"D", "F", 14}} {
		if err := f.SetColWidth(SheetName, w.from, w.to, w.width); err != nil {
			return Export{}, fmt.Errorf("width of columns %s-%s: %w", w.from, w.to, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Export{}, fmt.Errorf("write workbook: %w", err)
	}
	return Export{
		Filename:    ExportFilename(spec, "xlsx"),
		ContentType: ContentTypeXLSX,
		Body:        buf.Bytes(),
	}, nil
}

// amountCell returns nil for an absent amount so the cell stays empty.
// Spreadsheet cells hold float64, so amounts beyond its precision are
// rounded here. The CSV export keeps the exact decimal text.
func amountCell(a core.Amount) interface{} {
	d, ok := a.Value()
	if !ok {
		return nil
	}
	v, _ := d.Float64()
	return v
}
