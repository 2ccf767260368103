package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelOptions configures workbook output
type ExcelOptions struct {
	SummarySheet string
	FreezeHeader bool
	AutoFilter   bool
	HeaderFill   string
	HeaderFont   string
	MinWidth     float64
	MaxWidth     float64
}

// DefaultExcelOptions returns the workbook layout used for market exports
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SummarySheet: "Summary",
		FreezeHeader: true,
		AutoFilter:   true,
		HeaderFill:   "2E7D32",
		HeaderFont:   "FFFFFF",
		MinWidth:     10,
		MaxWidth:     50,
	}
}

// ExcelExporter renders tables as xlsx workbooks, one sheet per section
type ExcelExporter struct {
	options ExcelOptions
}

func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	return &ExcelExporter{options: options}
}

// Export builds the workbook and writes it to w
func (e *ExcelExporter) Export(w io.Writer, table *Table) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", e.options.SummarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: e.options.HeaderFont},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := e.writeSummary(file, table); err != nil {
		return err
	}

	for _, section := range table.Sections {
		if _, err := file.NewSheet(section.Name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", section.Name, err)
		}
		if err := e.writeSection(file, section, headerStyle); err != nil {
			return err
		}
	}

	return file.Write(w)
}

func (e *ExcelExporter) writeSummary(file *excelize.File, table *Table) error {
	sheet := e.options.SummarySheet
	rows := [][]interface{}{
		{table.Title},
		{"Generated At", table.GeneratedAt.UTC().Format(time.RFC3339)},
	}
	for _, item := range table.Summary {
		rows = append(rows, []interface{}{item.Label, item.Value})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := file.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return file.SetColWidth(sheet, "A", "B", 28)
}

func (e *ExcelExporter) writeSection(file *excelize.File, section Section, headerStyle int) error {
	sheet := section.Name
	keys := section.keys()
	widths := make([]float64, len(keys))

	for i, label := range section.labels() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, label); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		widths[i] = float64(len(label)) * 1.2
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(keys), 1)
	if err := file.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for r, row := range section.Rows {
		for c, key := range keys {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			val := cellValue(row[key])
			if err := file.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
			if w := float64(len(fmt.Sprint(val))) * 1.2; w > widths[c] {
				widths[c] = w
			}
		}
	}

	if e.options.FreezeHeader {
		if err := file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}

	if e.options.AutoFilter && len(section.Rows) > 0 {
		if err := file.AutoFilter(sheet, "A1:"+lastHeader, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}

	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		width = max(e.options.MinWidth, min(width, e.options.MaxWidth))
		if err := file.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
	}
	return nil
}

func cellValue(val interface{}) interface{} {
	switch v := val.(type) {
	case nil:
		return ""
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.UTC().Format(time.RFC3339)
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return v.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
