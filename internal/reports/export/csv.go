package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVOptions configures csv output
type CSVOptions struct {
	Delimiter rune
	UseCRLF   bool
	NullValue string
}

func DefaultCSVOptions() CSVOptions {
	return CSVOptions{Delimiter: ','}
}

// CSVExporter renders tables as csv. When a table has several sections each
// block is preceded by a row holding the section name.
type CSVExporter struct {
	options CSVOptions
}

func NewCSVExporter(options CSVOptions) *CSVExporter {
	return &CSVExporter{options: options}
}

func (e *CSVExporter) Export(w io.Writer, table *Table) error {
	writer := csv.NewWriter(w)
	writer.Comma = e.options.Delimiter
	writer.UseCRLF = e.options.UseCRLF

	for _, section := range table.Sections {
		if len(table.Sections) > 1 {
			if err := writer.Write([]string{section.Name}); err != nil {
				return fmt.Errorf("failed to write section name: %w", err)
			}
		}
		if err := writer.Write(section.labels()); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}

		keys := section.keys()
		for _, row := range section.Rows {
			record := make([]string, len(keys))
			for i, key := range keys {
				record[i] = e.formatValue(row[key])
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func (e *CSVExporter) formatValue(val interface{}) string {
	switch v := cellValue(val).(type) {
	case string:
		if v == "" {
			return e.options.NullValue
		}
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
