package export

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Format identifies an export file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
)

// ParseFormat resolves a user-supplied format name. An empty name means csv.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", name)
	}
}

// ContentType returns the MIME type served for the format
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Extension returns the file extension, without the dot
func (f Format) Extension() string {
	return string(f)
}

// Column describes one exported column
type Column struct {
	Key   string
	Label string
}

// Section is one titled table of a report. Xlsx renders each section on its
// own sheet; pdf and csv render them one after another.
type Section struct {
	Name    string
	Columns []Column
	Rows    []map[string]interface{}
}

// SummaryItem is a labelled figure printed above the tables
type SummaryItem struct {
	Label string
	Value interface{}
}

// Table is a renderable report
type Table struct {
	Title       string
	GeneratedAt time.Time
	Summary     []SummaryItem
	Sections    []Section
}

func (s Section) keys() []string {
	keys := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		keys[i] = c.Key
	}
	return keys
}

func (s Section) labels() []string {
	labels := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		labels[i] = c.Label
		if labels[i] == "" {
			labels[i] = c.Key
		}
	}
	return labels
}

// Render writes the table to w in the given format
func Render(w io.Writer, format Format, table *Table) error {
	switch format {
	case FormatXLSX:
		return NewExcelExporter(DefaultExcelOptions()).Export(w, table)
	case FormatPDF:
		return NewPDFGenerator(DefaultPDFOptions()).Export(w, table)
	case FormatCSV:
		return NewCSVExporter(DefaultCSVOptions()).Export(w, table)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
