package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFColor is an RGB triple
type PDFColor struct {
	R, G, B int
}

// PDFOptions configures the page layout of pdf exports
type PDFOptions struct {
	PageSize       string
	Landscape      bool
	FontFamily     string
	FontSize       float64
	TitleFontSize  float64
	HeaderColor    PDFColor
	AlternateColor PDFColor
	Margin         float64
}

// DefaultPDFOptions returns the layout used for market exports
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:       "A4",
		FontFamily:     "Arial",
		FontSize:       9,
		TitleFontSize:  16,
		HeaderColor:    PDFColor{R: 46, G: 125, B: 50},
		AlternateColor: PDFColor{R: 242, G: 242, B: 242},
		Margin:         15,
	}
}

// PDFGenerator renders tables as paginated pdf documents
type PDFGenerator struct {
	options PDFOptions
}

func NewPDFGenerator(options PDFOptions) *PDFGenerator {
	return &PDFGenerator{options: options}
}

// Export lays out the title, summary and every section, then writes the
// document to w
func (g *PDFGenerator) Export(w io.Writer, table *Table) error {
	orientation := "P"
	if g.options.Landscape {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", g.options.PageSize, "")
	pdf.SetMargins(g.options.Margin, g.options.Margin, g.options.Margin)
	pdf.SetAutoPageBreak(true, g.options.Margin)
	pdf.SetTitle(table.Title, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(g.options.FontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(g.options.FontFamily, "B", g.options.TitleFontSize)
	pdf.CellFormat(0, 10, table.Title, "", 1, "C", false, 0, "")
	pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, "Generated: "+table.GeneratedAt.UTC().Format(time.RFC3339), "", 1, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	if len(table.Summary) > 0 {
		pdf.Ln(4)
		for _, item := range table.Summary {
			pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
			pdf.CellFormat(60, 6, item.Label+":", "", 0, "L", false, 0, "")
			pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
			pdf.CellFormat(0, 6, formatText(item.Value), "", 1, "L", false, 0, "")
		}
	}

	for _, section := range table.Sections {
		pdf.Ln(8)
		pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize+3)
		pdf.CellFormat(0, 8, section.Name, "", 1, "L", false, 0, "")
		g.writeTable(pdf, section)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to lay out pdf: %w", err)
	}
	return pdf.Output(w)
}

func (g *PDFGenerator) writeTable(pdf *gofpdf.Fpdf, section Section) {
	keys := section.keys()
	labels := section.labels()
	widths := g.columnWidths(pdf, labels, keys, section.Rows)

	header := func() {
		pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
		pdf.SetFillColor(g.options.HeaderColor.R, g.options.HeaderColor.G, g.options.HeaderColor.B)
		pdf.SetTextColor(255, 255, 255)
		for i, label := range labels {
			pdf.CellFormat(widths[i], 7, label, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		pdf.SetTextColor(0, 0, 0)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	for i, row := range section.Rows {
		if pdf.GetY()+7 > pageHeight-g.options.Margin {
			pdf.AddPage()
			header()
		}
		if i%2 == 1 {
			pdf.SetFillColor(g.options.AlternateColor.R, g.options.AlternateColor.G, g.options.AlternateColor.B)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		for j, key := range keys {
			text := formatText(row[key])
			if maxChars := int(widths[j] / 1.8); maxChars > 3 && len(text) > maxChars {
				text = text[:maxChars-3] + "..."
			}
			pdf.CellFormat(widths[j], 6, text, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}
}

// columnWidths sizes columns to their widest sampled cell and scales the
// result down to the printable width
func (g *PDFGenerator) columnWidths(pdf *gofpdf.Fpdf, labels, keys []string, rows []map[string]interface{}) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	available := pageWidth - 2*g.options.Margin

	pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
	widths := make([]float64, len(keys))
	for i, label := range labels {
		widths[i] = pdf.GetStringWidth(label) + 4
	}

	pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	for _, row := range rows[:min(len(rows), 100)] {
		for i, key := range keys {
			if w := pdf.GetStringWidth(formatText(row[key])) + 4; w > widths[i] {
				widths[i] = w
			}
		}
	}

	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > available {
		scale := available / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

func formatText(val interface{}) string {
	switch v := cellValue(val).(type) {
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case float64:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprint(v)
	}
}
