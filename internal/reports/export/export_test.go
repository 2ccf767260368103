package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() *Table {
	buyer := "buyer-1"
	return &Table{
		Title:       "Credit Holdings",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Summary: []SummaryItem{
			{Label: "Total Minted", Value: int64(100)},
			{Label: "Balanced", Value: true},
		},
		Sections: []Section{
			{
				Name:    "Balances",
				Columns: []Column{{Key: "owner", Label: "Owner"}, {Key: "amount", Label: "Amount"}},
				Rows: []map[string]interface{}{
					{"owner": "alice", "amount": int64(60)},
					{"owner": "bob, jr", "amount": int64(40)},
				},
			},
			{
				Name:    "Listings",
				Columns: []Column{{Key: "listing_id"}, {Key: "buyer", Label: "Buyer"}},
				Rows: []map[string]interface{}{
					{"listing_id": uint64(1), "buyer": &buyer},
					{"listing_id": uint64(2), "buyer": (*string)(nil)},
				},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatCSV, "CSV": FormatCSV, "xlsx": FormatXLSX, "excel": FormatXLSX, " pdf ": FormatPDF}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("docx")
	assert.Error(t, err)
}

func TestCSVExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatCSV, sampleTable()))

	want := "Balances\nOwner,Amount\nalice,60\n\"bob, jr\",40\n" +
		"Listings\nlisting_id,Buyer\n1,buyer-1\n2,\n"
	assert.Equal(t, want, buf.String())
}

func TestExcelExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatXLSX, sampleTable()))

	file, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer file.Close()

	assert.Equal(t, []string{"Summary", "Balances", "Listings"}, file.GetSheetList())

	rows, err := file.GetRows("Balances")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Owner", "Amount"}, rows[0])
	assert.Equal(t, []string{"bob, jr", "40"}, rows[2])

	title, err := file.GetCellValue("Summary", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Credit Holdings", title)
}

func TestPDFExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatPDF, sampleTable()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestRenderUnknownFormat(t *testing.T) {
	assert.Error(t, Render(&bytes.Buffer{}, Format("docx"), sampleTable()))
}
