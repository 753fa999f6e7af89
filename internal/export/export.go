// Package export renders tabular dashboard data into downloadable CSV and
// PDF artifacts. Both renderers are pure: no state is retained between
// calls.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Row is one exported table row keyed by header name. Missing keys render
// as empty cells.
type Row map[string]string

// CSV writes rows as an RFC 4180 table in header order.
func CSV(w io.Writer, headers []string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			record[i] = row[h]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// PDF writes a titled tabular report with a generated-at subtitle.
func PDF(w io.Writer, title string, headers []string, rows []Row, generated time.Time) error {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()

	pageWidth, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	usable := pageWidth - left - right

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(usable, 10, title, "", 1, "C", false, 0, "")

	doc.SetFont("Helvetica", "", 10)
	doc.SetTextColor(120, 120, 120)
	doc.CellFormat(usable, 8, "Generated: "+generated.Format("2006-01-02 15:04 MST"), "", 1, "C", false, 0, "")
	doc.SetTextColor(0, 0, 0)
	doc.Ln(4)

	colWidth := usable / float64(len(headers))

	doc.SetFont("Helvetica", "B", 10)
	doc.SetFillColor(230, 230, 230)
	for _, h := range headers {
		doc.CellFormat(colWidth, 8, h, "1", 0, "L", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		for _, h := range headers {
			doc.CellFormat(colWidth, 7, row[h], "1", 0, "L", false, 0, "")
		}
		doc.Ln(-1)
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
