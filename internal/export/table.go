// Package export renders a feed's table rows as downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "summary"
	rowsSheet    = "rows"
)

// Columns returns the table headers for a site: Date, the value with its
// unit, % Capacity when the site has a capacity, and Status when the feed
// carries approval codes.
func Columns(site domain.SiteProfile) []string {
	cols := []string{"Date", fmt.Sprintf("%s (%s)", titleCase(site.Measure), site.UnitLabel)}
	if site.Capacity != nil {
		cols = append(cols, "% Capacity")
	}
	if site.HasQualityCodes() {
		cols = append(cols, "Status")
	}
	return cols
}

func rowValues(site domain.SiteProfile, r domain.TableRow) []any {
	vals := []any{r.DateLabel, r.Value}
	if site.Capacity != nil {
		if r.PercentCapacity != nil {
			vals = append(vals, *r.PercentCapacity)
		} else {
			vals = append(vals, "")
		}
	}
	if site.HasQualityCodes() {
		vals = append(vals, r.QualityCode)
	}
	return vals
}

// TableXLSX renders a workbook with a summary sheet and a rows sheet.
func TableXLSX(site domain.SiteProfile, snap domain.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(rowsSheet); err != nil {
		return nil, fmt.Errorf("create rows sheet: %w", err)
	}

	summary := [][2]any{
		{"Feed", site.Name},
		{"Measure", site.Measure},
		{"Unit", site.UnitLabel},
		{"Range", snap.Range},
		{"Generated", snap.GeneratedAt.Format(time.RFC3339)},
	}
	if s := snap.Projection.Summary; s != nil {
		summary = append(summary,
			[2]any{"Latest", s.Timestamp.In(site.Location()).Format(time.RFC3339)},
			[2]any{"Value", s.Value},
			[2]any{"Days Old", s.StaleDays},
		)
		if s.PercentCapacity != nil {
			summary = append(summary, [2]any{"% Capacity", *s.PercentCapacity})
		}
	}
	_ = f.SetCellValue(summarySheet, "A1", site.Name+" "+site.Measure)
	for i, kv := range summary {
		row := i + 3
		_ = f.SetCellValue(summarySheet, cell(1, row), kv[0])
		_ = f.SetCellValue(summarySheet, cell(2, row), kv[1])
	}

	for col, h := range Columns(site) {
		_ = f.SetCellValue(rowsSheet, cell(col+1, 1), h)
	}
	for i, r := range snap.Projection.TableRows {
		for col, v := range rowValues(site, r) {
			_ = f.SetCellValue(rowsSheet, cell(col+1, i+2), v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// TablePDF renders a one-document report: header lines followed by the table.
func TablePDF(site domain.SiteProfile, snap domain.Snapshot) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr(fmt.Sprintf("%s %s", site.Name, site.Measure)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr("Range: "+snap.Range))
	pdf.Ln(5)
	pdf.Cell(0, 6, "Generated: "+snap.GeneratedAt.Format(time.RFC3339))
	pdf.Ln(8)

	cols := Columns(site)
	width := 180.0 / float64(len(cols))

	pdf.SetFont("Arial", "B", 10)
	for _, h := range cols {
		pdf.CellFormat(width, 6, tr(h), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, r := range snap.Projection.TableRows {
		for i, v := range rowValues(site, r) {
			align := "R"
			if i == 0 || (site.HasQualityCodes() && i == len(cols)-1) {
				align = "L"
			}
			pdf.CellFormat(width, 6, tr(pdfText(v)), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func pdfText(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func titleCase(s string) string {
	if s == "" {
		return "Value"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
