package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin  = 20.0
	imageWidth  = 170.0
	imageHeight = 105.0
)

type rgb struct{ r, g, b int }

var (
	titleColor    = rgb{0x1e, 0x3a, 0x8a}
	headerFill    = rgb{0xd3, 0xd3, 0xd3}
	gridColor     = rgb{0x80, 0x80, 0x80}
	textColor     = rgb{0x33, 0x33, 0x33}
	detectedColor = rgb{0x16, 0x65, 0x34}
)

var verdictColors = map[string]rgb{
	"PASS":      {0x16, 0x65, 0x34},
	"ATTENTION": {0xd9, 0x77, 0x06},
	"FAIL":      {0x99, 0x1b, 0x1b},
}

// RenderPDF lays the report out on A4 pages and writes the document to w.
func RenderPDF(w io.Writer, r *Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	setColor(pdf, titleColor)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 14, Title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	setColor(pdf, rgb{})
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Inspection Date: "+r.Date(), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	writeVehicleTable(pdf, tr, r)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Vehicle Images with AI-Detected Damage", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 6, "Damage areas are highlighted with red bounding boxes and confidence labels.", "", 1, "L", false, 0, "")
	pdf.Ln(6)

	if len(r.Images) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 6, NoImagesText, "", 1, "L", false, 0, "")
	}
	for i, img := range r.Images {
		if i > 0 {
			pdf.AddPage()
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, img.Label, "", 1, "L", false, 0, "")
		pdf.Ln(2)

		name := fmt.Sprintf("image-%d", i)
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
		pdf.ImageOptions(name, pageMargin, pdf.GetY(), imageWidth, imageHeight, true, opts, 0, "")
		pdf.Ln(10)
	}

	pdf.AddPage()
	writeChecklist(pdf, tr, r)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Inspection Summary & Recommendations:", "", 1, "L", false, 0, "")
	setColor(pdf, textColor)
	pdf.SetFont("Helvetica", "", 11.5)
	pdf.MultiCell(0, 6, tr(r.Remark), "", "L", false)
	pdf.Ln(12)

	setColor(pdf, gridColor)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, Disclaimer, "", "C", false)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.Output(w)
}

func writeVehicleTable(pdf *fpdf.Fpdf, tr func(string) string, r *Report) {
	widths := []float64{50, 50, 35, 35}
	rows := [][]string{
		{"VIN / Registration", r.Vehicle.VIN, "Mileage", r.Vehicle.Mileage},
		{"Make / Model", r.MakeModel, "Year", r.Vehicle.Year},
	}

	pdf.SetDrawColor(gridColor.r, gridColor.g, gridColor.b)
	pdf.SetFillColor(headerFill.r, headerFill.g, headerFill.b)
	pdf.SetFont("Helvetica", "", 10)
	for i, cells := range rows {
		for j, cell := range cells {
			pdf.CellFormat(widths[j], 8, tr(cell), "1", 0, "L", i == 0, 0, "")
		}
		pdf.Ln(-1)
	}
}

func writeChecklist(pdf *fpdf.Fpdf, tr func(string) string, r *Report) {
	widths := []float64{45, 35, 40, 50}

	setColor(pdf, rgb{})
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Damage Inspection Checklist", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 11)
	for i, h := range []string{"Component", "Status", "Highest Confidence", "Remarks"} {
		pdf.CellFormat(widths[i], 9, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	for _, row := range r.Checklist {
		pdf.SetFont("Helvetica", "B", 10.5)
		setColor(pdf, rgb{})
		pdf.CellFormat(widths[0], 9, row.Component, "1", 0, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10.5)
		if row.Detected {
			setColor(pdf, detectedColor)
		}
		pdf.CellFormat(widths[1], 9, row.Status, "1", 0, "L", false, 0, "")
		setColor(pdf, rgb{})
		pdf.CellFormat(widths[2], 9, row.Confidence, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 9, tr(fit(pdf, row.Remark, widths[3]-2)), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	color := verdictColors[string(r.Verdict)]
	pdf.SetFont("Helvetica", "B", 10.5)
	pdf.CellFormat(widths[0], 10, "Total Unique Defects", "1", 0, "L", false, 0, "")
	setColor(pdf, color)
	pdf.CellFormat(widths[1], 10, fmt.Sprintf("%d", r.UniqueDefects), "1", 0, "L", false, 0, "")
	setColor(pdf, rgb{})
	pdf.CellFormat(widths[2], 10, "Overall Status:", "1", 0, "L", false, 0, "")
	setColor(pdf, color)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(widths[3], 10, string(r.Verdict), "1", 1, "L", false, 0, "")
	setColor(pdf, rgb{})
}

// fit truncates s with an ellipsis so it fits in a single cell.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func setColor(pdf *fpdf.Fpdf, c rgb) {
	pdf.SetTextColor(c.r, c.g, c.b)
}
