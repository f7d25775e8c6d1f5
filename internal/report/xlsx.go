package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "Inspection"
	ImagesSheet  = "Images"
)

// RenderXLSX writes a spreadsheet companion to the PDF: vehicle details,
// checklist and verdict on the first sheet, embedded images on the second.
func RenderXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D3D3D3"}},
		Border: gridBorder(),
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 18, Color: "1E3A8A"}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	cells := map[string]any{
		"A1": Title,
		"A2": "Inspection Date",
		"B2": r.Date(),
		"A4": "VIN / Registration",
		"B4": r.Vehicle.VIN,
		"C4": "Mileage",
		"D4": r.Vehicle.Mileage,
		"A5": "Make / Model",
		"B5": r.MakeModel,
		"C5": "Year",
		"D5": r.Vehicle.Year,
		"A7": "Component",
		"B7": "Status",
		"C7": "Highest Confidence",
		"D7": "Remarks",
	}
	for cell, value := range cells {
		if err := f.SetCellValue(SummarySheet, cell, value); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}

	rowIdx := 8
	for _, row := range r.Checklist {
		values := []any{row.Component, row.Status, row.Confidence, row.Remark}
		if err := setRow(f, SummarySheet, rowIdx, values); err != nil {
			return err
		}
		rowIdx++
	}
	summary := []any{"Total Unique Defects", r.UniqueDefects, "Overall Status", string(r.Verdict)}
	if err := setRow(f, SummarySheet, rowIdx, summary); err != nil {
		return err
	}
	summaryRow := rowIdx
	rowIdx += 2

	footer := [][]any{
		{"Total Defects Detected", r.TotalDefects},
		{"Inspection Summary", r.Remark},
		{"Note", r.Disclaimer},
	}
	for _, values := range footer {
		if err := setRow(f, SummarySheet, rowIdx, values); err != nil {
			return err
		}
		rowIdx++
	}

	styles := []struct {
		from, to string
		id       int
	}{
		{"A1", "A1", title},
		{"A4", "A5", bold},
		{"C4", "C5", bold},
		{"A7", "D7", header},
		{fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("D%d", summaryRow), bold},
	}
	for _, s := range styles {
		if err := f.SetCellStyle(SummarySheet, s.from, s.to, s.id); err != nil {
			return fmt.Errorf("style %s:%s: %w", s.from, s.to, err)
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "B", "D", 28); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := writeImages(f, r.Images); err != nil {
		return err
	}

	return f.Write(w)
}

func writeImages(f *excelize.File, images []Image) error {
	if _, err := f.NewSheet(ImagesSheet); err != nil {
		return fmt.Errorf("create images sheet: %w", err)
	}
	if len(images) == 0 {
		return f.SetCellValue(ImagesSheet, "A1", NoImagesText)
	}

	// each image gets a label row followed by a block of rows it is drawn over
	const rowsPerImage = 24
	for i, img := range images {
		labelRow := 1 + i*rowsPerImage
		if err := f.SetCellValue(ImagesSheet, fmt.Sprintf("A%d", labelRow), img.Label); err != nil {
			return fmt.Errorf("label image %d: %w", i+1, err)
		}
		pic := &excelize.Picture{
			Extension: ".jpg",
			File:      img.Data,
			Format: &excelize.GraphicOptions{
				AltText:         img.Label,
				ScaleX:          0.5,
				ScaleY:          0.5,
				LockAspectRatio: true,
			},
		}
		if err := f.AddPictureFromBytes(ImagesSheet, fmt.Sprintf("A%d", labelRow+1), pic); err != nil {
			return fmt.Errorf("embed image %d: %w", i+1, err)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}
	return nil
}

func gridBorder() []excelize.Border {
	var borders []excelize.Border
	for _, side := range []string{"left", "top", "right", "bottom"} {
		borders = append(borders, excelize.Border{Type: side, Color: "808080", Style: 1})
	}
	return borders
}
