package report

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"inspection-service/internal/domain/inspection"
)

const (
	Title         = "VEHICLE INSPECTION REPORT"
	DateLayout    = "January 02, 2006"
	NoImagesText  = "No images were processed."
	OtherRowLabel = "Other"

	StatusDetected = "Detected"
	StatusNoDamage = "No Damage"

	RemarkDetected = "Damage detected by AI"
	RemarkClear    = "No issues detected"

	Disclaimer = "Note: This report was generated using AI-powered computer vision technology. " +
		"Results are based on the provided images and should be verified by a qualified technician " +
		"for critical decisions or insurance purposes."
)

// Remarks holds the summary pool for every verdict tier.
var Remarks = map[inspection.Verdict][]string{
	inspection.VerdictPass: {
		"The vehicle was inspected using AI-assisted visual analysis across multiple views. No visible exterior or structural defects were detected. The vehicle appears to be in excellent condition.",
		"Comprehensive multi-angle inspection complete: No damage found on any inspected components. Vehicle is in outstanding visual condition.",
		"No visible defects detected in any of the provided images. Overall vehicle condition is satisfactory.",
	},
	inspection.VerdictAttention: {
		"Minor exterior defects were detected in one or more views. These are likely cosmetic and do not pose immediate safety risks. Preventive maintenance is recommended.",
		"A few minor issues were identified across the inspected images. While the vehicle remains roadworthy, attention to these areas is advised.",
		"Some light damage detected. Issues appear minor and cosmetic in nature. Early repair suggested to maintain optimal condition.",
	},
	inspection.VerdictFail: {
		"Multiple or significant defects were detected across various components and views. These may affect safety, aesthetics, or functionality. Professional repair and re-inspection are strongly recommended.",
		"The vehicle does not pass visual inspection standards due to detected damage in multiple areas. Corrective action required before approval or further use.",
		"Several defects identified in the provided images. Comprehensive repair by a qualified technician is required.",
	},
}

var viewLabels = []string{"Front View", "Side View", "Rear View", "Additional View"}

// ViewLabel names the i-th (zero based) image in the report.
func ViewLabel(i int) string {
	if i >= 0 && i < len(viewLabels) {
		return viewLabels[i]
	}
	return fmt.Sprintf("View %d", i+1)
}

// Image is an annotated JPEG embedded in the report.
type Image struct {
	Label string `json:"label"`
	Path  string `json:"path"`
	Data  []byte `json:"-"`
}

type ChecklistRow struct {
	Component  string `json:"component"`
	Detected   bool   `json:"detected"`
	Status     string `json:"status"`
	Confidence string `json:"highest_confidence"`
	Remark     string `json:"remarks"`
}

// Input is everything a report is synthesized from.
type Input struct {
	Ledger  []inspection.DefectRecord
	Images  []Image
	Vehicle inspection.VehicleInfo
}

type Report struct {
	GeneratedAt   time.Time              `json:"generated_at"`
	Vehicle       inspection.VehicleInfo `json:"vehicle"`
	MakeModel     string                 `json:"make_model"`
	Images        []Image                `json:"images"`
	Checklist     []ChecklistRow         `json:"checklist"`
	TotalDefects  int                    `json:"total_defects_detected"`
	UniqueDefects int                    `json:"unique_defect_types"`
	Verdict       inspection.Verdict     `json:"verdict"`
	Remark        string                 `json:"remark"`
	Disclaimer    string                 `json:"disclaimer"`
	PDFPath       string                 `json:"pdf_path,omitempty"`
	XLSXPath      string                 `json:"xlsx_path,omitempty"`

	// PDF holds the rendered document of this synthesis. The file at PDFPath
	// is shared and may already hold a later report.
	PDF []byte `json:"-"`
}

// Date formats the generation time the way the report header prints it.
func (r *Report) Date() string {
	return r.GeneratedAt.Format(DateLayout)
}

// Build derives the report content. The remark is the only value taken from rng.
func Build(in Input, rng *rand.Rand, now time.Time) *Report {
	checklist, unique := buildChecklist(in.Ledger)
	verdict := inspection.VerdictFor(unique)
	pool := Remarks[verdict]

	images := make([]Image, len(in.Images))
	for i, img := range in.Images {
		img.Label = ViewLabel(i)
		images[i] = img
	}

	return &Report{
		GeneratedAt:   now,
		Vehicle:       in.Vehicle.WithDefaults(),
		MakeModel:     in.Vehicle.MakeModel(),
		Images:        images,
		Checklist:     checklist,
		TotalDefects:  len(in.Ledger),
		UniqueDefects: unique,
		Verdict:       verdict,
		Remark:        pool[rng.IntN(len(pool))],
		Disclaimer:    Disclaimer,
	}
}

// buildChecklist returns one row per known component in fixed order followed
// by the Other row, and the number of distinct labels in the ledger.
func buildChecklist(ledger []inspection.DefectRecord) ([]ChecklistRow, int) {
	best := make(map[string]float64)
	var unknown []string
	var unknownBest float64

	for _, d := range ledger {
		label := d.Label()
		key := label.Key()
		if c, ok := best[key]; !ok || d.Confidence > c {
			if !ok && !label.Known() {
				unknown = append(unknown, label.Display())
			}
			best[key] = d.Confidence
		}
		if !label.Known() && d.Confidence > unknownBest {
			unknownBest = d.Confidence
		}
	}

	rows := make([]ChecklistRow, 0, len(inspection.KnownComponents)+1)
	for _, c := range inspection.KnownComponents {
		conf, ok := best[string(c)]
		rows = append(rows, row(c.Display(), ok, conf, RemarkDetected))
	}
	otherRemark := RemarkDetected
	if len(unknown) > 0 {
		otherRemark = fmt.Sprintf("%s: %s", RemarkDetected, strings.Join(unknown, ", "))
	}
	rows = append(rows, row(OtherRowLabel, len(unknown) > 0, unknownBest, otherRemark))

	return rows, len(best)
}

func row(component string, detected bool, confidence float64, detectedRemark string) ChecklistRow {
	if !detected {
		return ChecklistRow{
			Component:  component,
			Status:     StatusNoDamage,
			Confidence: "-",
			Remark:     RemarkClear,
		}
	}
	return ChecklistRow{
		Component:  component,
		Detected:   true,
		Status:     StatusDetected,
		Confidence: fmt.Sprintf("%.1f%%", confidence),
		Remark:     detectedRemark,
	}
}
