package inspection

import (
	"image"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const NotProvided = "Not Provided"

// BoundingBox is expressed as center point plus size, in pixels.
type BoundingBox struct {
	CenterX float64 `json:"x"`
	CenterY float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Rect converts the box into integer pixel corners.
func (b BoundingBox) Rect() image.Rectangle {
	x, y := int(b.CenterX), int(b.CenterY)
	w, h := int(b.Width), int(b.Height)
	return image.Rect(x-w/2, y-h/2, x+w/2, y+h/2)
}

type Detection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

func (d Detection) Label() Label {
	return ParseLabel(d.Class)
}

// ConfidencePercent converts the [0,1] confidence to a percentage rounded to one decimal.
func (d Detection) ConfidencePercent() float64 {
	return math.Round(d.Confidence*1000) / 10
}

func (d Detection) Defect() DefectRecord {
	return DefectRecord{
		Component:  d.Label().Display(),
		Confidence: d.ConfidencePercent(),
	}
}

// DefectRecord is a detection reduced to its display label and percentage.
type DefectRecord struct {
	Component  string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

func (r DefectRecord) Label() Label {
	return ParseLabel(r.Component)
}

func DefectsFrom(detections []Detection) []DefectRecord {
	defects := make([]DefectRecord, 0, len(detections))
	for _, d := range detections {
		defects = append(defects, d.Defect())
	}
	return defects
}

// UniqueComponents returns the distinct normalized labels present in the defects.
func UniqueComponents(defects []DefectRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(defects))
	for _, d := range defects {
		set[d.Label().Key()] = struct{}{}
	}
	return set
}

type VehicleInfo struct {
	VIN     string `json:"vin"`
	Make    string `json:"make"`
	Model   string `json:"model"`
	Year    string `json:"year"`
	Mileage string `json:"mileage"`
}

// WithDefaults fills every blank field with NotProvided independently.
func (v VehicleInfo) WithDefaults() VehicleInfo {
	return VehicleInfo{
		VIN:     orNotProvided(v.VIN),
		Make:    orNotProvided(v.Make),
		Model:   orNotProvided(v.Model),
		Year:    orNotProvided(v.Year),
		Mileage: orNotProvided(v.Mileage),
	}
}

// MakeModel joins make and model, collapsing to NotProvided when both are missing.
func (v VehicleInfo) MakeModel() string {
	v = v.WithDefaults()
	if v.Make == NotProvided && v.Model == NotProvided {
		return NotProvided
	}
	return strings.TrimSpace(v.Make + " " + v.Model)
}

func orNotProvided(value string) string {
	if strings.TrimSpace(value) == "" {
		return NotProvided
	}
	return strings.TrimSpace(value)
}

type Mode string

const (
	ModeBatch Mode = "batch"
	ModeLive  Mode = "live"
)

// Record is the persisted summary of one synthesized report.
type Record struct {
	ID              uuid.UUID      `json:"id"`
	Mode            Mode           `json:"mode"`
	SessionID       string         `json:"session_id,omitempty"`
	Vehicle         VehicleInfo    `json:"vehicle"`
	ImageCount      int            `json:"image_count"`
	TotalDefects    int            `json:"total_defects_detected"`
	UniqueDefects   int            `json:"unique_defect_types"`
	Verdict         Verdict        `json:"verdict"`
	Remark          string         `json:"remark"`
	Defects         []DefectRecord `json:"defects_detected"`
	AnnotatedImages []string       `json:"annotated_images"`
	ReportURL       string         `json:"report_url,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
