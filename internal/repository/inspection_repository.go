package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"inspection-service/internal/domain/inspection"
)

var ErrNotFound = errors.New("record not found")

const maxPageSize = 100

type InspectionRepository struct {
	db *gorm.DB
}

func NewInspectionRepository(db *gorm.DB) *InspectionRepository {
	return &InspectionRepository{db: db}
}

func (Inspection) TableName() string {
	return "inspections"
}

type Inspection struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Mode            string    `gorm:"not null"`
	SessionID       *string
	VIN             string `gorm:"column:vin;not null"`
	Make            string `gorm:"not null"`
	Model           string `gorm:"not null"`
	Year            string `gorm:"not null"`
	Mileage         string `gorm:"not null"`
	ImageCount      int
	TotalDefects    int
	UniqueDefects   int
	Verdict         string         `gorm:"not null"`
	Remark          string         `gorm:"not null"`
	Defects         datatypes.JSON `gorm:"type:jsonb"`
	AnnotatedImages datatypes.JSON `gorm:"type:jsonb"`
	ReportURL       *string
	CreatedAt       time.Time
}

// Filter narrows a history listing. Zero values mean no constraint.
type Filter struct {
	Verdict inspection.Verdict
	VIN     string
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

func (r *InspectionRepository) Create(ctx context.Context, rec *inspection.Record) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create inspection in database: %w", err)
	}
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	return nil
}

func (r *InspectionRepository) Get(ctx context.Context, id uuid.UUID) (*inspection.Record, error) {
	var row Inspection
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (r *InspectionRepository) Find(ctx context.Context, f Filter) ([]inspection.Record, error) {
	query := r.db.WithContext(ctx).Model(&Inspection{})

	if f.Verdict != "" {
		query = query.Where("verdict = ?", string(f.Verdict))
	}
	if f.VIN != "" {
		query = query.Where("vin = ?", f.VIN)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", *f.To)
	}

	query = query.Order("created_at DESC").Limit(pageSize(f.Limit))
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var rows []Inspection
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]inspection.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// DeleteOlderThan removes inspections older than the given number of days.
func (r *InspectionRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoffTime := time.Now().AddDate(0, 0, -days)
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoffTime).
		Delete(&Inspection{})

	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func toRow(rec *inspection.Record) (Inspection, error) {
	vehicle := rec.Vehicle.WithDefaults()
	defects := rec.Defects
	if defects == nil {
		defects = []inspection.DefectRecord{}
	}
	images := rec.AnnotatedImages
	if images == nil {
		images = []string{}
	}

	rawDefects, err := json.Marshal(defects)
	if err != nil {
		return Inspection{}, fmt.Errorf("marshal defects: %w", err)
	}
	rawImages, err := json.Marshal(images)
	if err != nil {
		return Inspection{}, fmt.Errorf("marshal annotated images: %w", err)
	}

	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := Inspection{
		ID:              id,
		Mode:            string(rec.Mode),
		VIN:             vehicle.VIN,
		Make:            vehicle.Make,
		Model:           vehicle.Model,
		Year:            vehicle.Year,
		Mileage:         vehicle.Mileage,
		ImageCount:      rec.ImageCount,
		TotalDefects:    rec.TotalDefects,
		UniqueDefects:   rec.UniqueDefects,
		Verdict:         string(rec.Verdict),
		Remark:          rec.Remark,
		Defects:         datatypes.JSON(rawDefects),
		AnnotatedImages: datatypes.JSON(rawImages),
		CreatedAt:       createdAt,
	}
	if rec.SessionID != "" {
		row.SessionID = &rec.SessionID
	}
	if rec.ReportURL != "" {
		row.ReportURL = &rec.ReportURL
	}
	return row, nil
}

func fromRow(row Inspection) (*inspection.Record, error) {
	rec := &inspection.Record{
		ID:   row.ID,
		Mode: inspection.Mode(row.Mode),
		Vehicle: inspection.VehicleInfo{
			VIN:     row.VIN,
			Make:    row.Make,
			Model:   row.Model,
			Year:    row.Year,
			Mileage: row.Mileage,
		},
		ImageCount:    row.ImageCount,
		TotalDefects:  row.TotalDefects,
		UniqueDefects: row.UniqueDefects,
		Verdict:       inspection.Verdict(row.Verdict),
		Remark:        row.Remark,
		CreatedAt:     row.CreatedAt,
	}
	if row.SessionID != nil {
		rec.SessionID = *row.SessionID
	}
	if row.ReportURL != nil {
		rec.ReportURL = *row.ReportURL
	}
	if len(row.Defects) > 0 {
		if err := json.Unmarshal(row.Defects, &rec.Defects); err != nil {
			return nil, fmt.Errorf("unmarshal defects: %w", err)
		}
	}
	if len(row.AnnotatedImages) > 0 {
		if err := json.Unmarshal(row.AnnotatedImages, &rec.AnnotatedImages); err != nil {
			return nil, fmt.Errorf("unmarshal annotated images: %w", err)
		}
	}
	return rec, nil
}
