package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"inspection-service/internal/domain/inspection"
)

func TestRowMapping(t *testing.T) {
	rec := &inspection.Record{
		ID:            uuid.New(),
		Mode:          inspection.ModeLive,
		SessionID:     "default",
		Vehicle:       inspection.VehicleInfo{VIN: "VIN1", Make: "Kia"},
		ImageCount:    2,
		TotalDefects:  3,
		UniqueDefects: 2,
		Verdict:       inspection.VerdictAttention,
		Remark:        "remark",
		Defects: []inspection.DefectRecord{
			{Component: "Door", Confidence: 92.3},
			{Component: "Bumper", Confidence: 75},
		},
		AnnotatedImages: []string{"static/capture_default_a_0.jpg"},
		ReportURL:       "static/inspection_report.pdf",
		CreatedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	row, err := toRow(rec)
	require.NoError(t, err)
	require.Equal(t, inspection.NotProvided, row.Model)
	require.JSONEq(t, `[{"class":"Door","confidence":92.3},{"class":"Bumper","confidence":75}]`, string(row.Defects))

	back, err := fromRow(row)
	require.NoError(t, err)

	want := *rec
	want.Vehicle = rec.Vehicle.WithDefaults()
	require.Equal(t, want, *back)
}

func TestRowMapping_EmptyCollections(t *testing.T) {
	row, err := toRow(&inspection.Record{Mode: inspection.ModeBatch, Verdict: inspection.VerdictPass})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, row.ID)
	require.False(t, row.CreatedAt.IsZero())
	require.Nil(t, row.SessionID)
	require.Nil(t, row.ReportURL)
	require.JSONEq(t, `[]`, string(row.Defects))
	require.JSONEq(t, `[]`, string(row.AnnotatedImages))
}

func TestPageSize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-5, 20},
		{50, 50},
		{500, maxPageSize},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, pageSize(tt.in))
	}
}
