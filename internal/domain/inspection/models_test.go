package inspection

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoundingBoxRect(t *testing.T) {
	b := BoundingBox{CenterX: 100, CenterY: 50, Width: 40, Height: 20}
	require.Equal(t, image.Rect(80, 40, 120, 60), b.Rect())
}

func TestDetectionDefect(t *testing.T) {
	d := Detection{Class: " Door ", Confidence: 0.8534}
	rec := d.Defect()
	require.Equal(t, "Door", rec.Component)
	require.InDelta(t, 85.3, rec.Confidence, 1e-9)
}

func TestUniqueComponents(t *testing.T) {
	defects := []DefectRecord{
		{Component: "Door", Confidence: 85.3},
		{Component: "Door", Confidence: 91.0},
		{Component: "Bumper", Confidence: 62.5},
		{Component: "Mirror", Confidence: 50},
	}
	set := UniqueComponents(defects)
	require.Len(t, set, 3)
	require.Contains(t, set, "door")
	require.Contains(t, set, "mirror")
}

func TestVehicleInfoDefaults(t *testing.T) {
	v := VehicleInfo{VIN: "1HGCM82633A004352", Year: " 2019 "}.WithDefaults()
	require.Equal(t, "1HGCM82633A004352", v.VIN)
	require.Equal(t, "2019", v.Year)
	require.Equal(t, NotProvided, v.Make)
	require.Equal(t, NotProvided, v.Model)
	require.Equal(t, NotProvided, v.Mileage)
}

func TestVehicleInfoMakeModel(t *testing.T) {
	require.Equal(t, NotProvided, VehicleInfo{}.MakeModel())
	require.Equal(t, "Toyota Camry", VehicleInfo{Make: "Toyota", Model: "Camry"}.MakeModel())
	require.Equal(t, "Toyota Not Provided", VehicleInfo{Make: "Toyota"}.MakeModel())
}

func TestVerdictFor(t *testing.T) {
	tests := []struct {
		unique int
		want   Verdict
	}{
		{0, VerdictPass},
		{1, VerdictAttention},
		{2, VerdictAttention},
		{3, VerdictFail},
		{7, VerdictFail},
		{8, VerdictFail},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, VerdictFor(tt.unique), "unique=%d", tt.unique)
	}
}
