package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"inspection-service/internal/annotate"
	"inspection-service/internal/auth"
	"inspection-service/internal/config"
	"inspection-service/internal/detection"
	"inspection-service/internal/domain/inspection"
	"inspection-service/internal/http/middleware"
	"inspection-service/internal/model"
	"inspection-service/internal/report"
	"inspection-service/internal/service"
	"inspection-service/internal/session"
	"inspection-service/internal/storage"
)

type stubService struct {
	err         error
	uploads     []service.Upload
	vehicle     inspection.VehicleInfo
	sessionID   string
	cleanupDays int
	reportName  string
	reportData  []byte
	listVerdict string
	listLimit   int
}

func (s *stubService) Inspect(_ context.Context, uploads []service.Upload, vehicle inspection.VehicleInfo) (*service.Summary, error) {
	s.uploads, s.vehicle = uploads, vehicle
	if s.err != nil {
		return nil, s.err
	}
	return &service.Summary{ImageCount: len(uploads), Verdict: inspection.VerdictPass, ReportURL: "/static/inspection_report.pdf"}, nil
}

func (s *stubService) NewSession() string { return "5f1c1e0e-0000-4000-8000-000000000000" }

func (s *stubService) ObserveFrame(_ context.Context, sessionID string, up service.Upload) (*session.FrameResult, error) {
	s.sessionID = sessionID
	s.uploads = []service.Upload{up}
	if s.err != nil {
		return nil, s.err
	}
	return &session.FrameResult{
		SessionID:     "default",
		Defects:       []inspection.DefectRecord{{Component: "Door", Confidence: 91.2}},
		NewCapture:    true,
		Annotated:     []byte("annotated-jpeg"),
		TotalCaptures: 1,
		UniqueDefects: 1,
	}, nil
}

func (s *stubService) Finalize(_ context.Context, sessionID string, vehicle inspection.VehicleInfo) (*service.Summary, error) {
	s.sessionID, s.vehicle = sessionID, vehicle
	if s.err != nil {
		return nil, s.err
	}
	return &service.Summary{SessionID: "default", ImageCount: 2, Verdict: inspection.VerdictAttention}, nil
}

func (s *stubService) Reset(sessionID string) error {
	s.sessionID = sessionID
	return s.err
}

func (s *stubService) SessionState(sessionID string) (session.Snapshot, error) {
	s.sessionID = sessionID
	return session.Snapshot{
		ID:          "default",
		State:       session.StateActive,
		Captures:    []session.Capture{{Index: 0, Path: "static/capture_default_ab12cd34_0.jpg"}},
		SeenClasses: []string{"bumper", "door"},
		Ledger: []inspection.DefectRecord{
			{Component: "Door", Confidence: 91.2},
			{Component: "Bumper", Confidence: 64.5},
		},
	}, s.err
}

func (s *stubService) ReportFile(format string) (string, []byte, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	if format == "xlsx" {
		return "inspection_report.xlsx", []byte("PK"), nil
	}
	return s.reportName, s.reportData, nil
}

func (s *stubService) ListInspections(_ context.Context, verdict, _, _, _ string, limit, _ int) ([]inspection.Record, error) {
	s.listVerdict, s.listLimit = verdict, limit
	return []inspection.Record{{ID: uuid.New(), Verdict: inspection.VerdictFail}}, s.err
}

func (s *stubService) GetInspection(_ context.Context, id string) (*inspection.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &inspection.Record{ID: uuid.MustParse(id), Verdict: inspection.VerdictPass}, nil
}

func (s *stubService) CleanupOldInspections(_ context.Context, days int) (int64, error) {
	s.cleanupDays = days
	return 4, s.err
}

const testSecret = "test-secret"

func newTestRouter(t *testing.T, svc *stubService, ready ReadinessCheck, artifacts http.FileSystem) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{HTTP: config.HTTPConfig{MaxUploadMB: 5}}
	h := NewHandler(svc, cfg, zerolog.Nop())
	return NewRouter(h, middleware.Auth(auth.NewParser(testSecret)), "test", ready, artifacts, zerolog.Nop())
}

type part struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		header.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func bearer(t *testing.T, role model.UserRole) string {
	t.Helper()
	token, err := auth.NewParser(testSecret).Issue(model.Principal{UserID: uuid.New(), Role: role}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &stubService{}, func(context.Context) error { return errors.New("db down") }, nil)

	w := do(router, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestInspect(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil, nil)

	body, contentType := multipartBody(t,
		map[string]string{"vin": " VIN-7 ", "make": "Mazda"},
		part{"files", "front.jpg", "image/jpeg", []byte("front")},
		part{"files", "rear.png", "image/png", []byte("rear")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inspect", body)
	req.Header.Set("Content-Type", contentType)

	w := do(router, req)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	require.Equal(t, "Inspection complete", resp["message"])
	data := resp["data"].(map[string]any)
	require.Equal(t, float64(2), data["image_count"])
	require.Equal(t, "PASS", data["verdict"])

	require.Len(t, svc.uploads, 2)
	require.Equal(t, "image/png", svc.uploads[1].ContentType)
	require.Equal(t, []byte("rear"), svc.uploads[1].Data)
	require.Equal(t, "VIN-7", svc.vehicle.VIN)
	require.Equal(t, "Mazda", svc.vehicle.Make)
}

func TestInspect_NotMultipart(t *testing.T) {
	router := newTestRouter(t, &stubService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inspect", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	w := do(router, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetectLive(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil, nil)

	body, contentType := multipartBody(t, nil, part{"file", "frame.jpg", "image/jpeg", []byte("frame")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/live/detect", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sessionHeader, "cam-7")

	w := do(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "cam-7", svc.sessionID)

	resp := decode(t, w)
	require.Equal(t, true, resp["success"])
	require.Equal(t, float64(1), resp["count"])
	require.Equal(t, true, resp["new_capture"])
	require.Equal(t, float64(1), resp["total_captures"])
	require.Equal(t, float64(1), resp["unique_defects"])
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("annotated-jpeg")), resp["annotated_frame"])
}

func TestDetectLive_RequiresOneFile(t *testing.T) {
	router := newTestRouter(t, &stubService{}, nil, nil)

	body, contentType := multipartBody(t, nil,
		part{"file", "a.jpg", "image/jpeg", []byte("a")},
		part{"file", "b.jpg", "image/jpeg", []byte("b")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/live/detect", body)
	req.Header.Set("Content-Type", contentType)

	require.Equal(t, http.StatusBadRequest, do(router, req).Code)
}

func TestFinalizeAndResetLive(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil, nil)

	body, contentType := multipartBody(t, map[string]string{"session_id": "cam-2", "year": "2020"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/live/finalize", body)
	req.Header.Set("Content-Type", contentType)

	w := do(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Live detection report generated", decode(t, w)["message"])
	require.Equal(t, "cam-2", svc.sessionID)
	require.Equal(t, "2020", svc.vehicle.Year)

	w = do(router, httptest.NewRequest(http.MethodPost, "/api/v1/live/reset?session_id=cam-3", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "cam-3", svc.sessionID)

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/v1/live/state", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "", svc.sessionID)

	state, ok := decode(t, w)["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "default", state["session_id"])
	require.Equal(t, "ACTIVE", state["state"])
	require.EqualValues(t, 1, state["total_captures"])
	require.EqualValues(t, 2, state["unique_defects"])
	require.Len(t, state["defects"], 2)

	w = do(router, httptest.NewRequest(http.MethodPost, "/api/v1/live/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", fmt.Errorf("%w: %w", service.ErrInvalidInput, session.ErrNoCaptures), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: no report", service.ErrNotFound), http.StatusNotFound},
		{"detector down", fmt.Errorf("image 2: %w: status 500", detection.ErrUnavailable), http.StatusBadGateway},
		{"corrupt image", fmt.Errorf("image 1: %w", annotate.ErrImageDecode), http.StatusUnprocessableEntity},
		{"report build", fmt.Errorf("%w: pdf", report.ErrBuild), http.StatusInternalServerError},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &stubService{err: tt.err}, nil, nil)

			w := do(router, httptest.NewRequest(http.MethodPost, "/api/v1/live/finalize", nil))
			require.Equal(t, tt.status, w.Code)
			require.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestDetectorErrorTextIsReturned(t *testing.T) {
	router := newTestRouter(t, &stubService{err: fmt.Errorf("%w: status 401: bad key", detection.ErrUnavailable)}, nil, nil)

	w := do(router, httptest.NewRequest(http.MethodPost, "/api/v1/live/finalize", nil))
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Contains(t, decode(t, w)["error"], "bad key")
}

func TestGetReport(t *testing.T) {
	svc := &stubService{reportName: "inspection_report.pdf", reportData: []byte("%PDF-1.3")}
	router := newTestRouter(t, svc, nil, nil)

	w := do(router, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.Equal(t, "inline; filename=AutoSpect_Vehicle_Inspection_Report.pdf", w.Header().Get("Content-Disposition"))
	require.Equal(t, "%PDF-1.3", w.Body.String())

	w = do(router, httptest.NewRequest(http.MethodGet, "/api/v1/report?format=xlsx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	svc.err = fmt.Errorf("%w: no report has been generated yet", service.ErrNotFound)
	w = do(router, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestInspectionHistoryAuth(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(t, svc, nil, nil)

	w := do(router, httptest.NewRequest(http.MethodGet, "/api/v1/inspections", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inspections?verdict=FAIL&limit=5", nil)
	req.Header.Set("Authorization", bearer(t, model.UserRoleViewer))
	w = do(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "FAIL", svc.listVerdict)
	require.Equal(t, 5, svc.listLimit)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/inspections?limit=abc", nil)
	req.Header.Set("Authorization", bearer(t, model.UserRoleViewer))
	require.Equal(t, http.StatusBadRequest, do(router, req).Code)

	id := uuid.NewString()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/inspections/"+id, nil)
	req.Header.Set("Authorization", bearer(t, model.UserRoleInspector))
	w = do(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, id, decode(t, w)["data"].(map[string]any)["id"])

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/inspections?older_than_days=30", nil)
	req.Header.Set("Authorization", bearer(t, model.UserRoleInspector))
	require.Equal(t, http.StatusForbidden, do(router, req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/inspections?older_than_days=30", nil)
	req.Header.Set("Authorization", bearer(t, model.UserRoleAdmin))
	w = do(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 30, svc.cleanupDays)
	require.Equal(t, float64(4), decode(t, w)["data"].(map[string]any)["deleted"])
}

func TestStaticArtifacts(t *testing.T) {
	store := storage.NewArtifactStoreFs(afero.NewMemMapFs())
	_, err := store.Save("capture_default_ab12cd34_0.jpg", []byte("jpeg-bytes"))
	require.NoError(t, err)

	router := newTestRouter(t, &stubService{}, nil, store.HTTPFileSystem())

	w := do(router, httptest.NewRequest(http.MethodGet, "/static/capture_default_ab12cd34_0.jpg", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "jpeg-bytes", w.Body.String())

	w = do(router, httptest.NewRequest(http.MethodGet, "/static/missing.jpg", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
