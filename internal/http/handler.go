package http

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"inspection-service/internal/annotate"
	"inspection-service/internal/config"
	"inspection-service/internal/detection"
	"inspection-service/internal/domain/inspection"
	"inspection-service/internal/http/middleware"
	"inspection-service/internal/service"
	"inspection-service/internal/session"
)

const (
	sessionHeader      = "X-Session-ID"
	reportDownloadName = "AutoSpect_Vehicle_Inspection_Report"
)

// InspectionService is the part of service.InspectionService the handlers use.
type InspectionService interface {
	Inspect(ctx context.Context, uploads []service.Upload, vehicle inspection.VehicleInfo) (*service.Summary, error)
	NewSession() string
	ObserveFrame(ctx context.Context, sessionID string, up service.Upload) (*session.FrameResult, error)
	Finalize(ctx context.Context, sessionID string, vehicle inspection.VehicleInfo) (*service.Summary, error)
	Reset(sessionID string) error
	SessionState(sessionID string) (session.Snapshot, error)
	ReportFile(format string) (string, []byte, error)
	ListInspections(ctx context.Context, verdict, vin, from, to string, limit, offset int) ([]inspection.Record, error)
	GetInspection(ctx context.Context, id string) (*inspection.Record, error)
	CleanupOldInspections(ctx context.Context, days int) (int64, error)
}

type Handler struct {
	inspections InspectionService
	config      *config.Config
	log         zerolog.Logger
}

func NewHandler(
	inspections InspectionService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		inspections: inspections,
		config:      cfg,
		log:         log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/inspect", h.inspect)
		public.POST("/live/sessions", h.createSession)
		public.POST("/live/detect", h.detectLive)
		public.POST("/live/finalize", h.finalizeLive)
		public.POST("/live/reset", h.resetLive)
		public.GET("/live/state", h.liveState)
		public.GET("/report", h.getReport)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/inspections", h.listInspections)
		protected.GET("/inspections/:id", h.getInspection)
		protected.DELETE("/inspections", h.cleanupInspections)
	}
}

func (h *Handler) inspect(c *gin.Context) {
	form, err := h.multipartForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid multipart payload"))
		return
	}
	defer form.RemoveAll()

	uploads, err := readUploads(form.File["files"])
	if err != nil {
		h.handleError(c, err)
		return
	}

	summary, err := h.inspections.Inspect(c.Request.Context(), uploads, vehicleFromForm(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Inspection complete",
		"data":    summary,
	})
}

func (h *Handler) createSession(c *gin.Context) {
	id := h.inspections.NewSession()
	h.log.Info().Str("session_id", id).Msg("live session created")
	c.JSON(http.StatusCreated, successResponse(gin.H{"session_id": id}))
}

func (h *Handler) detectLive(c *gin.Context) {
	form, err := h.multipartForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid multipart payload"))
		return
	}
	defer form.RemoveAll()

	uploads, err := readUploads(form.File["file"])
	if err != nil {
		h.handleError(c, err)
		return
	}
	if len(uploads) != 1 {
		c.JSON(http.StatusBadRequest, errorResponse("exactly one file is required"))
		return
	}

	result, err := h.inspections.ObserveFrame(c.Request.Context(), sessionID(c), uploads[0])
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"session_id":      result.SessionID,
		"defects":         result.Defects,
		"count":           len(result.Defects),
		"new_capture":     result.NewCapture,
		"total_captures":  result.TotalCaptures,
		"unique_defects":  result.UniqueDefects,
		"annotated_frame": base64.StdEncoding.EncodeToString(result.Annotated),
	})
}

func (h *Handler) finalizeLive(c *gin.Context) {
	if form, err := h.multipartForm(c); err == nil {
		defer form.RemoveAll()
	}

	summary, err := h.inspections.Finalize(c.Request.Context(), sessionID(c), vehicleFromForm(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Live detection report generated",
		"data":    summary,
	})
}

func (h *Handler) resetLive(c *gin.Context) {
	if err := h.inspections.Reset(sessionID(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Live detection reset"})
}

func (h *Handler) liveState(c *gin.Context) {
	snap, err := h.inspections.SessionState(sessionID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{
		"session_id":     snap.ID,
		"state":          snap.State,
		"total_captures": len(snap.Captures),
		"unique_defects": snap.UniqueDefects(),
		"seen_classes":   snap.SeenClasses,
		"captures":       snap.Captures,
		"defects":        snap.Ledger,
		"updated_at":     snap.UpdatedAt,
	}))
}

func (h *Handler) getReport(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "pdf"))
	name, data, err := h.inspections.ReportFile(format)
	if err != nil {
		h.handleError(c, err)
		return
	}

	contentType := "application/pdf"
	if strings.HasSuffix(name, ".xlsx") {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		format = "xlsx"
	} else {
		format = "pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%s.%s", reportDownloadName, format))
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) listInspections(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok || !principal.CanReadHistory() {
		c.JSON(http.StatusForbidden, errorResponse("forbidden"))
		return
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid limit parameter"))
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid offset parameter"))
		return
	}

	records, err := h.inspections.ListInspections(
		c.Request.Context(),
		strings.TrimSpace(c.Query("verdict")),
		strings.TrimSpace(c.Query("vin")),
		strings.TrimSpace(c.Query("from")),
		strings.TrimSpace(c.Query("to")),
		limit,
		offset,
	)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(records))
}

func (h *Handler) getInspection(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok || !principal.CanReadHistory() {
		c.JSON(http.StatusForbidden, errorResponse("forbidden"))
		return
	}

	rec, err := h.inspections.GetInspection(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(rec))
}

func (h *Handler) cleanupInspections(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok || !principal.CanPurgeHistory() {
		c.JSON(http.StatusForbidden, errorResponse("forbidden"))
		return
	}

	days, err := parseInt(c.Query("older_than_days"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("older_than_days must be an integer"))
		return
	}

	deleted, err := h.inspections.CleanupOldInspections(c.Request.Context(), days)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.log.Info().
		Str("user_id", principal.UserID.String()).
		Int("days", days).
		Int64("deleted", deleted).
		Msg("inspection history cleaned up")

	c.JSON(http.StatusOK, successResponse(gin.H{"deleted": deleted}))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, annotate.ErrImageDecode):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	case errors.Is(err, detection.ErrUnavailable):
		h.log.Warn().Err(err).Msg("detection service failed")
		c.JSON(http.StatusBadGateway, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func (h *Handler) multipartForm(c *gin.Context) (*multipart.Form, error) {
	if h.config != nil && h.config.HTTP.MaxUploadMB > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.HTTP.MaxUploadMB<<20)
	}
	return c.MultipartForm()
}

func readUploads(files []*multipart.FileHeader) ([]service.Upload, error) {
	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", service.ErrInvalidInput, fh.Filename, err)
		}
		uploads = append(uploads, service.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func vehicleFromForm(c *gin.Context) inspection.VehicleInfo {
	return inspection.VehicleInfo{
		VIN:     strings.TrimSpace(c.PostForm("vin")),
		Make:    strings.TrimSpace(c.PostForm("make")),
		Model:   strings.TrimSpace(c.PostForm("model")),
		Year:    strings.TrimSpace(c.PostForm("year")),
		Mileage: strings.TrimSpace(c.PostForm("mileage")),
	}
}

// sessionID prefers the header, then the form field, then the query string.
func sessionID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(sessionHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.PostForm("session_id")); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query("session_id"))
}

func queryInt(c *gin.Context, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return parseInt(value)
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
