package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inspection-service/internal/domain/inspection"
	"inspection-service/internal/report"
	"inspection-service/internal/repository"
	"inspection-service/internal/session"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]inspection.Detection, error)
}

type Annotator interface {
	Frame(imageData []byte, detections []inspection.Detection) ([]byte, error)
}

type ArtifactStore interface {
	Save(name string, data []byte) (string, error)
	Read(p string) ([]byte, error)
	Remove(p string) error
	Exists(name string) bool
}

type Repository interface {
	Create(ctx context.Context, rec *inspection.Record) error
	Get(ctx context.Context, id uuid.UUID) (*inspection.Record, error)
	Find(ctx context.Context, f repository.Filter) ([]inspection.Record, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, in report.Input) (*report.Report, error)
	PDFName() string
	XLSXName() string
}

// Mirror copies finished reports to remote storage.
type Mirror interface {
	Mirror(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

type Notifier interface {
	NotifyReport(ctx context.Context, rec inspection.Record, fileName string, pdf []byte) error
}

// Upload is one image received from a client.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Summary is returned for every synthesized report, batch or live.
type Summary struct {
	InspectionID    uuid.UUID                 `json:"inspection_id"`
	SessionID       string                    `json:"session_id,omitempty"`
	ImageCount      int                       `json:"image_count"`
	TotalDefects    int                       `json:"total_defects_detected"`
	UniqueDefects   int                       `json:"unique_defect_types"`
	Defects         []inspection.DefectRecord `json:"defects_detected"`
	AnnotatedImages []string                  `json:"annotated_images"`
	Verdict         inspection.Verdict        `json:"verdict"`
	Remark          string                    `json:"remark"`
	ReportURL       string                    `json:"report_url"`
	XLSXURL         string                    `json:"xlsx_url,omitempty"`
}

type InspectionService struct {
	detector  Detector
	annotator Annotator
	store     ArtifactStore
	repo      Repository
	synth     Synthesizer
	sessions  *session.Manager
	mirror    Mirror
	notifier  Notifier
	log       zerolog.Logger
}

func NewInspectionService(
	detector Detector,
	annotator Annotator,
	store ArtifactStore,
	repo Repository,
	synth Synthesizer,
	sessions *session.Manager,
	log zerolog.Logger,
) *InspectionService {
	return &InspectionService{
		detector:  detector,
		annotator: annotator,
		store:     store,
		repo:      repo,
		synth:     synth,
		sessions:  sessions,
		log:       log,
	}
}

// WithMirror enables report mirroring. A nil mirror leaves it disabled.
func (s *InspectionService) WithMirror(m Mirror) *InspectionService {
	s.mirror = m
	return s
}

// WithNotifier enables report notifications. A nil notifier leaves them disabled.
func (s *InspectionService) WithNotifier(n Notifier) *InspectionService {
	s.notifier = n
	return s
}

// Inspect runs detection on every upload in order, saves annotated copies of
// images with at least one detection and synthesizes a report. The first
// failing image aborts the batch.
func (s *InspectionService) Inspect(ctx context.Context, uploads []Upload, vehicle inspection.VehicleInfo) (*Summary, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", ErrInvalidInput)
	}
	var totalBytes uint64
	for i, up := range uploads {
		if err := checkImage(up); err != nil {
			return nil, fmt.Errorf("file %d: %w", i+1, err)
		}
		totalBytes += uint64(len(up.Data))
	}

	batch := uuid.NewString()[:8]
	s.log.Info().
		Str("batch", batch).
		Int("images", len(uploads)).
		Str("size", humanize.Bytes(totalBytes)).
		Msg("processing inspection batch")

	ledger, images, err := s.detectBatch(ctx, batch, uploads)
	if err != nil {
		return nil, err
	}

	rec := &inspection.Record{
		ID:         uuid.New(),
		Mode:       inspection.ModeBatch,
		Vehicle:    vehicle,
		ImageCount: len(uploads),
	}
	summary, err := s.synthesize(ctx, rec, ledger, images)
	if err != nil {
		s.discard(batch, images)
		return nil, err
	}
	return summary, nil
}

// detectBatch annotates every upload in order. On failure the annotated
// images already saved for the batch are removed.
func (s *InspectionService) detectBatch(ctx context.Context, batch string, uploads []Upload) ([]inspection.DefectRecord, []report.Image, error) {
	var ledger []inspection.DefectRecord
	var images []report.Image
	for i, up := range uploads {
		detections, err := s.detector.Detect(ctx, up.Data)
		if err != nil {
			s.log.Error().Err(err).Str("batch", batch).Int("image", i+1).Msg("detection failed")
			s.discard(batch, images)
			return nil, nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		annotated, err := s.annotator.Frame(up.Data, detections)
		if err != nil {
			s.discard(batch, images)
			return nil, nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		ledger = append(ledger, inspection.DefectsFrom(detections)...)

		if len(detections) == 0 {
			continue
		}
		path, err := s.store.Save(fmt.Sprintf("annotated_%s_%d.jpg", batch, i), annotated)
		if err != nil {
			s.discard(batch, images)
			return nil, nil, fmt.Errorf("save annotated image %d: %w", i+1, err)
		}
		images = append(images, report.Image{Path: path, Data: annotated})
	}
	return ledger, images, nil
}

// discard removes annotated images of a failed batch; failures are logged.
func (s *InspectionService) discard(batch string, images []report.Image) {
	for _, img := range images {
		if err := s.store.Remove(img.Path); err != nil {
			s.log.Debug().Err(err).Str("batch", batch).Str("path", img.Path).Msg("failed to remove annotated image")
		}
	}
}

// NewSession issues an id for a dedicated live session.
func (s *InspectionService) NewSession() string {
	return s.sessions.NewSessionID()
}

func (s *InspectionService) ObserveFrame(ctx context.Context, sessionID string, up Upload) (*session.FrameResult, error) {
	if err := checkImage(up); err != nil {
		return nil, err
	}
	result, err := s.sessions.ObserveFrame(ctx, sessionID, up.Data)
	if err != nil {
		return nil, sessionError(err)
	}
	return result, nil
}

// Finalize synthesizes a report from the live session ledger and records it.
// The session is cleared only when both steps succeed.
func (s *InspectionService) Finalize(ctx context.Context, sessionID string, vehicle inspection.VehicleInfo) (*Summary, error) {
	var summary *Summary
	_, err := s.sessions.Finalize(ctx, sessionID, func(ctx context.Context, snap session.Snapshot) error {
		images := make([]report.Image, 0, len(snap.Captures))
		for _, c := range snap.Captures {
			images = append(images, report.Image{Path: c.Path, Data: c.Image})
		}
		rec := &inspection.Record{
			ID:         uuid.New(),
			Mode:       inspection.ModeLive,
			SessionID:  snap.ID,
			Vehicle:    vehicle,
			ImageCount: len(snap.Captures),
		}

		var err error
		summary, err = s.synthesize(ctx, rec, snap.Ledger, images)
		return err
	})
	if err != nil {
		return nil, sessionError(err)
	}
	return summary, nil
}

func (s *InspectionService) Reset(sessionID string) error {
	return sessionError(s.sessions.Reset(sessionID))
}

func (s *InspectionService) SessionState(sessionID string) (session.Snapshot, error) {
	snap, err := s.sessions.Snapshot(sessionID)
	return snap, sessionError(err)
}

// ReportFile returns the latest generated report in the requested format.
func (s *InspectionService) ReportFile(format string) (string, []byte, error) {
	var name string
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "pdf":
		name = s.synth.PDFName()
	case "xlsx":
		name = s.synth.XLSXName()
	default:
		return "", nil, fmt.Errorf("%w: unsupported report format %q", ErrInvalidInput, format)
	}

	if !s.store.Exists(name) {
		return "", nil, fmt.Errorf("%w: no report has been generated yet", ErrNotFound)
	}
	data, err := s.store.Read(name)
	if err != nil {
		return "", nil, fmt.Errorf("read report: %w", err)
	}
	return name, data, nil
}

func (s *InspectionService) ListInspections(ctx context.Context, verdict, vin, from, to string, limit, offset int) ([]inspection.Record, error) {
	f := repository.Filter{VIN: strings.TrimSpace(vin), Limit: limit, Offset: offset}

	if verdict != "" {
		v := inspection.Verdict(strings.ToUpper(verdict))
		if !v.Valid() {
			return nil, fmt.Errorf("%w: unknown verdict %q", ErrInvalidInput, verdict)
		}
		f.Verdict = v
	}
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		f.From = &t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		f.To = &t
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	records, err := s.repo.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to find inspections: %w", err)
	}
	return records, nil
}

func (s *InspectionService) GetInspection(ctx context.Context, id string) (*inspection.Record, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid inspection id", ErrInvalidInput)
	}
	rec, err := s.repo.Get(ctx, parsed)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: inspection %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	return rec, nil
}

// CleanupOldInspections removes history older than days.
func (s *InspectionService) CleanupOldInspections(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: older_than_days must be positive", ErrInvalidInput)
	}
	deleted, err := s.repo.DeleteOlderThan(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old inspections")
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted_count", deleted).Int("days", days).Msg("cleaned up old inspections")
	}
	return deleted, nil
}

// synthesize writes the report, mirrors it, persists the record and notifies.
// Mirror and notification failures are logged only.
func (s *InspectionService) synthesize(ctx context.Context, rec *inspection.Record, ledger []inspection.DefectRecord, images []report.Image) (*Summary, error) {
	rep, err := s.synth.Synthesize(ctx, report.Input{Ledger: ledger, Images: images, Vehicle: rec.Vehicle})
	if err != nil {
		s.log.Error().Err(err).Str("mode", string(rec.Mode)).Msg("failed to synthesize report")
		return nil, err
	}

	paths := make([]string, 0, len(images))
	for _, img := range images {
		paths = append(paths, img.Path)
	}
	if ledger == nil {
		ledger = []inspection.DefectRecord{}
	}

	rec.Vehicle = rep.Vehicle
	rec.TotalDefects = rep.TotalDefects
	rec.UniqueDefects = rep.UniqueDefects
	rec.Verdict = rep.Verdict
	rec.Remark = rep.Remark
	rec.Defects = ledger
	rec.AnnotatedImages = paths
	rec.ReportURL = "/" + rep.PDFPath

	pdf := rep.PDF
	if pdf != nil && s.mirror != nil {
		name := fmt.Sprintf("inspection_%s.pdf", rec.ID)
		if url, err := s.mirror.Mirror(ctx, name, pdf, "application/pdf"); err != nil {
			s.log.Warn().Err(err).Str("inspection_id", rec.ID.String()).Msg("failed to mirror report")
		} else {
			rec.ReportURL = url
		}
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("inspection_id", rec.ID.String()).Msg("failed to save inspection")
		return nil, fmt.Errorf("failed to save inspection: %w", err)
	}

	if pdf != nil && s.notifier != nil {
		if err := s.notifier.NotifyReport(ctx, *rec, s.synth.PDFName(), pdf); err != nil {
			s.log.Warn().Err(err).Str("inspection_id", rec.ID.String()).Msg("failed to send report notification")
		}
	}

	s.log.Info().
		Str("inspection_id", rec.ID.String()).
		Str("mode", string(rec.Mode)).
		Str("verdict", string(rec.Verdict)).
		Int("images", rec.ImageCount).
		Int("unique_defects", rec.UniqueDefects).
		Msg("inspection recorded")

	summary := &Summary{
		InspectionID:    rec.ID,
		SessionID:       rec.SessionID,
		ImageCount:      rec.ImageCount,
		TotalDefects:    rec.TotalDefects,
		UniqueDefects:   rec.UniqueDefects,
		Defects:         rec.Defects,
		AnnotatedImages: rec.AnnotatedImages,
		Verdict:         rec.Verdict,
		Remark:          rec.Remark,
		ReportURL:       rec.ReportURL,
	}
	if rep.XLSXPath != "" {
		summary.XLSXURL = "/" + rep.XLSXPath
	}
	return summary, nil
}

func checkImage(up Upload) error {
	if !strings.HasPrefix(strings.ToLower(up.ContentType), "image/") {
		return fmt.Errorf("%w: %s is not an image", ErrInvalidInput, displayName(up))
	}
	if len(up.Data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidInput, displayName(up))
	}
	return nil
}

func displayName(up Upload) string {
	if up.Name == "" {
		return "upload"
	}
	return up.Name
}

// sessionError maps client-caused session errors to ErrInvalidInput.
func sessionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrNoCaptures) || errors.Is(err, session.ErrInvalidSessionID) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
