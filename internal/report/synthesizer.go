package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"inspection-service/internal/config"
)

var ErrBuild = errors.New("report build failed")

// ArtifactWriter receives rendered documents.
type ArtifactWriter interface {
	Write(name string, fn func(w io.Writer) error) (string, error)
}

// Synthesizer renders reports to fixed artifact names. Every call overwrites
// the previous report; concurrent calls are serialized.
type Synthesizer struct {
	store     ArtifactWriter
	baseName  string
	writeXLSX bool
	log       zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewSynthesizer(store ArtifactWriter, storage config.StorageConfig, cfg config.ReportConfig, log zerolog.Logger) *Synthesizer {
	var src rand.Source
	if cfg.Seed != 0 {
		src = rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed))
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	name := storage.ReportName
	if name == "" {
		name = "inspection_report"
	}

	return &Synthesizer{
		store:     store,
		baseName:  name,
		writeXLSX: cfg.WriteXLSX,
		log:       log,
		rng:       rand.New(src),
		now:       time.Now,
	}
}

func (s *Synthesizer) PDFName() string  { return s.baseName + ".pdf" }
func (s *Synthesizer) XLSXName() string { return s.baseName + ".xlsx" }

// Synthesize builds the report and writes the PDF, plus the XLSX companion
// when enabled. Output is not atomic: a failed render may leave a partial file.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := Build(in, s.rng, s.now())

	var pdf bytes.Buffer
	if err := RenderPDF(&pdf, report); err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", ErrBuild, err)
	}
	pdfPath, err := s.store.Write(s.PDFName(), func(w io.Writer) error {
		_, err := w.Write(pdf.Bytes())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", ErrBuild, err)
	}
	report.PDFPath = pdfPath
	report.PDF = pdf.Bytes()

	if s.writeXLSX {
		xlsxPath, err := s.store.Write(s.XLSXName(), func(w io.Writer) error {
			return RenderXLSX(w, report)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: xlsx: %v", ErrBuild, err)
		}
		report.XLSXPath = xlsxPath
	}

	s.log.Info().
		Str("verdict", string(report.Verdict)).
		Int("unique_defects", report.UniqueDefects).
		Int("total_defects", report.TotalDefects).
		Int("images", len(report.Images)).
		Str("pdf_size", humanize.Bytes(uint64(len(report.PDF)))).
		Msg("inspection report generated")

	return report, nil
}
