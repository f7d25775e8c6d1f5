package session

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"inspection-service/internal/config"
	"inspection-service/internal/domain/inspection"
)

type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]inspection.Detection, error)
}

type Annotator interface {
	Frame(imageData []byte, detections []inspection.Detection) ([]byte, error)
}

// CaptureStore persists capture images and releases them on reset.
type CaptureStore interface {
	Save(name string, data []byte) (string, error)
	Remove(path string) error
}

// BuildFunc consumes a finalized session, typically by synthesizing a report.
type BuildFunc func(ctx context.Context, snap Snapshot) error

// FrameResult is the immediate feedback for one live frame.
type FrameResult struct {
	SessionID     string                    `json:"session_id"`
	Defects       []inspection.DefectRecord `json:"defects"`
	NewCapture    bool                      `json:"new_capture"`
	Capture       *Capture                  `json:"capture,omitempty"`
	Annotated     []byte                    `json:"-"`
	TotalCaptures int                       `json:"total_captures"`
	UniqueDefects int                       `json:"unique_defects"`
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Manager owns live sessions keyed by id. Sessions are independent; clients
// that do not name a session share the default one. The number of named
// sessions is bounded and evicted sessions release their capture files.
// The default session is never evicted.
type Manager struct {
	detector       Detector
	annotator      Annotator
	store          CaptureStore
	sessions       *lru.Cache[string, *Session]
	mu             sync.Mutex
	defaultID      string
	defaultSession *Session
	log            zerolog.Logger
}

func NewManager(detector Detector, annotator Annotator, store CaptureStore, cfg config.LiveConfig, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		detector:  detector,
		annotator: annotator,
		store:     store,
		defaultID: cfg.DefaultSessionID,
		log:       log,
	}
	if m.defaultID == "" {
		m.defaultID = "default"
	}
	if !sessionIDPattern.MatchString(m.defaultID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, m.defaultID)
	}
	m.defaultSession = newSession(m.defaultID)

	size := cfg.MaxSessions
	if size <= 0 {
		size = 64
	}
	cache, err := lru.NewWithEvict[string, *Session](size, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	m.sessions = cache
	return m, nil
}

func (m *Manager) DefaultID() string { return m.defaultID }

// NewSessionID issues an id for a dedicated session.
func (m *Manager) NewSessionID() string { return uuid.NewString() }

// ResolveID maps an empty id to the default session and validates the rest.
func (m *Manager) ResolveID(id string) (string, error) {
	if id == "" {
		return m.defaultID, nil
	}
	if !sessionIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return id, nil
}

// ObserveFrame runs detection and annotation on one frame and records it as a
// capture when it introduces a defect class the session has not seen yet.
// Any failure leaves the session untouched.
func (m *Manager) ObserveFrame(ctx context.Context, id string, imageData []byte) (*FrameResult, error) {
	id, err := m.ResolveID(id)
	if err != nil {
		return nil, err
	}

	detections, err := m.detector.Detect(ctx, imageData)
	if err != nil {
		return nil, err
	}
	annotated, err := m.annotator.Frame(imageData, detections)
	if err != nil {
		return nil, err
	}
	defects := inspection.DefectsFrom(detections)

	s := m.acquire(id)
	defer s.mu.Unlock()

	result := &FrameResult{
		SessionID: id,
		Defects:   defects,
		Annotated: annotated,
	}

	if s.introducesNewClass(detections) {
		index := len(s.captures)
		name := fmt.Sprintf("capture_%s_%s_%d.jpg", id, s.run, index)
		path, err := m.store.Save(name, annotated)
		if err != nil {
			return nil, fmt.Errorf("save capture: %w", err)
		}
		capture := Capture{Index: index, Path: path, Image: annotated}
		s.commit(detections, defects, capture)

		result.NewCapture = true
		result.Capture = &capture

		m.log.Info().
			Str("session_id", id).
			Int("capture_index", index).
			Int("defects", len(defects)).
			Msg("new defect class captured")
	}

	result.TotalCaptures = len(s.captures)
	result.UniqueDefects = len(s.seen)
	return result, nil
}

// Finalize hands the accumulated ledger and captures to build and clears the
// session when build succeeds. It never runs detection.
func (m *Manager) Finalize(ctx context.Context, id string, build BuildFunc) (Snapshot, error) {
	id, err := m.ResolveID(id)
	if err != nil {
		return Snapshot{}, err
	}

	s, ok := m.lookup(id)
	if !ok {
		return Snapshot{}, ErrNoCaptures
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.captures) == 0 {
		return Snapshot{}, ErrNoCaptures
	}

	snap := s.snapshot()
	if err := build(ctx, snap); err != nil {
		return snap, err
	}

	// capture files stay on disk, the finalized report references them
	s.clear()

	m.log.Info().
		Str("session_id", id).
		Int("captures", len(snap.Captures)).
		Int("unique_defects", snap.UniqueDefects()).
		Msg("live session finalized")

	return snap, nil
}

// Reset discards captures and ledger. It is idempotent and only fails on a
// malformed id.
func (m *Manager) Reset(id string) error {
	id, err := m.ResolveID(id)
	if err != nil {
		return err
	}

	s, ok := m.lookup(id)
	if !ok {
		return nil
	}

	s.mu.Lock()
	paths := s.capturePaths()
	s.clear()
	s.mu.Unlock()

	m.release(id, paths)
	m.log.Info().Str("session_id", id).Int("released", len(paths)).Msg("live session reset")
	return nil
}

// Snapshot returns the current state; unknown sessions are reported empty.
func (m *Manager) Snapshot(id string) (Snapshot, error) {
	id, err := m.ResolveID(id)
	if err != nil {
		return Snapshot{}, err
	}

	s, ok := m.lookup(id)
	if !ok {
		return Snapshot{ID: id, State: StateEmpty}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (m *Manager) lookup(id string) (*Session, bool) {
	if id == m.defaultID {
		return m.defaultSession, true
	}
	return m.sessions.Get(id)
}

// acquire returns the session for id with its lock held. A session evicted
// between lookup and locking is replaced, so a commit never lands in a
// session the manager no longer owns.
func (m *Manager) acquire(id string) *Session {
	for {
		s := m.session(id)
		s.mu.Lock()
		if m.resident(id, s) {
			return s
		}
		s.mu.Unlock()
	}
}

func (m *Manager) resident(id string, s *Session) bool {
	if id == m.defaultID {
		return true
	}
	cur, ok := m.sessions.Peek(id)
	return ok && cur == s
}

func (m *Manager) session(id string) *Session {
	if id == m.defaultID {
		return m.defaultSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions.Get(id); ok {
		return s
	}
	s := newSession(id)
	m.sessions.Add(id, s)
	return s
}

func (m *Manager) onEvict(id string, s *Session) {
	s.mu.Lock()
	paths := s.capturePaths()
	s.clear()
	s.mu.Unlock()

	m.release(id, paths)
	m.log.Info().Str("session_id", id).Int("released", len(paths)).Msg("live session evicted")
}

// release deletes capture files; failures are logged and otherwise ignored.
func (m *Manager) release(id string, paths []string) {
	for _, p := range paths {
		if err := m.store.Remove(p); err != nil {
			m.log.Debug().Err(err).Str("session_id", id).Str("path", p).Msg("failed to remove capture")
		}
	}
}
