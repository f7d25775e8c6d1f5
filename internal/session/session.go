package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inspection-service/internal/domain/inspection"
)

var (
	ErrNoCaptures       = errors.New("no frames captured during live detection")
	ErrInvalidSessionID = errors.New("invalid session id")
)

// State of a live session. A session is ACTIVE once it holds a capture.
type State int

const (
	StateEmpty State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Capture is an annotated frame saved when it introduced a new defect class.
type Capture struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Image []byte `json:"-"`
}

// Session accumulates captures and the defect ledger of one live run.
// All fields are guarded by mu.
type Session struct {
	id        string
	mu        sync.Mutex
	run       string
	captures  []Capture
	seen      map[string]struct{}
	ledger    []inspection.DefectRecord
	createdAt time.Time
	updatedAt time.Time
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		run:       newRunToken(),
		seen:      make(map[string]struct{}),
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

func (s *Session) state() State {
	if len(s.captures) == 0 {
		return StateEmpty
	}
	return StateActive
}

// introducesNewClass reports whether the frame must become a capture:
// it has detections and at least one class not seen before.
func (s *Session) introducesNewClass(detections []inspection.Detection) bool {
	if len(detections) == 0 {
		return false
	}
	for _, d := range detections {
		if _, ok := s.seen[d.Label().Key()]; !ok {
			return true
		}
	}
	return false
}

func (s *Session) commit(detections []inspection.Detection, defects []inspection.DefectRecord, capture Capture) {
	for _, d := range detections {
		s.seen[d.Label().Key()] = struct{}{}
	}
	s.captures = append(s.captures, capture)
	s.ledger = append(s.ledger, defects...)
	s.updatedAt = time.Now()
}

func (s *Session) clear() {
	s.captures = nil
	s.seen = make(map[string]struct{})
	s.ledger = nil
	s.run = newRunToken()
	s.updatedAt = time.Now()
}

func (s *Session) capturePaths() []string {
	paths := make([]string, 0, len(s.captures))
	for _, c := range s.captures {
		paths = append(paths, c.Path)
	}
	return paths
}

func (s *Session) snapshot() Snapshot {
	seen := make([]string, 0, len(s.seen))
	for k := range s.seen {
		seen = append(seen, k)
	}
	sort.Strings(seen)

	return Snapshot{
		ID:          s.id,
		State:       s.state(),
		Captures:    append([]Capture(nil), s.captures...),
		SeenClasses: seen,
		Ledger:      append([]inspection.DefectRecord(nil), s.ledger...),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	ID          string                    `json:"session_id"`
	State       State                     `json:"state"`
	Captures    []Capture                 `json:"captures"`
	SeenClasses []string                  `json:"seen_classes"`
	Ledger      []inspection.DefectRecord `json:"defects"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

func (s Snapshot) UniqueDefects() int { return len(s.SeenClasses) }

func (s Snapshot) CapturePaths() []string {
	paths := make([]string, 0, len(s.Captures))
	for _, c := range s.Captures {
		paths = append(paths, c.Path)
	}
	return paths
}

func newRunToken() string {
	return uuid.NewString()[:8]
}
