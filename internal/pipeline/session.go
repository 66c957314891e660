package pipeline

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/verdict"
)

// ErrPendingUnderflow is returned when more outcomes are recorded than tasks
// were dispatched.
var ErrPendingUnderflow = errors.New("outcome recorded without a dispatched task")

// Outcome is the terminal result of analysing one frame.
type Outcome struct {
	Frame    frames.Frame
	Status   verdict.Status
	Verdict  verdict.Verdict
	Raw      string
	Attempts int
	// Sentinel is set when the classifier refused the image and the verdict
	// was synthesized.
	Sentinel bool
	Err      error
}

// Session is the state of one extraction and analysis run. All methods are
// safe for concurrent use; in practice only the coordinator mutates it.
type Session struct {
	ID        string
	VideoPath string
	FramesDir string
	StartedAt time.Time

	mu              sync.Mutex
	frames          []frames.Frame
	outcomes        map[string]Outcome
	pending         int
	extractionDone  bool
	extractionErr   error
	aiEnabled       bool
	aiDisabledErr   error
	reportTriggered bool
	collisions      int
}

// NewSession returns a session with no frames and nothing pending.
func NewSession(id, videoPath, framesDir string, aiEnabled bool) *Session {
	return &Session{
		ID:        id,
		VideoPath: videoPath,
		FramesDir: framesDir,
		StartedAt: time.Now(),
		outcomes:  make(map[string]Outcome),
		aiEnabled: aiEnabled,
	}
}

// AddFrame records a discovered frame.
func (s *Session) AddFrame(f frames.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	if f.Collision {
		s.collisions++
	}
}

// Dispatch reserves a pending slot for a classification task. It returns
// false, reserving nothing, when AI analysis is off for the session.
func (s *Session) Dispatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.aiEnabled {
		return false
	}
	s.pending++
	return true
}

// Record stores the outcome of a dispatched task and releases its pending
// slot. complete is true for exactly one call across the session's lifetime:
// the one that observes extraction finished with nothing pending.
func (s *Session) Record(o Outcome) (complete bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == 0 {
		return false, ErrPendingUnderflow
	}
	s.pending--
	s.outcomes[o.Frame.ID] = o
	return s.checkCompleteLocked(), nil
}

// Skip stores an outcome for a frame that was never dispatched.
func (s *Session) Skip(f frames.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[f.ID] = Outcome{Frame: f, Status: verdict.StatusSkipped}
}

// EndExtraction marks the frame stream finished. err is the extraction's
// terminal error, if any.
func (s *Session) EndExtraction(err error) (complete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extractionDone {
		return false
	}
	s.extractionDone = true
	s.extractionErr = err
	return s.checkCompleteLocked()
}

// DisableAI turns AI analysis off for the rest of the session. first is true
// only for the call that actually disabled it.
func (s *Session) DisableAI(cause error) (first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.aiEnabled {
		return false
	}
	s.aiEnabled = false
	s.aiDisabledErr = cause
	return true
}

// AIEnabled reports whether new frames are still being dispatched.
func (s *Session) AIEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiEnabled
}

// Pending returns the number of dispatched tasks without an outcome.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Session) checkCompleteLocked() bool {
	if !s.extractionDone || s.pending != 0 || s.reportTriggered {
		return false
	}
	s.reportTriggered = true
	return true
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	ID            string
	VideoPath     string
	FramesDir     string
	StartedAt     time.Time
	Frames        []frames.Frame
	Outcomes      []Outcome
	Pending       int
	Done          bool
	Collisions    int
	ExtractionErr error
	AIDisabledErr error
}

// Snapshot copies the session state. Outcomes are sorted by frame ID.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:            s.ID,
		VideoPath:     s.VideoPath,
		FramesDir:     s.FramesDir,
		StartedAt:     s.StartedAt,
		Frames:        append([]frames.Frame(nil), s.frames...),
		Outcomes:      make([]Outcome, 0, len(s.outcomes)),
		Pending:       s.pending,
		Done:          s.reportTriggered,
		Collisions:    s.collisions,
		ExtractionErr: s.extractionErr,
		AIDisabledErr: s.aiDisabledErr,
	}
	for _, o := range s.outcomes {
		snap.Outcomes = append(snap.Outcomes, o)
	}
	// Frame IDs compare chronologically while the hour field stays two digits.
	sort.Slice(snap.Outcomes, func(i, j int) bool { return snap.Outcomes[i].Frame.ID < snap.Outcomes[j].Frame.ID })
	return snap
}

// Counts tallies outcomes by status. Frames with no outcome count as skipped.
func (snap Snapshot) Counts() map[verdict.Status]int {
	counts := map[verdict.Status]int{
		verdict.StatusSafe:    0,
		verdict.StatusUnsafe:  0,
		verdict.StatusFailed:  0,
		verdict.StatusSkipped: 0,
	}
	for _, o := range snap.Outcomes {
		counts[o.Status]++
	}
	if missing := len(snap.Frames) - len(snap.Outcomes); missing > 0 {
		counts[verdict.StatusSkipped] += missing
	}
	return counts
}
