package pipeline

import (
	"sync"

	"github.com/fpang/video-screen/internal/frames"
)

// event is a message to the session coordinator. Every event carries the ID
// of the session that produced it.
type event interface {
	session() string
}

type frameDiscovered struct {
	sessionID string
	frame     frames.Frame
}

type verdictReady struct {
	sessionID string
	outcome   Outcome
	// dispatched is false for tasks that were queued but never reached the
	// classifier; they still release a pending slot.
	dispatched bool
}

type extractionComplete struct {
	sessionID string
}

type extractionFailed struct {
	sessionID string
	err       error
}

func (e frameDiscovered) session() string    { return e.sessionID }
func (e verdictReady) session() string       { return e.sessionID }
func (e extractionComplete) session() string { return e.sessionID }
func (e extractionFailed) session() string   { return e.sessionID }

// Observer receives session notifications from the coordinator goroutine.
// Implementations must not block for long; they run inline with session
// bookkeeping.
type Observer interface {
	FrameDiscovered(sessionID string, f frames.Frame)
	FrameAnalyzed(sessionID string, o Outcome)
	ExtractionFinished(sessionID string, frames int, err error)
	AIDisabled(sessionID string, cause error)
	SessionComplete(s *Summary)
}

// NopObserver implements Observer with no-ops, for embedding.
type NopObserver struct{}

func (NopObserver) FrameDiscovered(string, frames.Frame)  {}
func (NopObserver) FrameAnalyzed(string, Outcome)         {}
func (NopObserver) ExtractionFinished(string, int, error) {}
func (NopObserver) AIDisabled(string, error)              {}
func (NopObserver) SessionComplete(*Summary)              {}

// Bus fans notifications out to subscribed observers.
type Bus struct {
	mu   sync.RWMutex
	subs []Observer
}

// Subscribe adds an observer.
func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, o)
}

func (b *Bus) each(fn func(Observer)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.subs {
		fn(o)
	}
}

func (b *Bus) frameDiscovered(id string, f frames.Frame) {
	b.each(func(o Observer) { o.FrameDiscovered(id, f) })
}

func (b *Bus) frameAnalyzed(id string, out Outcome) {
	b.each(func(o Observer) { o.FrameAnalyzed(id, out) })
}

func (b *Bus) extractionFinished(id string, n int, err error) {
	b.each(func(o Observer) { o.ExtractionFinished(id, n, err) })
}

func (b *Bus) aiDisabled(id string, cause error) {
	b.each(func(o Observer) { o.AIDisabled(id, cause) })
}

func (b *Bus) sessionComplete(s *Summary) {
	b.each(func(o Observer) { o.SessionComplete(s) })
}
