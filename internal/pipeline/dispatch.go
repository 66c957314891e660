package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/verdict"
	"golang.org/x/sync/semaphore"
)

// dispatcher admits classification tasks in discovery order through a
// counting gate. Tasks wait in an unbounded FIFO queue; nothing is dropped.
type dispatcher struct {
	sessionID string
	gate      *semaphore.Weighted
	work      func(ctx context.Context, f frames.Frame) Outcome
	events    chan<- event

	// disabled is set by a worker that hit a session-fatal error, before it
	// releases its gate slot, so the next admitted task sees it.
	disabled atomic.Bool

	mu     sync.Mutex
	queue  []frames.Frame
	closed bool
	signal chan struct{}

	workers sync.WaitGroup
	done    chan struct{}
}

func newDispatcher(sessionID string, limit int, work func(context.Context, frames.Frame) Outcome, events chan<- event) *dispatcher {
	if limit < 1 {
		limit = 1
	}
	return &dispatcher{
		sessionID: sessionID,
		gate:      semaphore.NewWeighted(int64(limit)),
		work:      work,
		events:    events,
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// enqueue adds a task to the back of the queue.
func (d *dispatcher) enqueue(f frames.Frame) {
	d.mu.Lock()
	d.queue = append(d.queue, f)
	d.mu.Unlock()
	d.wake()
}

// close stops accepting tasks; queued tasks are still admitted.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wake()
}

// disable makes every task admitted from now on finish as skipped.
func (d *dispatcher) disable() {
	d.disabled.Store(true)
}

func (d *dispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// next blocks until a task is queued or the queue is closed and empty.
func (d *dispatcher) next() (frames.Frame, bool) {
	for {
		d.mu.Lock()
		if len(d.queue) > 0 {
			f := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return f, true
		}
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return frames.Frame{}, false
		}
		<-d.signal
	}
}

// run admits queued tasks until the queue is closed and drained, then waits
// for in-flight work.
func (d *dispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer d.workers.Wait()

	for {
		f, ok := d.next()
		if !ok {
			return
		}

		if err := d.gate.Acquire(ctx, 1); err != nil {
			d.post(Outcome{Frame: f, Status: verdict.StatusFailed, Err: err}, false)
			continue
		}
		if d.disabled.Load() {
			d.gate.Release(1)
			d.post(Outcome{Frame: f, Status: verdict.StatusSkipped}, false)
			continue
		}

		d.workers.Add(1)
		go func(f frames.Frame) {
			defer d.workers.Done()
			o := d.work(ctx, f)
			if isSessionFatal(o.Err) {
				d.disable()
			}
			d.gate.Release(1)
			d.post(o, true)
		}(f)
	}
}

func (d *dispatcher) post(o Outcome, dispatched bool) {
	d.events <- verdictReady{sessionID: d.sessionID, outcome: o, dispatched: dispatched}
}

// wait blocks until run has returned.
func (d *dispatcher) wait() {
	<-d.done
}
