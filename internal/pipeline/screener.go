// Package pipeline runs a screening session: keyframes stream in from the
// frame source, are classified with bounded concurrency, and the unsafe ones
// are aggregated into a report once the last verdict is in.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/fpang/video-screen/internal/classify"
	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/report"
	"github.com/fpang/video-screen/internal/store"
	"github.com/fpang/video-screen/internal/verdict"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultConcurrency is the number of classifications allowed in flight.
const DefaultConcurrency = 2

var (
	// ErrBillingExhausted wraps the provider error that disabled AI analysis
	// for the rest of a session.
	ErrBillingExhausted = errors.New("AI analysis disabled: provider account has no remaining balance")

	// ErrProviderNotConfigured is reported when AI analysis is enabled but
	// the classifier has no credentials. The session runs extraction only.
	ErrProviderNotConfigured = errors.New("AI analysis enabled but the provider is not configured")
)

// FrameSource produces the keyframes of a video.
type FrameSource interface {
	Extract(ctx context.Context, req frames.Request) iter.Seq2[frames.Frame, error]
}

// Classifier returns the raw model output for one frame.
type Classifier interface {
	Classify(ctx context.Context, f frames.Frame) (classify.Result, error)
	Ready() bool
}

// Exporter writes the risk report.
type Exporter interface {
	Export(ctx context.Context, r *report.Report) (*report.Artifacts, error)
}

// Options are the per-session settings, read once when a session starts.
type Options struct {
	Concurrency int
	Sensitivity float64
	OutputDir   string
	UseVideoDir bool
	EnableAI    bool
	// Provider is recorded in session history.
	Provider string
}

// DefaultOptions returns the stock session settings.
func DefaultOptions() Options {
	return Options{
		Concurrency: DefaultConcurrency,
		Sensitivity: 0.3,
		UseVideoDir: true,
		EnableAI:    true,
	}
}

// Summary is the result of one session.
type Summary struct {
	SessionID string
	VideoPath string
	FramesDir string
	Provider  string
	// Sensitivity is the scene-change threshold the session ran with.
	Sensitivity float64
	StartedAt   time.Time
	FinishedAt  time.Time

	Frames     int
	Safe       int
	Unsafe     int
	Failed     int
	Skipped    int
	Collisions int

	// AIEnabled is whether frames were sent for classification at the start
	// of the session; AIDisabled is set when billing turned it off midway.
	AIEnabled  bool
	AIDisabled bool

	Outcomes []Outcome
	Report   *report.Artifacts

	ExtractionErr error
	BillingErr    error
	ExportErr     error
	ProviderErr   error
}

// Err joins the session-terminal errors. Export and provider configuration
// problems are not terminal.
func (s *Summary) Err() error {
	return errors.Join(s.ExtractionErr, s.BillingErr)
}

// Duration is the wall time of the session.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Screener runs sessions one at a time.
type Screener struct {
	source     FrameSource
	classifier Classifier
	opts       Options
	exporter   Exporter
	history    store.SessionStore
	normalize  func(raw string) (verdict.Verdict, error)
	newID      func() string
	bus        Bus

	// mu is held for the whole of a session; a new submission waits until
	// the previous session has nothing pending.
	mu     sync.Mutex
	events chan event
}

// Option configures a Screener.
type Option func(*Screener)

// WithExporter sets where reports are written. Without one, unsafe frames
// are only logged.
func WithExporter(e Exporter) Option {
	return func(s *Screener) { s.exporter = e }
}

// WithHistory records every finished session in st.
func WithHistory(st store.SessionStore) Option {
	return func(s *Screener) { s.history = st }
}

// WithObserver subscribes o to session notifications.
func WithObserver(o Observer) Option {
	return func(s *Screener) { s.bus.Subscribe(o) }
}

// WithNormalizer replaces the response normalizer.
func WithNormalizer(fn func(raw string) (verdict.Verdict, error)) Option {
	return func(s *Screener) { s.normalize = fn }
}

// WithIDGenerator replaces the session ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Screener) { s.newID = fn }
}

// New returns a Screener. classifier may be nil when AI analysis is off.
func New(source FrameSource, classifier Classifier, opts Options, options ...Option) *Screener {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	s := &Screener{
		source:     source,
		classifier: classifier,
		opts:       opts,
		normalize:  verdict.NormalizeSafe,
		newID:      uuid.NewString,
		events:     make(chan event, 64),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// SessionOption overrides the Screener's options for one session.
type SessionOption func(*Options)

// WithSensitivity sets the scene-change threshold for one session.
func WithSensitivity(v float64) SessionOption {
	return func(o *Options) { o.Sensitivity = v }
}

// Subscribe adds an observer after construction.
func (s *Screener) Subscribe(o Observer) {
	s.bus.Subscribe(o)
}

// Screen extracts keyframes from videoPath, classifies them and, if any are
// unsafe, exports a report. It returns when every discovered frame has an
// outcome. The error is the joined session-terminal errors; the summary is
// returned whenever the session ran.
func (s *Screener) Screen(ctx context.Context, videoPath string, overrides ...SessionOption) (*Summary, error) {
	videoPath, err := frames.ValidateVideo(videoPath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	opts := s.opts
	for _, o := range overrides {
		o(&opts)
	}

	framesDir := frames.FramesDir(videoPath, opts.OutputDir, opts.UseVideoDir)
	if err := frames.PrepareDir(framesDir); err != nil {
		return nil, err
	}

	var providerErr error
	aiEnabled := opts.EnableAI
	if aiEnabled && (s.classifier == nil || !s.classifier.Ready()) {
		providerErr = ErrProviderNotConfigured
		aiEnabled = false
		log.Warn().
			Err(providerErr).
			Msg("Continuing with keyframe extraction only")
	}

	sess := NewSession(s.newID(), videoPath, framesDir, aiEnabled)
	log.Info().
		Str("session_id", sess.ID).
		Str("video", videoPath).
		Str("frames_dir", framesDir).
		Float64("sensitivity", opts.Sensitivity).
		Bool("ai_enabled", aiEnabled).
		Int("concurrency", opts.Concurrency).
		Msg("Screening session started")

	d := newDispatcher(sess.ID, opts.Concurrency, s.analyze, s.events)
	go d.run(ctx)
	go s.extract(ctx, sess.ID, frames.Request{
		VideoPath:   videoPath,
		Sensitivity: opts.Sensitivity,
		OutputDir:   framesDir,
	})

	billingErr := s.coordinate(sess, d)

	d.close()
	d.wait()

	summary := s.aggregate(ctx, sess)
	summary.Provider = opts.Provider
	summary.Sensitivity = opts.Sensitivity
	summary.AIEnabled = aiEnabled
	summary.BillingErr = billingErr
	summary.ProviderErr = providerErr
	summary.FinishedAt = time.Now()

	s.saveHistory(ctx, summary)
	s.bus.sessionComplete(summary)

	log.Info().
		Str("session_id", summary.SessionID).
		Int("frames", summary.Frames).
		Int("safe", summary.Safe).
		Int("unsafe", summary.Unsafe).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Bool("ai_disabled", summary.AIDisabled).
		Dur("duration", summary.Duration()).
		Msg("Screening session complete")

	return summary, summary.Err()
}

// extract forwards the frame stream to the coordinator.
func (s *Screener) extract(ctx context.Context, sessionID string, req frames.Request) {
	for f, err := range s.source.Extract(ctx, req) {
		if err != nil {
			s.events <- extractionFailed{sessionID: sessionID, err: err}
			return
		}
		s.events <- frameDiscovered{sessionID: sessionID, frame: f}
	}
	s.events <- extractionComplete{sessionID: sessionID}
}

// coordinate applies events to the session until it completes. It returns
// the billing error that disabled AI analysis, if any.
func (s *Screener) coordinate(sess *Session, d *dispatcher) error {
	var billingErr error
	discovered := 0

	for {
		ev := <-s.events
		if ev.session() != sess.ID {
			log.Debug().
				Str("session_id", sess.ID).
				Str("event_session_id", ev.session()).
				Msg("Discarding event from another session")
			continue
		}

		complete := false
		switch e := ev.(type) {
		case frameDiscovered:
			discovered++
			sess.AddFrame(e.frame)
			s.bus.frameDiscovered(sess.ID, e.frame)
			if sess.Dispatch() {
				d.enqueue(e.frame)
			} else {
				sess.Skip(e.frame)
				s.bus.frameAnalyzed(sess.ID, Outcome{Frame: e.frame, Status: verdict.StatusSkipped})
			}

		case verdictReady:
			o := e.outcome
			if isSessionFatal(o.Err) && sess.DisableAI(o.Err) {
				d.disable()
				billingErr = fmt.Errorf("%w: %w", ErrBillingExhausted, o.Err)
				log.Error().
					Err(o.Err).
					Str("session_id", sess.ID).
					Str("frame", o.Frame.ID).
					Msg("AI analysis disabled for the rest of the session")
				s.bus.aiDisabled(sess.ID, billingErr)
			}
			var err error
			complete, err = sess.Record(o)
			if err != nil {
				log.Error().
					Err(err).
					Str("session_id", sess.ID).
					Str("frame", o.Frame.ID).
					Msg("Discarding unmatched outcome")
				continue
			}
			logOutcome(sess.ID, o, e.dispatched)
			s.bus.frameAnalyzed(sess.ID, o)

		case extractionComplete:
			log.Info().
				Str("session_id", sess.ID).
				Int("frames", discovered).
				Int("pending", sess.Pending()).
				Msg("Keyframe extraction finished")
			s.bus.extractionFinished(sess.ID, discovered, nil)
			complete = sess.EndExtraction(nil)

		case extractionFailed:
			log.Error().
				Err(e.err).
				Str("session_id", sess.ID).
				Int("frames", discovered).
				Msg("Keyframe extraction failed")
			s.bus.extractionFinished(sess.ID, discovered, e.err)
			complete = sess.EndExtraction(e.err)
		}

		if complete {
			return billingErr
		}
	}
}

// analyze classifies one frame and normalizes the response. It runs on a
// worker goroutine and never touches the session.
func (s *Screener) analyze(ctx context.Context, f frames.Frame) Outcome {
	o := Outcome{Frame: f}

	res, err := s.classifier.Classify(ctx, f)
	if err != nil {
		o.Status = verdict.StatusFailed
		o.Err = err
		var ce *classify.ClassificationError
		if errors.As(err, &ce) {
			o.Attempts = ce.Attempts
		}
		return o
	}
	o.Raw = res.Raw
	o.Attempts = res.Attempts
	o.Sentinel = res.Sentinel

	v, err := s.normalize(res.Raw)
	if err != nil {
		o.Status = verdict.StatusFailed
		o.Err = fmt.Errorf("normalize response for frame %s: %w", f.ID, err)
		return o
	}
	o.Verdict = v
	o.Status = verdict.StatusOf(v)
	return o
}

func isSessionFatal(err error) bool {
	return classify.IsBilling(err)
}

func logOutcome(sessionID string, o Outcome, dispatched bool) {
	switch o.Status {
	case verdict.StatusUnsafe:
		log.Warn().
			Str("session_id", sessionID).
			Str("frame", o.Frame.ID).
			Str("risk_type", o.Verdict.RiskType).
			Str("description", o.Verdict.Description).
			Bool("sentinel", o.Sentinel).
			Msg("Unsafe frame")
	case verdict.StatusFailed:
		log.Warn().
			Err(o.Err).
			Str("session_id", sessionID).
			Str("frame", o.Frame.ID).
			Int("attempts", o.Attempts).
			Msg("Frame analysis failed")
	default:
		log.Debug().
			Str("session_id", sessionID).
			Str("frame", o.Frame.ID).
			Str("status", string(o.Status)).
			Bool("dispatched", dispatched).
			Msg("Frame analysed")
	}
}
