package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/metrics"
	"github.com/fpang/video-screen/internal/verdict"
	"github.com/rs/zerolog/log"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// ErrNotConfigured is returned when the selected provider has no credentials.
var ErrNotConfigured = errors.New("classifier provider is not configured")

// sentinelRaw is returned verbatim when a provider refuses an image.
var sentinelRaw = func() string {
	b, _ := json.Marshal(verdict.Sentinel())
	return string(b)
}()

// Kind separates frame-local failures from ones that end AI analysis for the
// whole session.
type Kind int

const (
	// KindFrame affects only the frame being classified.
	KindFrame Kind = iota
	// KindBilling means the account is out of credit; no further frame should
	// be sent to the provider.
	KindBilling
)

// ClassificationError is the terminal failure of Client.Classify.
type ClassificationError struct {
	Kind     Kind
	FrameID  string
	Attempts int
	Err      error
}

func (e *ClassificationError) Error() string {
	if e.Kind == KindBilling {
		return fmt.Sprintf("classification of frame %s stopped by billing error: %v", e.FrameID, e.Err)
	}
	return fmt.Sprintf("classification of frame %s failed after %d attempt(s): %v", e.FrameID, e.Attempts, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// IsBilling reports whether err is a session-fatal billing failure.
func IsBilling(err error) bool {
	var ce *ClassificationError
	return errors.As(err, &ce) && ce.Kind == KindBilling
}

// Result is the raw model output for one frame.
type Result struct {
	Raw      string
	Attempts int
	// Sentinel is set when Raw was synthesized because the provider refused
	// the image.
	Sentinel bool
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client applies the retry policy around a single Provider. It is safe for
// concurrent use.
type Client struct {
	provider    Provider
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
}

// Option configures a Client.
type Option func(*Client)

// WithMaxAttempts sets how many times a frame is tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the backoff unit.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient wraps provider with the default retry policy.
func NewClient(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider:    provider,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Ready reports whether the provider has credentials.
func (c *Client) Ready() bool {
	return c.provider.IsConfigured()
}

// Classify sends one frame to the provider.
//
//   - rate limited: wait baseDelay × attempt, retry
//   - content rejected: return the sentinel unsafe result, no retry
//   - billing: return a KindBilling error immediately
//   - anything else: wait baseDelay, retry; the last failure is KindFrame
func (c *Client) Classify(ctx context.Context, f frames.Frame) (Result, error) {
	if !c.provider.IsConfigured() {
		return Result{}, &ClassificationError{Kind: KindFrame, FrameID: f.ID, Err: ErrNotConfigured}
	}

	img, err := LoadImage(f.Path)
	if err != nil {
		return Result{}, &ClassificationError{Kind: KindFrame, FrameID: f.ID, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := time.Now()
		raw, err := c.provider.Classify(ctx, img)
		elapsed := time.Since(start)

		if err == nil {
			c.record("success", elapsed)
			log.Debug().
				Str("frame", f.ID).
				Int("attempt", attempt).
				Int("response_length", len(raw)).
				Dur("duration", elapsed).
				Msg("Classifier response received")
			return Result{Raw: raw, Attempts: attempt}, nil
		}
		if ctx.Err() != nil {
			return Result{}, &ClassificationError{Kind: KindFrame, FrameID: f.ID, Attempts: attempt, Err: ctx.Err()}
		}

		lastErr = err
		category := Categorize(err)
		c.record(category.String(), elapsed)

		var delay time.Duration
		switch category {
		case CategoryContentRejected:
			log.Warn().
				Err(err).
				Str("frame", f.ID).
				Msg("Classifier refused frame, marking as sensitive content")
			return Result{Raw: sentinelRaw, Attempts: attempt, Sentinel: true}, nil

		case CategoryBilling:
			log.Error().
				Err(err).
				Str("frame", f.ID).
				Str("provider", c.provider.Name()).
				Msg("Classifier account has no remaining balance")
			return Result{}, &ClassificationError{Kind: KindBilling, FrameID: f.ID, Attempts: attempt, Err: err}

		case CategoryRateLimited:
			delay = c.baseDelay * time.Duration(attempt)
			log.Warn().
				Str("frame", f.ID).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("Classifier rate limited")

		default:
			delay = c.baseDelay
			log.Warn().
				Err(err).
				Str("frame", f.ID).
				Int("attempt", attempt).
				Int("max_attempts", c.maxAttempts).
				Msg("Classifier call failed")
		}

		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return Result{}, &ClassificationError{Kind: KindFrame, FrameID: f.ID, Attempts: attempt, Err: err}
		}
	}

	return Result{}, &ClassificationError{Kind: KindFrame, FrameID: f.ID, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) record(outcome string, elapsed time.Duration) {
	metrics.New("VideoScreen").
		Dimension("Provider", c.provider.Name()).
		Dimension("Outcome", outcome).
		Metric("ClassifyLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ClassifyCalls").
		Flush()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
