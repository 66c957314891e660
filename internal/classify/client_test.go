package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/verdict"
)

// scriptedProvider returns the scripted responses in order, repeating the
// last one once the script runs out.
type scriptedProvider struct {
	mu         sync.Mutex
	responses  []scriptedResponse
	calls      int
	configured bool
}

type scriptedResponse struct {
	raw string
	err error
}

func (p *scriptedProvider) Name() string        { return "scripted" }
func (p *scriptedProvider) DisplayName() string { return "Scripted" }
func (p *scriptedProvider) IsConfigured() bool  { return p.configured }

func (p *scriptedProvider) Classify(ctx context.Context, img Image) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i].raw, p.responses[i].err
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func writeFrame(t *testing.T) frames.Frame {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame_00-00-01.000.jpg")
	// Minimal JPEG SOI marker is enough for content sniffing.
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}, 0o644); err != nil {
		t.Fatal(err)
	}
	return frames.Frame{ID: "00-00-01.000", Path: path, Sequence: 25, Order: 1}
}

func providerErr(c Category) error {
	return &ProviderError{Provider: "scripted", Category: c, Err: errors.New(c.String())}
}

func TestClient_Success(t *testing.T) {
	p := &scriptedProvider{configured: true, responses: []scriptedResponse{{raw: `{"is_safe": true}`}}}
	rec := &sleepRecorder{}
	c := NewClient(p, WithSleep(rec.sleep))

	res, err := c.Classify(context.Background(), writeFrame(t))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if res.Raw != `{"is_safe": true}` || res.Attempts != 1 || res.Sentinel {
		t.Errorf("Classify() = %+v, want raw passthrough on first attempt", res)
	}
	if len(rec.delays) != 0 {
		t.Errorf("slept %v, want no backoff", rec.delays)
	}
}

func TestClient_RateLimitLinearBackoff(t *testing.T) {
	p := &scriptedProvider{configured: true, responses: []scriptedResponse{
		{err: providerErr(CategoryRateLimited)},
		{err: providerErr(CategoryRateLimited)},
		{raw: "ok"},
	}}
	rec := &sleepRecorder{}
	c := NewClient(p, WithBaseDelay(2*time.Second), WithSleep(rec.sleep))

	res, err := c.Classify(context.Background(), writeFrame(t))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestClient_ContentRejectedReturnsSentinel(t *testing.T) {
	p := &scriptedProvider{configured: true, responses: []scriptedResponse{{err: providerErr(CategoryContentRejected)}}}
	rec := &sleepRecorder{}
	c := NewClient(p, WithSleep(rec.sleep))

	res, err := c.Classify(context.Background(), writeFrame(t))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !res.Sentinel {
		t.Error("Sentinel = false, want true")
	}
	if got := verdict.Normalize(res.Raw); got != verdict.Sentinel() {
		t.Errorf("Normalize(sentinel raw) = %+v, want %+v", got, verdict.Sentinel())
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}
}

func TestClient_BillingIsFatalImmediately(t *testing.T) {
	p := &scriptedProvider{configured: true, responses: []scriptedResponse{{err: providerErr(CategoryBilling)}}}
	rec := &sleepRecorder{}
	c := NewClient(p, WithSleep(rec.sleep))

	_, err := c.Classify(context.Background(), writeFrame(t))
	if !IsBilling(err) {
		t.Fatalf("Classify() error = %v, want billing", err)
	}
	if p.calls != 1 || len(rec.delays) != 0 {
		t.Errorf("calls = %d, delays = %v, want a single attempt without backoff", p.calls, rec.delays)
	}
}

func TestClient_OtherErrorsExhaustAttempts(t *testing.T) {
	p := &scriptedProvider{configured: true, responses: []scriptedResponse{{err: errors.New("connection reset by peer")}}}
	rec := &sleepRecorder{}
	c := NewClient(p, WithMaxAttempts(3), WithBaseDelay(time.Second), WithSleep(rec.sleep))

	_, err := c.Classify(context.Background(), writeFrame(t))
	var ce *ClassificationError
	if !errors.As(err, &ce) {
		t.Fatalf("Classify() error = %v, want *ClassificationError", err)
	}
	if ce.Kind != KindFrame || IsBilling(err) {
		t.Errorf("Kind = %v, want KindFrame", ce.Kind)
	}
	if ce.Attempts != 3 || p.calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", ce.Attempts, p.calls)
	}
	want := []time.Duration{time.Second, time.Second}
	if len(rec.delays) != len(want) || rec.delays[0] != want[0] || rec.delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
}

func TestClient_RateLimitExhaustionIsFrameLocal(t *testing.T) {
	p := &scriptedProvider{configured: true, responses: []scriptedResponse{{err: providerErr(CategoryRateLimited)}}}
	c := NewClient(p, WithSleep((&sleepRecorder{}).sleep))

	_, err := c.Classify(context.Background(), writeFrame(t))
	var ce *ClassificationError
	if !errors.As(err, &ce) || ce.Kind != KindFrame {
		t.Fatalf("Classify() error = %v, want frame-local failure", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	p := &scriptedProvider{configured: false, responses: []scriptedResponse{{raw: "ok"}}}
	c := NewClient(p)

	_, err := c.Classify(context.Background(), writeFrame(t))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Classify() error = %v, want ErrNotConfigured", err)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times, want 0", p.calls)
	}
}

func TestClient_MissingFrameFile(t *testing.T) {
	p := &scriptedProvider{configured: true, responses: []scriptedResponse{{raw: "ok"}}}
	c := NewClient(p)

	_, err := c.Classify(context.Background(), frames.Frame{ID: "x", Path: filepath.Join(t.TempDir(), "missing.jpg")})
	if err == nil || IsBilling(err) {
		t.Fatalf("Classify() error = %v, want frame-local error", err)
	}
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	p := &scriptedProvider{configured: true, responses: []scriptedResponse{{err: providerErr(CategoryRateLimited)}}}
	c := NewClient(p, WithBaseDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Classify(ctx, writeFrame(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Classify() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("backoff did not observe context cancellation")
	}
}
