package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fpang/video-screen/internal/auth"
	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/pipeline"
	"github.com/fpang/video-screen/internal/report"
	"github.com/fpang/video-screen/internal/verdict"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{61 * time.Second, "1:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.in); got != tt.want {
			t.Errorf("FormatDurationShort(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPromptForVideo(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"path", "/videos/clip.mp4\n", "/videos/clip.mp4", nil},
		{"quoted", "\"/videos/my clip.mov\"\n", "/videos/my clip.mov", nil},
		{"no newline", "clip.mkv", "clip.mkv", nil},
		{"empty", "\n", "", ErrCanceled},
		{"eof", "", "", ErrCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := PromptForVideo(strings.NewReader(tt.input), &out)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PromptForVideo() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("PromptForVideo() = %q, want %q", got, tt.want)
			}
			if !strings.Contains(out.String(), "Video file:") {
				t.Errorf("prompt = %q, want Video file:", out.String())
			}
		})
	}
}

func TestValidationHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no key", &auth.ValidationError{Type: auth.ErrTypeNoKey}, "ZHIPU_API_KEY"},
		{"invalid", &auth.ValidationError{Type: auth.ErrTypeInvalidKey}, "Invalid API key"},
		{"billing", fmt.Errorf("wrapped: %w", &auth.ValidationError{Type: auth.ErrTypeBilling}), "balance"},
		{"quota", &auth.ValidationError{Type: auth.ErrTypeQuotaExceeded}, "rate limit"},
		{"other", errors.New("boom"), "Unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidationHint(tt.err, "zhipu"); !strings.Contains(got, tt.want) {
				t.Errorf("ValidationHint() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &pipeline.Summary{
		SessionID:  "sess-1",
		VideoPath:  "/videos/clip.mp4",
		FramesDir:  "/videos/clip_frames",
		StartedAt:  start,
		FinishedAt: start.Add(75 * time.Second),
		Frames:     3,
		Safe:       1,
		Unsafe:     1,
		Failed:     1,
		AIEnabled:  true,
		Outcomes: []pipeline.Outcome{
			{Frame: frames.Frame{ID: "00-00-00.040"}, Status: verdict.StatusSafe},
			{Frame: frames.Frame{ID: "00-00-01.000"}, Status: verdict.StatusUnsafe,
				Verdict: verdict.Verdict{RiskType: "violence", Description: "a fight"}},
			{Frame: frames.Frame{ID: "00-00-02.000"}, Status: verdict.StatusFailed},
		},
		Report: &report.Artifacts{HTMLPath: "/videos/clip_frames/report/index.html", RemoteURI: "s3://b/k"},
	}

	var buf bytes.Buffer
	PrintSummary(&buf, s)
	out := buf.String()

	for _, want := range []string{"1:15", "unsafe 1", "00-00-01.000  violence  a fight", "index.html", "s3://b/k"} {
		if !strings.Contains(out, want) {
			t.Errorf("PrintSummary() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "00-00-02.000") {
		t.Errorf("PrintSummary() lists a failed frame as unsafe:\n%s", out)
	}
	if strings.Contains(out, "No unsafe frames") {
		t.Errorf("PrintSummary() claims no unsafe frames:\n%s", out)
	}
}

func TestPrintSummary_Clean(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, &pipeline.Summary{Frames: 2, Safe: 2, AIEnabled: true})
	if !strings.Contains(buf.String(), "No unsafe frames found.") {
		t.Errorf("PrintSummary() = %q, want clean message", buf.String())
	}
}

func TestProgress_Counts(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	for i := 1; i <= 3; i++ {
		p.FrameDiscovered("s", frames.Frame{ID: frames.FormatTimestamp(i), Order: i})
	}
	p.ExtractionFinished("s", 3, nil)
	p.FrameAnalyzed("s", pipeline.Outcome{Status: verdict.StatusSafe})
	p.AIDisabled("s", errors.New("balance"))
	p.FrameAnalyzed("s", pipeline.Outcome{Status: verdict.StatusSkipped})
	p.SessionComplete(&pipeline.Summary{})

	discovered, analyzed := p.Counts()
	if discovered != 3 || analyzed != 2 {
		t.Errorf("Counts() = %d, %d, want 3, 2", discovered, analyzed)
	}
}
