package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// JPEGQuality is the ffmpeg -q:v value for extracted keyframes.
// 2 is high quality, which keeps compression artifacts out of the classifier's view.
const JPEGQuality = 2

// stderrTail bounds how much extractor diagnostic output is kept.
const stderrTail = 4096

// Extractor launches a scene-change keyframe extraction writing numbered JPEGs
// to outputPattern.
type Extractor interface {
	Start(ctx context.Context, videoPath string, sensitivity float64, outputPattern string) (Process, error)
}

// Process is a running extraction.
type Process interface {
	// Wait blocks until the extraction exits. A non-zero exit returns an
	// *ExtractionError.
	Wait() error
}

// ExtractionError reports an extractor that exited unsuccessfully.
type ExtractionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("keyframe extraction failed (exit %d): %v\nOutput: %s", e.ExitCode, e.Err, e.Stderr)
	}
	return fmt.Sprintf("keyframe extraction failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// FFmpeg runs the ffmpeg binary with a scene-change select filter.
type FFmpeg struct {
	// Binary overrides the ffmpeg executable; empty means look it up on PATH.
	Binary string
}

// Start launches ffmpeg. Cancelling ctx kills the process.
func (f FFmpeg) Start(ctx context.Context, videoPath string, sensitivity float64, outputPattern string) (Process, error) {
	bin := f.Binary
	if bin == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: keyframe extraction requires ffmpeg: %w", err)
		}
		bin = path
	}

	args := []string{
		"-hide_banner",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='gt(scene,%s)'", strconv.FormatFloat(sensitivity, 'f', -1, 64)),
		"-vsync", "vfr",
		"-q:v", strconv.Itoa(JPEGQuality),
		outputPattern,
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr

	log.Debug().
		Str("binary", bin).
		Strs("args", args).
		Msg("Starting ffmpeg keyframe extraction")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return &ffmpegProcess{cmd: cmd, stderr: stderr}, nil
}

type ffmpegProcess struct {
	cmd    *exec.Cmd
	stderr *tailBuffer
}

func (p *ffmpegProcess) Wait() error {
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ExtractionError{ExitCode: code, Stderr: p.stderr.String(), Err: err}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
