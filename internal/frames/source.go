package frames

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Sensitivity bounds for the scene-change threshold.
const (
	MinSensitivity = 0.1
	MaxSensitivity = 0.9
)

// DefaultPollInterval is how often the output directory is rescanned when no
// filesystem notification arrives.
const DefaultPollInterval = 200 * time.Millisecond

var (
	// ErrSensitivity is returned for a scene threshold outside [0.1, 0.9].
	ErrSensitivity = errors.New("sensitivity must be between 0.1 and 0.9")

	// ErrConsumed is returned when an extraction stream is ranged over twice.
	ErrConsumed = errors.New("frame stream already consumed")
)

// Request describes one extraction.
type Request struct {
	VideoPath   string
	Sensitivity float64
	// OutputDir receives the extractor's files and the renamed frames.
	OutputDir string
}

// Source turns a running extraction into a stream of frames.
type Source struct {
	Extractor    Extractor
	PollInterval time.Duration
}

// NewSource returns a Source backed by ffmpeg.
func NewSource() *Source {
	return &Source{Extractor: FFmpeg{}, PollInterval: DefaultPollInterval}
}

// Extract starts the extractor and yields frames in increasing sequence order
// as the extractor writes them. The stream is finite and can be ranged over
// once. If the extractor exits unsuccessfully, frames already written are
// still yielded, followed by a single *ExtractionError. Stopping the range
// early kills the extractor.
func (s *Source) Extract(ctx context.Context, req Request) iter.Seq2[Frame, error] {
	var used atomic.Bool
	return func(yield func(Frame, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(Frame{}, ErrConsumed)
			return
		}
		if req.Sensitivity < MinSensitivity || req.Sensitivity > MaxSensitivity {
			yield(Frame{}, fmt.Errorf("%w: got %.2f", ErrSensitivity, req.Sensitivity))
			return
		}
		if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
			yield(Frame{}, fmt.Errorf("failed to create frames directory: %w", err))
			return
		}
		s.run(ctx, req, yield)
	}
}

func (s *Source) run(ctx context.Context, req Request, yield func(Frame, error) bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc, err := s.Extractor.Start(ctx, req.VideoPath, req.Sensitivity, filepath.Join(req.OutputDir, TempPattern))
	if err != nil {
		yield(Frame{}, err)
		return
	}

	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()
	defer func() {
		cancel()
		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			log.Warn().Msg("Extractor did not exit after cancellation")
		}
	}()

	var notify <-chan fsnotify.Event
	var notifyErrs <-chan error
	if w, err := fsnotify.NewWatcher(); err != nil {
		log.Debug().Err(err).Msg("Filesystem notifications unavailable, polling only")
	} else {
		defer w.Close()
		if err := w.Add(req.OutputDir); err != nil {
			log.Debug().Err(err).Str("dir", req.OutputDir).Msg("Cannot watch frames directory, polling only")
		} else {
			notify, notifyErrs = w.Events, w.Errors
		}
	}

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sc := &scanner{dir: req.OutputDir, seen: make(map[string]bool), ids: newIdentities()}

	for {
		var waitErr error
		done := false

		select {
		case <-ctx.Done():
			yield(Frame{}, ctx.Err())
			return
		case waitErr = <-exited:
			done = true
			exited <- waitErr
		case <-ticker.C:
		case ev := <-notify:
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
		case err := <-notifyErrs:
			log.Debug().Err(err).Msg("Filesystem watcher error")
			continue
		}

		if done && ctx.Err() != nil {
			yield(Frame{}, ctx.Err())
			return
		}

		frames, err := sc.scan(!done)
		if err != nil {
			yield(Frame{}, err)
			return
		}
		for _, f := range frames {
			if !yield(f, nil) {
				return
			}
		}

		if done {
			if waitErr != nil {
				yield(Frame{}, waitErr)
				return
			}
			log.Info().
				Int("frames", sc.order).
				Str("dir", req.OutputDir).
				Msg("Keyframe extraction complete")
			return
		}
	}
}

// scanner tracks which extractor files have been turned into frames.
type scanner struct {
	dir   string
	seen  map[string]bool
	ids   *identities
	order int
}

type pending struct {
	name string
	seq  int
}

// scan renames new extractor files and returns their frames in sequence
// order. While the extractor is running the newest file is held back because
// it may still be partially written.
func (sc *scanner) scan(holdNewest bool) ([]Frame, error) {
	entries, err := os.ReadDir(sc.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory: %w", err)
	}

	var files []pending
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || sc.seen[name] || !strings.HasPrefix(name, tempPrefix) {
			continue
		}
		seq, err := ParseSequence(name)
		if err != nil {
			sc.seen[name] = true
			log.Warn().Err(err).Str("file", name).Msg("Skipping unrecognised extractor output")
			continue
		}
		files = append(files, pending{name: name, seq: seq})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].seq != files[j].seq {
			return files[i].seq < files[j].seq
		}
		return files[i].name < files[j].name
	})
	if holdNewest && len(files) > 0 {
		files = files[:len(files)-1]
	}

	out := make([]Frame, 0, len(files))
	for _, p := range files {
		sc.seen[p.name] = true
		id, collision := sc.ids.assign(p.seq)
		dst := filepath.Join(sc.dir, FileName(id))
		if err := os.Rename(filepath.Join(sc.dir, p.name), dst); err != nil {
			log.Warn().Err(err).Str("file", p.name).Msg("Failed to rename extracted frame, skipping")
			continue
		}
		sc.order++
		out = append(out, Frame{
			ID:        id,
			Path:      dst,
			Sequence:  p.seq,
			Order:     sc.order,
			Collision: collision,
		})
	}
	return out, nil
}

// PrepareDir creates dir and removes frames, extractor output and the report
// directory left over from a previous session.
func PrepareDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create frames directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read frames directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, frameExt) {
			continue
		}
		if strings.HasPrefix(name, tempPrefix) || strings.HasPrefix(name, framePrefix) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return fmt.Errorf("failed to remove stale frame %s: %w", name, err)
			}
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Str("dir", dir).Msg("Cleared stale frames")
	}
	// A report left by an earlier session would otherwise outlive a clean run.
	if err := os.RemoveAll(filepath.Join(dir, ReportDir)); err != nil {
		return fmt.Errorf("failed to remove stale report: %w", err)
	}
	return nil
}

// FramesDir returns the frames directory for a video: tmp_frames beside the
// video, or a per-video directory under outputDir.
func FramesDir(videoPath, outputDir string, useVideoDir bool) string {
	if useVideoDir || outputDir == "" {
		return filepath.Join(filepath.Dir(videoPath), "tmp_frames")
	}
	name := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(outputDir, name+"_frames")
}
