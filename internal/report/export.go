package report

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/fpang/video-screen/internal/assets"
	"github.com/fpang/video-screen/internal/frames"
	"github.com/rs/zerolog/log"
)

// File names inside the report directory.
const (
	HTMLFile   = "index.html"
	JSONFile   = "report.json"
	BundleFile = "report.zip"
)

var reportTemplate = template.Must(template.New("report").Parse(assets.ReportTemplate))

// FileExporter writes the report next to the session's frames:
// <FramesDir>/report/index.html and report.json, optionally bundled and
// published.
type FileExporter struct {
	// ThumbnailMax bounds embedded previews; zero uses
	// DefaultThumbnailMaxDimension.
	ThumbnailMax int
	// Bundle also writes report.zip with the report and the unsafe frames.
	Bundle bool
	// Publisher, when set, uploads the bundle (or index.html without one).
	Publisher Publisher
}

// Export renders r. It fills in entry thumbnails; a frame that cannot be
// thumbnailed is still listed, without a preview.
func (e *FileExporter) Export(ctx context.Context, r *Report) (*Artifacts, error) {
	r.Sort()
	dir := filepath.Join(r.FramesDir, frames.ReportDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ExportError{Step: "mkdir", Err: err}
	}

	maxDim := e.ThumbnailMax
	if maxDim <= 0 {
		maxDim = DefaultThumbnailMaxDimension
	}
	for i := range r.Entries {
		if r.Entries[i].FramePath == "" {
			continue
		}
		thumb, err := Thumbnail(r.Entries[i].FramePath, maxDim)
		if err != nil {
			log.Warn().
				Err(err).
				Str("frame", r.Entries[i].FrameID).
				Msg("Could not build thumbnail, listing frame without preview")
			continue
		}
		r.Entries[i].Thumbnail = thumb
	}

	art := &Artifacts{
		Dir:      dir,
		HTMLPath: filepath.Join(dir, HTMLFile),
		JSONPath: filepath.Join(dir, JSONFile),
	}

	if err := writeHTML(art.HTMLPath, r); err != nil {
		return nil, &ExportError{Step: "html", Err: err}
	}
	if err := writeJSON(art.JSONPath, r); err != nil {
		return nil, &ExportError{Step: "json", Err: err}
	}

	publish, contentType := art.HTMLPath, "text/html; charset=utf-8"
	if e.Bundle {
		art.BundlePath = filepath.Join(dir, BundleFile)
		files := []string{art.HTMLPath, art.JSONPath}
		for _, entry := range r.Entries {
			if entry.FramePath != "" {
				files = append(files, entry.FramePath)
			}
		}
		if err := WriteBundle(art.BundlePath, files); err != nil {
			return nil, &ExportError{Step: "bundle", Err: err}
		}
		publish, contentType = art.BundlePath, "application/zip"
	}

	if e.Publisher != nil {
		uri, err := e.Publisher.Publish(ctx, r.SessionID, publish, contentType)
		if err != nil {
			return art, &ExportError{Step: "publish", Err: err}
		}
		art.RemoteURI = uri
	}

	log.Info().
		Str("session_id", r.SessionID).
		Str("report", art.HTMLPath).
		Int("unsafe_frames", len(r.Entries)).
		Msg("Risk report exported")
	return art, nil
}

func writeHTML(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := reportTemplate.Execute(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to render report: %w", err)
	}
	return f.Close()
}

func writeJSON(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
