package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fpang/video-screen/internal/pipeline"
	"github.com/fpang/video-screen/internal/verdict"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// PrintSummary writes a human-readable session result to w.
func PrintSummary(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(w, "Screened %s in %s (session %s)\n", s.VideoPath, FormatDurationShort(s.Duration()), s.SessionID)
	fmt.Fprintf(w, "Frames: %d  safe %d  unsafe %d  failed %d  skipped %d\n",
		s.Frames, s.Safe, s.Unsafe, s.Failed, s.Skipped)
	fmt.Fprintf(w, "Frames directory: %s\n", s.FramesDir)

	switch {
	case !s.AIEnabled:
		fmt.Fprintln(w, "AI analysis was off; frames were extracted only.")
	case s.AIDisabled:
		fmt.Fprintf(w, "AI analysis stopped early: %v\n", s.BillingErr)
	}

	if s.Unsafe > 0 {
		fmt.Fprintln(w, "\nUnsafe frames:")
		for _, o := range s.Outcomes {
			if o.Status != verdict.StatusUnsafe {
				continue
			}
			fmt.Fprintf(w, "  %s  %s  %s\n", o.Frame.ID, o.Verdict.RiskType, o.Verdict.Description)
		}
	}

	if s.Report != nil {
		fmt.Fprintf(w, "\nReport: %s\n", s.Report.HTMLPath)
		if s.Report.BundlePath != "" {
			fmt.Fprintf(w, "Bundle: %s\n", s.Report.BundlePath)
		}
		if s.Report.RemoteURI != "" {
			fmt.Fprintf(w, "Uploaded: %s\n", s.Report.RemoteURI)
		}
	}
	if s.ExportErr != nil {
		fmt.Fprintf(w, "Report export failed: %v\n", s.ExportErr)
	}
	if s.ExtractionErr != nil {
		fmt.Fprintf(w, "Extraction error: %v\n", s.ExtractionErr)
	}
	if s.Unsafe == 0 && s.Err() == nil {
		fmt.Fprintln(w, "\nNo unsafe frames found.")
	}
}
