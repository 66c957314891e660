package pipeline

import (
	"context"
	"time"

	"github.com/fpang/video-screen/internal/report"
	"github.com/fpang/video-screen/internal/store"
	"github.com/fpang/video-screen/internal/verdict"
	"github.com/rs/zerolog/log"
)

// aggregate builds the summary of a completed session and exports the report
// when at least one frame is unsafe. It runs once per session, after the
// coordinator has observed completion.
func (s *Screener) aggregate(ctx context.Context, sess *Session) *Summary {
	snap := sess.Snapshot()
	counts := snap.Counts()

	summary := &Summary{
		SessionID:     snap.ID,
		VideoPath:     snap.VideoPath,
		FramesDir:     snap.FramesDir,
		StartedAt:     snap.StartedAt,
		Frames:        len(snap.Frames),
		Safe:          counts[verdict.StatusSafe],
		Unsafe:        counts[verdict.StatusUnsafe],
		Failed:        counts[verdict.StatusFailed],
		Skipped:       counts[verdict.StatusSkipped],
		Collisions:    snap.Collisions,
		AIDisabled:    snap.AIDisabledErr != nil,
		Outcomes:      snap.Outcomes,
		ExtractionErr: snap.ExtractionErr,
	}

	if summary.Unsafe == 0 {
		log.Info().
			Str("session_id", snap.ID).
			Int("frames", summary.Frames).
			Msg("No unsafe frames, no report exported")
		return summary
	}

	rep := buildReport(snap, counts)
	if s.exporter == nil {
		for _, e := range rep.Entries {
			log.Warn().
				Str("frame", e.FrameID).
				Str("risk_type", e.RiskType).
				Msg("Unsafe frame (no report exporter configured)")
		}
		return summary
	}

	art, err := s.exporter.Export(ctx, rep)
	summary.Report = art
	if err != nil {
		summary.ExportErr = err
		log.Error().
			Err(err).
			Str("session_id", snap.ID).
			Msg("Failed to export risk report")
	}
	return summary
}

// buildReport lists unsafe frames in timestamp order. Failed frames go in
// their own section and are never reported as risks.
func buildReport(snap Snapshot, counts map[verdict.Status]int) *report.Report {
	rep := &report.Report{
		SessionID:   snap.ID,
		VideoPath:   snap.VideoPath,
		FramesDir:   snap.FramesDir,
		GeneratedAt: time.Now(),
		Totals: report.Totals{
			Frames:  len(snap.Frames),
			Safe:    counts[verdict.StatusSafe],
			Unsafe:  counts[verdict.StatusUnsafe],
			Failed:  counts[verdict.StatusFailed],
			Skipped: counts[verdict.StatusSkipped],
		},
	}
	for _, o := range snap.Outcomes {
		switch o.Status {
		case verdict.StatusUnsafe:
			rep.Entries = append(rep.Entries, report.Entry{
				FrameID:     o.Frame.ID,
				FramePath:   o.Frame.Path,
				RiskType:    o.Verdict.RiskType,
				Description: o.Verdict.Description,
				Sentinel:    o.Sentinel,
			})
		case verdict.StatusFailed:
			reason := "unknown error"
			if o.Err != nil {
				reason = o.Err.Error()
			}
			rep.Failed = append(rep.Failed, report.FailedEntry{FrameID: o.Frame.ID, Reason: reason})
		}
	}
	rep.Sort()
	return rep
}

// saveHistory records the session. Failures are logged and otherwise
// ignored.
func (s *Screener) saveHistory(ctx context.Context, sum *Summary) {
	if s.history == nil {
		return
	}

	rec := &store.SessionRecord{
		ID:          sum.SessionID,
		VideoPath:   sum.VideoPath,
		Provider:    sum.Provider,
		Sensitivity: sum.Sensitivity,
		StartedAt:   sum.StartedAt.Unix(),
		FinishedAt:  sum.FinishedAt.Unix(),
		Frames:      sum.Frames,
		Safe:        sum.Safe,
		Unsafe:      sum.Unsafe,
		Failed:      sum.Failed,
		Skipped:     sum.Skipped,
		AIDisabled:  sum.AIDisabled,
	}
	if sum.Report != nil {
		rec.ReportPath = sum.Report.HTMLPath
	}
	if err := sum.Err(); err != nil {
		rec.Error = err.Error()
	}

	records := make([]store.FrameRecord, 0, len(sum.Outcomes))
	for _, o := range sum.Outcomes {
		fr := store.FrameRecord{
			FrameID:  o.Frame.ID,
			Path:     o.Frame.Path,
			Status:   string(o.Status),
			Attempts: o.Attempts,
		}
		if o.Status == verdict.StatusUnsafe {
			fr.RiskType = o.Verdict.RiskType
			fr.Description = o.Verdict.Description
		}
		if o.Err != nil {
			fr.Error = o.Err.Error()
		}
		records = append(records, fr)
	}

	if err := s.history.SaveSession(ctx, rec, records); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", sum.SessionID).
			Msg("Failed to save session history")
	}
}
