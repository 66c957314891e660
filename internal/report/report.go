// Package report renders and exports the risk report for a screening session.
package report

import (
	"fmt"
	"html/template"
	"path/filepath"
	"sort"
	"time"
)

// Entry is one unsafe frame in the report.
type Entry struct {
	FrameID     string `json:"frame_id"`
	FramePath   string `json:"frame_path"`
	RiskType    string `json:"risk_type"`
	Description string `json:"description"`
	// Sentinel is set when the provider refused the image outright.
	Sentinel bool `json:"sentinel,omitempty"`

	// Thumbnail is a data: URI filled in during export.
	Thumbnail template.URL `json:"-"`
}

// FailedEntry is a frame whose analysis did not produce a verdict.
type FailedEntry struct {
	FrameID string `json:"frame_id"`
	Reason  string `json:"reason"`
}

// Totals counts frames by outcome.
type Totals struct {
	Frames  int `json:"frames"`
	Safe    int `json:"safe"`
	Unsafe  int `json:"unsafe"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Report is the aggregated result of one session.
type Report struct {
	SessionID   string        `json:"session_id"`
	VideoPath   string        `json:"video_path"`
	FramesDir   string        `json:"frames_dir"`
	GeneratedAt time.Time     `json:"generated_at"`
	Totals      Totals        `json:"totals"`
	Entries     []Entry       `json:"entries"`
	Failed      []FailedEntry `json:"failed,omitempty"`
}

// VideoName returns the base name of the screened video.
func (r *Report) VideoName() string {
	return filepath.Base(r.VideoPath)
}

// Sort orders entries and failures by frame ID. IDs are HH-MM-SS.mmm with a
// two-digit hour, so string order is chronological for videos under 100 hours.
func (r *Report) Sort() {
	sort.SliceStable(r.Entries, func(i, j int) bool { return r.Entries[i].FrameID < r.Entries[j].FrameID })
	sort.SliceStable(r.Failed, func(i, j int) bool { return r.Failed[i].FrameID < r.Failed[j].FrameID })
}

// Artifacts lists what an export produced.
type Artifacts struct {
	Dir        string `json:"dir"`
	HTMLPath   string `json:"html_path"`
	JSONPath   string `json:"json_path"`
	BundlePath string `json:"bundle_path,omitempty"`
	RemoteURI  string `json:"remote_uri,omitempty"`
}

// ExportError reports which export step failed.
type ExportError struct {
	Step string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("report export failed at %s: %v", e.Step, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
