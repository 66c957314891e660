// Package verdict defines the structured safety judgment for a single frame and
// the tolerant normalizer that turns free-form model output into one.
package verdict

import "fmt"

// Verdict is the normalized safety judgment for one frame.
type Verdict struct {
	IsSafe      bool   `json:"is_safe"`
	RiskType    string `json:"risk_type"`
	Description string `json:"description"`
}

// Status is the terminal state of a frame's analysis.
type Status string

const (
	// StatusSafe means the frame was analysed and judged safe.
	StatusSafe Status = "safe"
	// StatusUnsafe means the frame was analysed and judged unsafe.
	StatusUnsafe Status = "unsafe"
	// StatusFailed means analysis did not produce a verdict. It is never a risk.
	StatusFailed Status = "failed"
	// StatusSkipped means the frame was queued but AI analysis was disabled
	// before it reached the classifier.
	StatusSkipped Status = "skipped"
)

// StatusOf maps a verdict to its analysed status.
func StatusOf(v Verdict) Status {
	if v.IsSafe {
		return StatusSafe
	}
	return StatusUnsafe
}

// Label returns the display label for a status.
func (s Status) Label() string {
	switch s {
	case StatusSafe:
		return "安全"
	case StatusUnsafe:
		return "不安全"
	case StatusFailed:
		return "分析失败"
	case StatusSkipped:
		return "未分析"
	default:
		return string(s)
	}
}

func (v Verdict) String() string {
	if v.IsSafe {
		return "safe"
	}
	return fmt.Sprintf("unsafe (%s): %s", v.RiskType, v.Description)
}
