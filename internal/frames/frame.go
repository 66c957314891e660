// Package frames drives keyframe extraction for a video and turns the
// extractor's numbered output files into timestamp-identified frames.
package frames

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// AssumedFPS is the frame rate used to turn an extraction sequence number into
// a timestamp. The actual video frame rate is not consulted, so identities are
// approximate for videos that are not 25 fps.
const AssumedFPS = 25

const (
	tempPrefix  = "temp_"
	framePrefix = "frame_"
	frameExt    = ".jpg"

	// TempPattern is the printf-style output pattern handed to the extractor.
	TempPattern = tempPrefix + "%04d" + frameExt

	// ReportDir is the subdirectory of a frames directory that holds the
	// session's risk report.
	ReportDir = "report"
)

// Frame is one extracted keyframe.
type Frame struct {
	// ID is the timestamp identity HH-MM-SS.mmm, with a ~N suffix when it
	// collided with an earlier frame of the same session.
	ID string `json:"id"`

	// Path is the renamed frame file.
	Path string `json:"path"`

	// Sequence is the extractor's output number the ID was computed from.
	Sequence int `json:"sequence"`

	// Order is the 1-based discovery position within the session.
	Order int `json:"order"`

	// Collision is set when the computed timestamp was already taken.
	Collision bool `json:"collision,omitempty"`
}

// FormatTimestamp renders a sequence number as HH-MM-SS.mmm at AssumedFPS.
// IDs sort chronologically as strings while the hour stays two digits, that is
// for videos shorter than 100 hours.
func FormatTimestamp(seq int) string {
	totalMs := int64(seq) * 1000 / AssumedFPS
	h := totalMs / 3_600_000
	m := (totalMs / 60_000) % 60
	s := (totalMs / 1000) % 60
	ms := totalMs % 1000
	return fmt.Sprintf("%02d-%02d-%02d.%03d", h, m, s, ms)
}

// ParseSequence extracts the sequence number from an extractor output name
// such as temp_0007.jpg.
func ParseSequence(name string) (int, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, tempPrefix) || !strings.HasSuffix(base, frameExt) {
		return 0, fmt.Errorf("not an extractor output file: %s", base)
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, tempPrefix), frameExt)
	seq, err := strconv.Atoi(digits)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("invalid sequence in %s", base)
	}
	return seq, nil
}

// FileName returns the renamed file name for a frame identity.
func FileName(id string) string {
	return framePrefix + id + frameExt
}

// identities assigns unique frame IDs within a session.
type identities struct {
	taken map[string]int
}

func newIdentities() *identities {
	return &identities{taken: make(map[string]int)}
}

// assign returns the identity for seq. A timestamp that is already in use is
// disambiguated with a ~N suffix and reported as a collision.
func (ids *identities) assign(seq int) (id string, collision bool) {
	base := FormatTimestamp(seq)
	n := ids.taken[base]
	ids.taken[base] = n + 1
	if n == 0 {
		return base, false
	}

	id = fmt.Sprintf("%s~%d", base, n+1)
	log.Warn().
		Int("sequence", seq).
		Str("timestamp", base).
		Str("frame_id", id).
		Msg("Duplicate frame timestamp, disambiguating")
	return id, true
}
