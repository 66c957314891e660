// Package store persists the history of screening sessions.
//
// Two backends are provided: a local SQLite file (the default for the CLI)
// and a DynamoDB table using a single-table design where every record of a
// session shares the partition key SESSION#{sessionId}. Sort key META holds
// the session summary and FRAME#{frameId} one record per analysed frame.
package store

import (
	"context"
	"time"
)

// SessionTTL is how long DynamoDB keeps session records.
const SessionTTL = 30 * 24 * time.Hour

// SessionRecord summarises one finished screening session.
type SessionRecord struct {
	ID          string  `json:"id" dynamodbav:"-"`
	VideoPath   string  `json:"video_path" dynamodbav:"videoPath"`
	Provider    string  `json:"provider" dynamodbav:"provider"`
	Sensitivity float64 `json:"sensitivity" dynamodbav:"sensitivity"`
	StartedAt   int64   `json:"started_at" dynamodbav:"startedAt"`
	FinishedAt  int64   `json:"finished_at" dynamodbav:"finishedAt"`
	Frames      int     `json:"frames" dynamodbav:"frames"`
	Safe        int     `json:"safe" dynamodbav:"safe"`
	Unsafe      int     `json:"unsafe" dynamodbav:"unsafe"`
	Failed      int     `json:"failed" dynamodbav:"failed"`
	Skipped     int     `json:"skipped" dynamodbav:"skipped"`
	AIDisabled  bool    `json:"ai_disabled" dynamodbav:"aiDisabled"`
	ReportPath  string  `json:"report_path,omitempty" dynamodbav:"reportPath,omitempty"`
	Error       string  `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// Started returns StartedAt as a time.
func (r *SessionRecord) Started() time.Time {
	return time.Unix(r.StartedAt, 0)
}

// Duration is the wall time the session took.
func (r *SessionRecord) Duration() time.Duration {
	return time.Duration(r.FinishedAt-r.StartedAt) * time.Second
}

// FrameRecord is the outcome of one frame.
type FrameRecord struct {
	FrameID     string `json:"frame_id" dynamodbav:"-"`
	Path        string `json:"path" dynamodbav:"path"`
	Status      string `json:"status" dynamodbav:"status"`
	RiskType    string `json:"risk_type,omitempty" dynamodbav:"riskType,omitempty"`
	Description string `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Attempts    int    `json:"attempts" dynamodbav:"attempts"`
	Error       string `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// SessionStore records finished sessions. Implementations are safe for
// concurrent use.
//
// Get methods return (nil, nil) when the record does not exist. Save
// replaces any earlier record with the same session ID.
type SessionStore interface {
	// SaveSession writes the session summary and its frame outcomes.
	SaveSession(ctx context.Context, session *SessionRecord, frames []FrameRecord) error

	// GetSession returns a session summary by ID.
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)

	// ListFrames returns a session's frame outcomes ordered by frame ID.
	ListFrames(ctx context.Context, sessionID string) ([]FrameRecord, error)

	// ListSessions returns up to limit sessions, most recent first.
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)

	Close() error
}
