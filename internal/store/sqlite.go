package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ SessionStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			video_path TEXT NOT NULL,
			provider TEXT,
			sensitivity REAL,
			started_at INTEGER,
			finished_at INTEGER,
			frames INTEGER,
			safe INTEGER,
			unsafe INTEGER,
			failed INTEGER,
			skipped INTEGER,
			ai_disabled INTEGER,
			report_path TEXT,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);`,
		`CREATE TABLE IF NOT EXISTS frames (
			session_id TEXT NOT NULL,
			frame_id TEXT NOT NULL,
			path TEXT,
			status TEXT,
			risk_type TEXT,
			description TEXT,
			attempts INTEGER,
			error TEXT,
			PRIMARY KEY (session_id, frame_id)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, r *SessionRecord, frames []FrameRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO sessions(id, video_path, provider, sensitivity, started_at, finished_at, frames, safe, unsafe, failed, skipped, ai_disabled, report_path, error)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET video_path=excluded.video_path, provider=excluded.provider, sensitivity=excluded.sensitivity,
			started_at=excluded.started_at, finished_at=excluded.finished_at, frames=excluded.frames, safe=excluded.safe,
			unsafe=excluded.unsafe, failed=excluded.failed, skipped=excluded.skipped, ai_disabled=excluded.ai_disabled,
			report_path=excluded.report_path, error=excluded.error`,
		r.ID, r.VideoPath, r.Provider, r.Sensitivity, r.StartedAt, r.FinishedAt,
		r.Frames, r.Safe, r.Unsafe, r.Failed, r.Skipped, r.AIDisabled, r.ReportPath, r.Error)
	if err != nil {
		return fmt.Errorf("save session %s: %w", r.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE session_id=?`, r.ID); err != nil {
		return fmt.Errorf("clear frames of %s: %w", r.ID, err)
	}
	for _, f := range frames {
		_, err := tx.ExecContext(ctx, `INSERT INTO frames(session_id, frame_id, path, status, risk_type, description, attempts, error) VALUES(?,?,?,?,?,?,?,?)`,
			r.ID, f.FrameID, f.Path, f.Status, f.RiskType, f.Description, f.Attempts, f.Error)
		if err != nil {
			return fmt.Errorf("save frame %s/%s: %w", r.ID, f.FrameID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", r.ID, err)
	}

	log.Debug().
		Str("session_id", r.ID).
		Int("frames", len(frames)).
		Msg("Session saved to history")
	return nil
}

const sessionColumns = `id, video_path, provider, sensitivity, started_at, finished_at, frames, safe, unsafe, failed, skipped, ai_disabled, report_path, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var r SessionRecord
	var provider, reportPath, errMsg sql.NullString
	err := row.Scan(&r.ID, &r.VideoPath, &provider, &r.Sensitivity, &r.StartedAt, &r.FinishedAt,
		&r.Frames, &r.Safe, &r.Unsafe, &r.Failed, &r.Skipped, &r.AIDisabled, &reportPath, &errMsg)
	if err != nil {
		return nil, err
	}
	r.Provider = provider.String
	r.ReportPath = reportPath.String
	r.Error = errMsg.String
	return &r, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, sessionID)
	r, err := scanSession(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return r, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListFrames(ctx context.Context, sessionID string) ([]FrameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT frame_id, path, status, risk_type, description, attempts, error FROM frames WHERE session_id=? ORDER BY frame_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list frames of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var f FrameRecord
		var path, riskType, desc, errMsg sql.NullString
		if err := rows.Scan(&f.FrameID, &path, &f.Status, &riskType, &desc, &f.Attempts, &errMsg); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.Path = path.String
		f.RiskType = riskType.String
		f.Description = desc.String
		f.Error = errMsg.String
		out = append(out, f)
	}
	return out, rows.Err()
}
