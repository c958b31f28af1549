package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sjawhar/ghost-minutes/internal/meeting"
	"github.com/sjawhar/ghost-minutes/internal/suggest"
	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

var ErrNotFound = errors.New("meeting not found")

// ErrStatusConflict is matched by every *StatusConflictError.
var ErrStatusConflict = errors.New("status conflict")

// StatusConflictError is returned when a compare-and-swap on the status
// column finds the meeting in a state outside the allowed sources.
type StatusConflictError struct {
	ID      string
	Current meeting.Status
	Want    meeting.Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("meeting %s is %s, cannot move to %s", e.ID, e.Current, e.Want)
}

func (e *StatusConflictError) Is(target error) bool { return target == ErrStatusConflict }

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "ghost-minutes.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meetings (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			owner_email TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			audio_ref TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			template TEXT NOT NULL DEFAULT '',
			suggestions TEXT NOT NULL DEFAULT '{}',
			summary TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			ended_at TEXT
		);
	`); err != nil {
		return fmt.Errorf("create meetings table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id TEXT NOT NULL,
			speaker TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			timestamp REAL NOT NULL,
			FOREIGN KEY(meeting_id) REFERENCES meetings(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create segments table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_meetings_created_at ON meetings(created_at)"); err != nil {
		return fmt.Errorf("create meetings index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_segments_meeting_id ON segments(meeting_id, id)"); err != nil {
		return fmt.Errorf("create segments index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) CreateMeeting(ctx context.Context, m meeting.Meeting) error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("meeting id is required")
	}
	if !m.Status.Valid() {
		return fmt.Errorf("invalid status %q", m.Status)
	}

	suggestions, err := json.Marshal(m.Suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}

	created := m.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	createdAt := created.UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meetings(id, title, owner_email, status, audio_ref, language, notes, template, suggestions, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.OwnerEmail, string(m.Status), m.AudioRef, m.Language, m.Notes, m.Template,
		string(suggestions), createdAt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("create meeting %s: %w", m.ID, err)
	}

	if len(m.Segments) > 0 {
		return s.AppendSegments(ctx, m.ID, m.Segments)
	}
	return nil
}

const meetingColumns = `id, title, owner_email, status, audio_ref, language, notes, template, suggestions, summary, error, created_at, updated_at, ended_at`

func (s *SQLiteStore) GetMeeting(ctx context.Context, id string) (meeting.Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)

	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return meeting.Meeting{}, fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return meeting.Meeting{}, fmt.Errorf("query meeting %s: %w", id, err)
	}

	segments, err := s.GetSegments(ctx, id)
	if err != nil {
		return meeting.Meeting{}, err
	}
	m.Segments = segments

	return m, nil
}

// ListMeetings returns the newest meetings first, without their segments.
func (s *SQLiteStore) ListMeetings(ctx context.Context, limit int) ([]meeting.Meeting, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	meetings := make([]meeting.Meeting, 0, 16)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting rows: %w", err)
	}

	return meetings, nil
}

func (s *SQLiteStore) GetSegments(ctx context.Context, meetingID string) ([]transcribe.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker, text, timestamp FROM segments WHERE meeting_id = ? ORDER BY id ASC`,
		meetingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments for meeting %s: %w", meetingID, err)
	}
	defer func() { _ = rows.Close() }()

	segments := make([]transcribe.Segment, 0, 32)
	for rows.Next() {
		var seg transcribe.Segment
		if err := rows.Scan(&seg.Speaker, &seg.Text, &seg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan segment for meeting %s: %w", meetingID, err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment rows for meeting %s: %w", meetingID, err)
	}

	return segments, nil
}

func (s *SQLiteStore) AppendSegments(ctx context.Context, meetingID string, segments []transcribe.Segment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touch(ctx, tx, meetingID, s.stamp()); err != nil {
			return err
		}
		return insertSegments(ctx, tx, meetingID, segments)
	})
}

// ReplaceSegments swaps the whole stored transcript in one transaction.
func (s *SQLiteStore) ReplaceSegments(ctx context.Context, meetingID string, segments []transcribe.Segment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touch(ctx, tx, meetingID, s.stamp()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE meeting_id = ?`, meetingID); err != nil {
			return fmt.Errorf("clear segments for meeting %s: %w", meetingID, err)
		}
		return insertSegments(ctx, tx, meetingID, segments)
	})
}

func (s *SQLiteStore) SaveSuggestions(ctx context.Context, meetingID string, suggestions suggest.Suggestions) error {
	raw, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}
	return s.update(ctx, meetingID, `UPDATE meetings SET suggestions = ?, updated_at = ? WHERE id = ?`, string(raw), s.stamp(), meetingID)
}

func (s *SQLiteStore) SaveNotes(ctx context.Context, meetingID, notes string) error {
	return s.update(ctx, meetingID, `UPDATE meetings SET notes = ?, updated_at = ? WHERE id = ?`, notes, s.stamp(), meetingID)
}

// TransitionStatus moves the meeting to `to` only if its current status is
// one of from. Entering processing clears any previous error, and leaving
// active records the end time.
func (s *SQLiteStore) TransitionStatus(ctx context.Context, id string, to meeting.Status, from ...meeting.Status) error {
	if len(from) == 0 {
		return errors.New("at least one source status is required")
	}

	now := s.stamp()
	query := `UPDATE meetings
		SET status = ?,
			error = CASE WHEN ? = 'processing' THEN '' ELSE error END,
			ended_at = CASE WHEN status = 'active' AND ended_at IS NULL THEN ? ELSE ended_at END,
			updated_at = ?
		WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`

	args := []any{string(to), string(to), now, now, id}
	for _, f := range from {
		args = append(args, string(f))
	}

	return s.cas(ctx, id, to, query, args...)
}

// Complete stores the summary and moves processing to completed.
func (s *SQLiteStore) Complete(ctx context.Context, id string, summary meeting.Summary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return s.cas(ctx, id, meeting.StatusCompleted,
		`UPDATE meetings SET status = 'completed', summary = ?, error = '', updated_at = ? WHERE id = ? AND status = 'processing'`,
		string(raw), s.stamp(), id,
	)
}

// Fail stores the diagnostic and moves processing to error.
func (s *SQLiteStore) Fail(ctx context.Context, id string, message string) error {
	return s.cas(ctx, id, meeting.StatusError,
		`UPDATE meetings SET status = 'error', error = ?, updated_at = ? WHERE id = ? AND status = 'processing'`,
		message, s.stamp(), id,
	)
}

func (s *SQLiteStore) cas(ctx context.Context, id string, to meeting.Status, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("move meeting %s to %s: %w", id, to, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("move meeting rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM meetings WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query status of meeting %s: %w", id, err)
	}
	return &StatusConflictError{ID: id, Current: meeting.Status(current), Want: to}
}

func (s *SQLiteStore) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update meeting %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update meeting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, id, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE meetings SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("update meeting %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update meeting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	return nil
}

func insertSegments(ctx context.Context, tx *sql.Tx, meetingID string, segments []transcribe.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO segments(meeting_id, speaker, text, timestamp) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, seg := range segments {
		if _, err := stmt.ExecContext(ctx, meetingID, seg.Speaker, strings.TrimSpace(seg.Text), seg.Timestamp); err != nil {
			return fmt.Errorf("append segment for meeting %s: %w", meetingID, err)
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (meeting.Meeting, error) {
	var m meeting.Meeting
	var status, suggestions, summary, createdAt, updatedAt string
	var endedAt sql.NullString

	if err := row.Scan(&m.ID, &m.Title, &m.OwnerEmail, &status, &m.AudioRef, &m.Language, &m.Notes, &m.Template,
		&suggestions, &summary, &m.Error, &createdAt, &updatedAt, &endedAt); err != nil {
		return meeting.Meeting{}, err
	}
	m.Status = meeting.Status(status)

	if suggestions != "" {
		if err := json.Unmarshal([]byte(suggestions), &m.Suggestions); err != nil {
			return meeting.Meeting{}, fmt.Errorf("decode suggestions of meeting %s: %w", m.ID, err)
		}
	}
	if summary != "" {
		var sum meeting.Summary
		if err := json.Unmarshal([]byte(summary), &sum); err != nil {
			return meeting.Meeting{}, fmt.Errorf("decode summary of meeting %s: %w", m.ID, err)
		}
		m.Summary = &sum
	}

	var err error
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return meeting.Meeting{}, fmt.Errorf("parse created_at of meeting %s: %w", m.ID, err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return meeting.Meeting{}, fmt.Errorf("parse updated_at of meeting %s: %w", m.ID, err)
	}
	if endedAt.Valid {
		parsed, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return meeting.Meeting{}, fmt.Errorf("parse ended_at of meeting %s: %w", m.ID, err)
		}
		m.EndedAt = &parsed
	}

	return m, nil
}
