// Package recorder persists WebDriver BiDi wire traffic to SQLite.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

var errNilStore = errors.New("recorder: nil store")

// Frame kinds.
const (
	KindCommand   = "command"
	KindSuccess   = "success"
	KindError     = "error"
	KindEvent     = "event"
	KindMalformed = "malformed"
)

// Frame is one recorded wire frame. MessageID is 0 for events and
// malformed frames.
type Frame struct {
	ID         string
	Direction  transport.Direction
	Kind       string
	Method     string
	MessageID  uint64
	RecordedAt time.Time
	Data       []byte
}

// Classify fills Kind, Method and MessageID from Data.
func (f *Frame) Classify() {
	f.Kind, f.Method, f.MessageID = KindMalformed, "", 0
	if f.Direction == transport.Outbound {
		if cmd, err := protocol.ParseCommand(f.Data); err == nil {
			f.Kind, f.Method, f.MessageID = KindCommand, cmd.Method, cmd.ID
		}
		return
	}
	msg, err := protocol.ClassifyMessage(f.Data)
	if err != nil {
		return
	}
	f.Kind = string(msg.Type)
	f.Method = msg.Method
	if msg.IsResponse() {
		f.MessageID = msg.ID
	}
}

// Store owns the SQLite database of recorded frames.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init applies pragmas and the schema.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recorder: apply pragma %q: %w", stmt, err)
		}
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','1');`,
		`CREATE TABLE IF NOT EXISTS frames (
			id TEXT PRIMARY KEY,
			direction TEXT NOT NULL CHECK (direction IN ('in','out')),
			kind TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			message_id INTEGER NOT NULL DEFAULT 0,
			recorded_at INTEGER NOT NULL,
			data BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_method ON frames(method);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_message_id ON frames(message_id);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recorder: apply schema: %w", err)
		}
	}
	return nil
}

// Record inserts frames in one transaction.
func (s *Store) Record(ctx context.Context, frames ...Frame) error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	if len(frames) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frames(id, direction, kind, method, message_id, recorded_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		if _, err := stmt.ExecContext(ctx, f.ID, string(f.Direction), f.Kind, f.Method,
			int64(f.MessageID), f.RecordedAt.UnixMicro(), f.Data); err != nil {
			tx.Rollback()
			return fmt.Errorf("recorder: insert frame %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// Query filters Frames. Zero fields match everything.
type Query struct {
	Method    string
	MessageID uint64
	Limit     int
}

// Frames returns recorded frames in recording order.
func (s *Store) Frames(ctx context.Context, q Query) ([]Frame, error) {
	if s == nil || s.db == nil {
		return nil, errNilStore
	}
	stmt := `SELECT id, direction, kind, method, message_id, recorded_at, data FROM frames WHERE 1=1`
	var args []any
	if q.Method != "" {
		stmt += ` AND method = ?`
		args = append(args, q.Method)
	}
	if q.MessageID != 0 {
		stmt += ` AND message_id = ?`
		args = append(args, int64(q.MessageID))
	}
	stmt += ` ORDER BY id`
	if q.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var (
			f         Frame
			direction string
			messageID int64
			micros    int64
		)
		if err := rows.Scan(&f.ID, &direction, &f.Kind, &f.Method, &messageID, &micros, &f.Data); err != nil {
			return nil, err
		}
		f.Direction = transport.Direction(direction)
		f.MessageID = uint64(messageID)
		f.RecordedAt = time.UnixMicro(micros)
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Count returns the number of recorded frames.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errNilStore
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames;`).Scan(&n)
	return n, err
}
