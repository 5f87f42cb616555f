// ABOUTME: SQLite implementation of the audit ledger using modernc.org/sqlite
// ABOUTME: WAL mode, automatic schema creation, newest-first listing

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path. Parent directories
// are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	memory := path == MemoryPath
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if memory {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	kinds := make([]string, len(ValidKinds))
	for i, k := range ValidKinds {
		kinds[i] = "'" + string(k) + "'"
	}

	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			event_id      TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			connection_id TEXT,
			self_id       INTEGER,
			session_key   TEXT,
			detail_json   TEXT,
			created_at    TEXT NOT NULL,

			CHECK (kind IN (` + strings.Join(kinds, ", ") + `))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_events_kind ON audit_events(kind, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_events_session ON audit_events(session_key, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent appends e, filling in ID and CreatedAt when unset.
func (s *SQLiteStore) RecordEvent(ctx context.Context, e *AuditEvent) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var detailJSON *string
	if len(e.Detail) > 0 {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_id, kind, connection_id, self_id, session_key, detail_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		string(e.Kind),
		nullString(e.ConnectionID),
		nullInt(e.SelfID),
		nullString(e.SessionKey),
		detailJSON,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}

	s.logger.Debug("recorded audit event",
		"id", e.ID,
		"kind", e.Kind,
		"connection_id", e.ConnectionID,
		"session_key", e.SessionKey,
	)
	return nil
}

// ListEvents returns events newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, f EventFilter) ([]*AuditEvent, error) {
	query := `
		SELECT event_id, kind, connection_id, self_id, session_key, detail_json, created_at
		FROM audit_events
		WHERE (? = '' OR kind = ?)
		  AND (? = '' OR session_key = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		string(f.Kind), string(f.Kind),
		f.SessionKey, f.SessionKey,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	events := []*AuditEvent{}
	for rows.Next() {
		var (
			e            AuditEvent
			kind         string
			connectionID sql.NullString
			selfID       sql.NullInt64
			sessionKey   sql.NullString
			detailJSON   sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&e.ID, &kind, &connectionID, &selfID, &sessionKey, &detailJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}

		e.Kind = EventKind(kind)
		e.ConnectionID = connectionID.String
		e.SelfID = selfID.Int64
		e.SessionKey = sessionKey.String
		if detailJSON.Valid {
			if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling audit detail: %w", err)
			}
		}
		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
