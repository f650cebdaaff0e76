package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/model"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ EscalationStore = (*SQLiteStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func OpenSQLite(path string) (*SQLiteStore, error) {

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {

	return s.db.Close()
}

func initSchema(db *sql.DB) error {

	if _, err := db.Exec(schemaEscalations); err != nil {
		return err
	}
	if _, err := db.Exec(schemaEscalationsIndex); err != nil {
		return err
	}

	return nil
}

const schemaEscalations = `
CREATE TABLE IF NOT EXISTS escalations (
	queue_id TEXT PRIMARY KEY,
	session_id TEXT,
	tool_name TEXT,
	tool_input TEXT,
	resolution TEXT,
	created_at DATETIME,
	resolved_at DATETIME
)`

const schemaEscalationsIndex = `
CREATE INDEX IF NOT EXISTS idx_escalations_resolution ON escalations(resolution, created_at)`

func (s *SQLiteStore) Enqueue(sessionID, toolName string, input json.RawMessage) (*model.EscalationRecord, error) {

	rec := &model.EscalationRecord{
		QueueID:    uuid.NewString(),
		SessionID:  sessionID,
		ToolName:   toolName,
		ToolInput:  append(json.RawMessage(nil), input...),
		Resolution: model.EscalationPending,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO escalations (
			queue_id, session_id, tool_name, tool_input, resolution, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		rec.QueueID,
		rec.SessionID,
		rec.ToolName,
		string(rec.ToolInput),
		string(rec.Resolution),
		rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// Resolve marks a pending record approved or denied. It returns nil with
// no error when the record is unknown or already resolved, mirroring the
// at-most-one-resolution contract.
func (s *SQLiteStore) Resolve(queueID string, resolution model.EscalationResolution) (*model.EscalationRecord, error) {

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE escalations SET resolution = ?, resolved_at = ?
		 WHERE queue_id = ? AND resolution = ?`,
		string(resolution),
		now,
		queueID,
		string(model.EscalationPending),
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}

	return s.get(queueID)
}

func (s *SQLiteStore) ListPending() ([]*model.EscalationRecord, error) {

	rows, err := s.db.Query(
		`SELECT queue_id, session_id, tool_name, tool_input, resolution, created_at, resolved_at
		 FROM escalations WHERE resolution = ? ORDER BY created_at`,
		string(model.EscalationPending),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.EscalationRecord
	for rows.Next() {
		rec, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

func (s *SQLiteStore) get(queueID string) (*model.EscalationRecord, error) {

	row := s.db.QueryRow(
		`SELECT queue_id, session_id, tool_name, tool_input, resolution, created_at, resolved_at
		 FROM escalations WHERE queue_id = ?`,
		queueID,
	)
	rec, err := scanEscalation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return rec, err
}

func scanEscalation(row rowScanner) (*model.EscalationRecord, error) {

	var rec model.EscalationRecord
	var input, resolution string
	var resolvedAt sql.NullTime
	err := row.Scan(
		&rec.QueueID,
		&rec.SessionID,
		&rec.ToolName,
		&input,
		&resolution,
		&rec.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ToolInput = json.RawMessage(input)
	rec.Resolution = model.EscalationResolution(resolution)
	if resolvedAt.Valid {
		rec.ResolvedAt = resolvedAt.Time
	}

	return &rec, nil
}
