package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/deepsim/internal/storage"
)

var (
	ErrUnknownSession = errors.New("dataset: unknown session")
	ErrUnknownField   = errors.New("dataset: unknown field")
	ErrFieldShape     = errors.New("dataset: field data does not match its shape")
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	environment    TEXT NOT NULL,
	instance_id    INTEGER NOT NULL,
	instance_count INTEGER NOT NULL,
	mode           TEXT NOT NULL DEFAULT '',
	encoding       TEXT NOT NULL DEFAULT '',
	output_fill    TEXT NOT NULL DEFAULT '',
	started_at     TEXT NOT NULL,
	ended_at       TEXT
);

CREATE TABLE IF NOT EXISTS fields (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	shape      TEXT NOT NULL,
	PRIMARY KEY (session_id, name)
);

CREATE TABLE IF NOT EXISTS samples (
	session_id TEXT NOT NULL,
	step       INTEGER NOT NULL,
	field      TEXT NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (session_id, step, field),
	FOREIGN KEY (session_id, field) REFERENCES fields(session_id, name) ON DELETE CASCADE
);
`

// fixed width so the text column sorts chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FieldSpec names a sample array and fixes its shape for a session.
type FieldSpec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

func (f FieldSpec) Len() int {
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// Session is one worker run feeding the dataset.
type Session struct {
	ID            string      `json:"id"`
	Environment   string      `json:"environment"`
	InstanceID    int         `json:"instance_id"`
	InstanceCount int         `json:"instance_count"`
	Mode          string      `json:"mode"`
	Encoding      string      `json:"encoding"`
	OutputFill    string      `json:"output_fill"`
	StartedAt     time.Time   `json:"started_at"`
	EndedAt       *time.Time  `json:"ended_at,omitempty"`
	Fields        []FieldSpec `json:"fields"`
	Samples       int         `json:"samples"`
}

// Record is the value of one field at one step.
type Record struct {
	Step int       `json:"step"`
	Data []float64 `json:"data"`
}

// Store keeps training samples in SQLite.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.Open(ctx, path, schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSession registers a session and its fields and returns its id. The
// ID, StartedAt and Samples of sess are ignored.
func (s *Store) BeginSession(ctx context.Context, sess Session) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, environment, instance_id, instance_count, mode, encoding, output_fill, started_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sess.Environment, sess.InstanceID, sess.InstanceCount, sess.Mode, sess.Encoding, sess.OutputFill, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	for _, f := range sess.Fields {
		shape, err := json.Marshal(f.Shape)
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO fields (session_id, name, shape) VALUES (?, ?, ?)`, id, f.Name, string(shape)); err != nil {
			return "", fmt.Errorf("failed to insert field %s: %w", f.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) EndSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

// AddSample stores the fields of one step. Every value must belong to a
// field of the session and match its shape.
func (s *Store) AddSample(ctx context.Context, sessionID string, step int, values map[string][]float64) error {
	fields, err := s.fields(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	shapes := make(map[string]FieldSpec, len(fields))
	for _, f := range fields {
		shapes[f.Name] = f
	}
	for name, data := range values {
		spec, ok := shapes[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		if len(data) != spec.Len() {
			return fmt.Errorf("%w: %s has %d values, shape %v", ErrFieldShape, name, len(data), spec.Shape)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for name, data := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO samples (session_id, step, field, data) VALUES (?, ?, ?, ?)`,
			sessionID, step, name, storage.EncodeFloats(data))
		if err != nil {
			return fmt.Errorf("failed to insert %s at step %d: %w", name, step, err)
		}
	}
	return tx.Commit()
}

// Sessions lists every session, oldest first, with its fields and sample
// count.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.environment, s.instance_id, s.instance_count, s.mode, s.encoding, s.output_fill, s.started_at, s.ended_at,
		       (SELECT COUNT(DISTINCT step) FROM samples WHERE session_id = s.id)
		FROM sessions s ORDER BY s.started_at, s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var started string
		var ended sql.NullString
		if err := rows.Scan(&sess.ID, &sess.Environment, &sess.InstanceID, &sess.InstanceCount,
			&sess.Mode, &sess.Encoding, &sess.OutputFill, &started, &ended, &sess.Samples); err != nil {
			return nil, err
		}
		if sess.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("session %s: %w", sess.ID, err)
		}
		if ended.Valid {
			t, err := time.Parse(timeLayout, ended.String)
			if err != nil {
				return nil, fmt.Errorf("session %s: %w", sess.ID, err)
			}
			sess.EndedAt = &t
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range out {
		if out[i].Fields, err = s.fields(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Session looks up one session by id or unique id prefix.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	all, err := s.Sessions(ctx)
	if err != nil {
		return Session{}, err
	}
	var found []Session
	for _, sess := range all {
		if sess.ID == id {
			return sess, nil
		}
		if len(id) > 0 && len(sess.ID) >= len(id) && sess.ID[:len(id)] == id {
			found = append(found, sess)
		}
	}
	if len(found) != 1 {
		return Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return found[0], nil
}

// Samples returns the values of one field in step order.
func (s *Store) Samples(ctx context.Context, sessionID, field string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, data FROM samples WHERE session_id = ? AND field = ? ORDER BY step`, sessionID, field)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var blob []byte
		if err := rows.Scan(&rec.Step, &blob); err != nil {
			return nil, err
		}
		if rec.Data, err = storage.DecodeFloats(blob); err != nil {
			return nil, fmt.Errorf("step %d: %w", rec.Step, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count is the number of stored steps over all sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT DISTINCT session_id, step FROM samples)`).Scan(&n)
	return n, err
}

func (s *Store) fields(ctx context.Context, sessionID string) ([]FieldSpec, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, shape FROM fields WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FieldSpec
	for rows.Next() {
		var f FieldSpec
		var shape string
		if err := rows.Scan(&f.Name, &shape); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(shape), &f.Shape); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
