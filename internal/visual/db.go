package visual

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/san-kum/deepsim/internal/storage"
	"gonum.org/v1/gonum/spatial/r3"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	instance_id INTEGER NOT NULL,
	object_id   INTEGER NOT NULL,
	color       TEXT NOT NULL DEFAULT '',
	triangles   TEXT NOT NULL,
	positions   BLOB NOT NULL,
	PRIMARY KEY (instance_id, object_id)
);

CREATE TABLE IF NOT EXISTS updates (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	instance_id INTEGER NOT NULL,
	object_id   INTEGER NOT NULL,
	indices     TEXT NOT NULL,
	positions   BLOB NOT NULL,
	FOREIGN KEY (instance_id, object_id) REFERENCES objects(instance_id, object_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_updates_object ON updates(instance_id, object_id, id);
`

// DBSink stores meshes in a visualization database that a viewer can read
// while workers run. Several workers may share one file.
type DBSink struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// DBPath is the database file for a [dir, name] visualization spec.
func DBPath(dir, name string) string {
	return filepath.Join(dir, name+".db")
}

func OpenDBSink(ctx context.Context, dir, name string) (*DBSink, error) {
	path := DBPath(dir, name)
	db, err := storage.Open(ctx, path, schema)
	if err != nil {
		return nil, err
	}
	return &DBSink{db: db, path: path}, nil
}

func (s *DBSink) Path() string { return s.path }

// Init replaces the meshes of instanceID and drops its earlier updates.
func (s *DBSink) Init(ctx context.Context, instanceID int, objects []Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("failed to clear instance %d: %w", instanceID, err)
	}
	for _, o := range objects {
		tris, err := json.Marshal(o.Triangles)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO objects (instance_id, object_id, color, triangles, positions) VALUES (?, ?, ?, ?, ?)`,
			instanceID, o.ID, o.Color, string(tris), storage.EncodeFloats(Flatten(o.Positions)))
		if err != nil {
			return fmt.Errorf("failed to insert object %d: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

func (s *DBSink) Update(ctx context.Context, instanceID int, updates []Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range updates {
		if u.Empty() {
			continue
		}
		idx, err := json.Marshal(u.Indices)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO updates (instance_id, object_id, indices, positions) VALUES (?, ?, ?, ?)`,
			instanceID, u.ObjectID, string(idx), storage.EncodeFloats(Flatten(u.Positions)))
		if err != nil {
			return fmt.Errorf("failed to insert update for object %d: %w", u.ObjectID, err)
		}
	}
	return tx.Commit()
}

// Replay rebuilds the latest positions of an object from its initial mesh
// and every stored update. It also returns the number of updates applied.
func (s *DBSink) Replay(ctx context.Context, instanceID, objectID int) ([]r3.Vec, int, error) {
	return Replay(ctx, s.db, instanceID, objectID)
}

func (s *DBSink) Close() error {
	return s.db.Close()
}

// Replay reads an object from an open visualization database.
func Replay(ctx context.Context, db *sql.DB, instanceID, objectID int) ([]r3.Vec, int, error) {
	var blob []byte
	err := db.QueryRowContext(ctx,
		`SELECT positions FROM objects WHERE instance_id = ? AND object_id = ?`,
		instanceID, objectID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("%w: instance %d object %d", ErrUnknownObject, instanceID, objectID)
	}
	if err != nil {
		return nil, 0, err
	}
	flat, err := storage.DecodeFloats(blob)
	if err != nil {
		return nil, 0, err
	}
	positions, err := Unflatten(flat)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT indices, positions FROM updates WHERE instance_id = ? AND object_id = ? ORDER BY id`,
		instanceID, objectID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var idxText string
		if err := rows.Scan(&idxText, &blob); err != nil {
			return nil, 0, err
		}
		var indices []int
		if err := json.Unmarshal([]byte(idxText), &indices); err != nil {
			return nil, 0, fmt.Errorf("bad update indices: %w", err)
		}
		flat, err := storage.DecodeFloats(blob)
		if err != nil {
			return nil, 0, err
		}
		moved, err := Unflatten(flat)
		if err != nil {
			return nil, 0, err
		}
		if len(moved) != len(indices) {
			return nil, 0, fmt.Errorf("update has %d indices and %d positions", len(indices), len(moved))
		}
		for i, idx := range indices {
			if idx < 0 || idx >= len(positions) {
				return nil, 0, fmt.Errorf("update index %d out of range", idx)
			}
			positions[idx] = moved[i]
		}
		n++
	}
	return positions, n, rows.Err()
}
