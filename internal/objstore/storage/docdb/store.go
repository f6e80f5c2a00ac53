// Package docdb implements the "Document DB" storage provider over
// PostgreSQL: a single table partitioned by class_id realizes one logical
// collection per class, the id column mapping to the document id. Grounded
// on the teacher's pkg/storage/postgres BaseStore/Querier/TxFromContext
// pattern and internal/platform/database's sql.Open("postgres", …) + ping.
package docdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/elementstore/objstore/internal/apierror"
	"github.com/elementstore/objstore/internal/objstore/storage"
)

// Schema is the DDL applied once at startup (idempotent via IF NOT EXISTS),
// mirroring the teacher's embedded migrations.Apply shape but inlined since
// this provider has exactly one table.
const Schema = `
CREATE TABLE IF NOT EXISTS objstore_documents (
	class_id   TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (class_id, id)
);
CREATE INDEX IF NOT EXISTS objstore_documents_class_idx ON objstore_documents (class_id);
`

// Open connects to dsn, verifies connectivity, and applies Schema.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apierror.IOError("open postgres", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apierror.IOError("ping postgres", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, apierror.IOError("apply schema", err)
	}
	return db, nil
}

// Store is a PostgreSQL-backed storage.Provider.
type Store struct {
	db *sql.DB
}

// New wraps an already-open, already-migrated *sql.DB.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Get implements storage.Provider.
func (s *Store) Get(ctx context.Context, classID, id string) (storage.Object, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM objstore_documents WHERE class_id = $1 AND id = $2`, classID, id)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, apierror.IOError("get document", err)
	}
	obj, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// List implements storage.Provider.
func (s *Store) List(ctx context.Context, classID string) ([]storage.Object, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM objstore_documents WHERE class_id = $1`, classID)
	if err != nil {
		return nil, apierror.IOError("list documents", err)
	}
	defer rows.Close()

	var out []storage.Object
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, apierror.IOError("scan document", err)
		}
		obj, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.IOError("iterate documents", err)
	}
	return out, nil
}

// Put implements storage.Provider as an upsert.
func (s *Store) Put(ctx context.Context, classID, id string, obj storage.Object) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return apierror.IOError("encode document", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO objstore_documents (class_id, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (class_id, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, classID, id, raw)
	if err != nil {
		return apierror.IOError("put document", err)
	}
	return nil
}

// Delete implements storage.Provider.
func (s *Store) Delete(ctx context.Context, classID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objstore_documents WHERE class_id = $1 AND id = $2`, classID, id)
	if err != nil {
		return false, apierror.IOError("delete document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apierror.IOError("delete document rows affected", err)
	}
	return n > 0, nil
}

// Exists implements storage.Provider.
func (s *Store) Exists(ctx context.Context, classID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM objstore_documents WHERE class_id = $1)`, classID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, apierror.IOError("check class exists", err)
	}
	return exists, nil
}

// Drop implements storage.Provider.
func (s *Store) Drop(ctx context.Context, classID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objstore_documents WHERE class_id = $1`, classID)
	if err != nil {
		return false, apierror.IOError("drop class", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apierror.IOError("drop class rows affected", err)
	}
	return n > 0, nil
}

// Init implements storage.Provider; the shared table always exists once
// Open has run, so there is nothing class-specific to create.
func (s *Store) Init(_ context.Context, _ string) error { return nil }

func decode(raw []byte) (storage.Object, error) {
	var obj storage.Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apierror.IOError("decode document", fmt.Errorf("%w", err))
	}
	return obj, nil
}
