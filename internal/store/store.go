// Package store persists validated code artifacts in SQLite so a restarted
// process can replay generation-free for queries it has already answered.
// Results are not persisted; data changes between runs, code does not have
// to.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"tabletalk/internal/cache"
)

// ErrNotFound marks a fingerprint with no stored artifact.
var ErrNotFound = errors.New("store: artifact not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS artifacts (
	fingerprint    TEXT PRIMARY KEY,
	artifact_id    TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	code           TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_version ON artifacts(schema_version);
`

// ArtifactStore is a write-through persistence layer under the result cache.
type ArtifactStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the artifact database at path.
func Open(path string, logger *zap.Logger) (*ArtifactStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &ArtifactStore{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *ArtifactStore) Close() error {
	return s.db.Close()
}

// Put writes one artifact, replacing any previous artifact for the same
// fingerprint.
func (s *ArtifactStore) Put(ctx context.Context, a cache.Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (fingerprint, artifact_id, schema_version, code, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		   artifact_id = excluded.artifact_id,
		   schema_version = excluded.schema_version,
		   code = excluded.code,
		   created_at = excluded.created_at`,
		string(a.Fingerprint), a.ID, a.SchemaVersion, a.Code, a.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: put artifact: %w", err)
	}
	return nil
}

// Get returns the artifact for fp generated against exactly schemaVersion.
// A row from another version is treated as absent: stale code must never be
// replayed against a schema it was not generated for.
func (s *ArtifactStore) Get(ctx context.Context, fp cache.Fingerprint, schemaVersion uint64) (cache.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT artifact_id, schema_version, code, created_at
		 FROM artifacts WHERE fingerprint = ?`, string(fp))

	var a cache.Artifact
	var createdAt int64
	err := row.Scan(&a.ID, &a.SchemaVersion, &a.Code, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Artifact{}, ErrNotFound
	}
	if err != nil {
		return cache.Artifact{}, fmt.Errorf("store: get artifact: %w", err)
	}
	if a.SchemaVersion != schemaVersion {
		return cache.Artifact{}, ErrNotFound
	}
	a.Fingerprint = fp
	a.CreatedAt = time.Unix(createdAt, 0)
	return a, nil
}

// PruneOlderThan deletes artifacts generated against schema versions below
// v. Called from the registry's version-change notification.
func (s *ArtifactStore) PruneOlderThan(ctx context.Context, v uint64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE schema_version < ?`, v)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned stale artifacts", zap.Int64("count", n), zap.Uint64("schema_version", v))
	}
	return n, nil
}

// Count returns the number of stored artifacts.
func (s *ArtifactStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
