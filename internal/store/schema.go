package store

import (
	"context"
	"database/sql"
	"fmt"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// schemaVersion is the version this build writes. Migrations below are
// append-only: released steps are never edited, only followed.
const schemaVersion = 3

// migrations holds one DDL batch per schema step. Step N migrates a
// version N-1 database to version N.
var migrations = []string{
	// v1: repositories, files, and the FTS5 content index.
	`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS repositories (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		name             TEXT NOT NULL UNIQUE,
		path             TEXT NOT NULL UNIQUE,
		status           TEXT NOT NULL DEFAULT 'pending',
		source           TEXT NOT NULL DEFAULT 'local',
		vault            TEXT NOT NULL DEFAULT 'generic',
		remote_url       TEXT NOT NULL DEFAULT '',
		remote_branch    TEXT NOT NULL DEFAULT '',
		shallow          INTEGER NOT NULL DEFAULT 0,
		file_count       INTEGER NOT NULL DEFAULT 0,
		total_size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL,
		last_indexed_at  INTEGER,
		last_synced_at   INTEGER,
		last_error       TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS files (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id      INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		rel_path     TEXT NOT NULL,
		size         INTEGER NOT NULL,
		mtime        INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		file_type    TEXT NOT NULL DEFAULT '',
		indexed_at   INTEGER NOT NULL,
		UNIQUE (repo_id, rel_path)
	);
	CREATE INDEX IF NOT EXISTS idx_files_repo ON files(repo_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS contents USING fts5(
		file_id UNINDEXED,
		content,
		tokenize='porter unicode61'
	);
	`,

	// v2: markdown structure: metadata plus normalized tag and link edges
	// so backlink and tag queries need no JSON parsing.
	`
	CREATE TABLE IF NOT EXISTS markdown_meta (
		file_id  INTEGER PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
		title    TEXT NOT NULL DEFAULT '',
		tags     TEXT NOT NULL DEFAULT '[]',
		links    TEXT NOT NULL DEFAULT '[]',
		headings TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS tags (
		file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		tag     TEXT NOT NULL,
		PRIMARY KEY (file_id, tag)
	);
	CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);

	CREATE TABLE IF NOT EXISTS links (
		source_file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		target_stem    TEXT NOT NULL,
		PRIMARY KEY (source_file_id, target_stem)
	);
	CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_stem);
	`,

	// v3: embedding chunks for semantic search.
	`
	CREATE TABLE IF NOT EXISTS embeddings (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id      INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		chunk_index  INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset   INTEGER NOT NULL,
		chunk_text   TEXT NOT NULL,
		embedding    BLOB NOT NULL,
		model        TEXT NOT NULL DEFAULT '',
		UNIQUE (file_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_file ON embeddings(file_id);
	`,
}

// migrate walks the ladder from the stored version to schemaVersion, one
// transaction per step. It never downgrades: a database written by a newer
// build aborts the open with the data untouched.
func (s *Store) migrate(ctx context.Context) error {
	current, err := s.currentVersion(ctx)
	if err != nil {
		return kerrors.MigrationFailed(0, schemaVersion, err)
	}
	if current > schemaVersion {
		return kerrors.MigrationFailed(current, schemaVersion,
			fmt.Errorf("database schema v%d is newer than this build supports", current))
	}
	if current == schemaVersion {
		return nil
	}

	for next := current + 1; next <= schemaVersion; next++ {
		if err := s.applyStep(ctx, next); err != nil {
			return kerrors.MigrationFailed(next-1, next, err)
		}
		s.logger.Info("schema_migrated", "from", next-1, "to", next)
	}
	return nil
}

func (s *Store) applyStep(ctx context.Context, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migrations[version-1]); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) currentVersion(ctx context.Context) (int, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}

// SchemaVersion reports the version of the open database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.currentVersion(ctx)
}
