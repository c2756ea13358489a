package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// Batch is a scoped write transaction. The indexer's writer goroutine owns
// one batch at a time, committing every batch_size files. A batch is not
// safe for concurrent use.
type Batch struct {
	s  *Store
	tx *sql.Tx

	selFile     *sql.Stmt
	insFile     *sql.Stmt
	updFile     *sql.Stmt
	delContents *sql.Stmt
	insContents *sql.Stmt

	// Whether this batch touched embeddings or removed files, requiring
	// the ANN index to be rebuilt after commit.
	dirtyVectors bool
}

// BeginBatch opens a write transaction with the hot statements prepared.
func (s *Store) BeginBatch(ctx context.Context) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var tx *sql.Tx
	err := s.write(ctx, func() error {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	b := &Batch{s: s, tx: tx}
	for _, p := range []struct {
		stmt **sql.Stmt
		sql  string
	}{
		{&b.selFile, `SELECT id FROM files WHERE repo_id = ? AND rel_path = ?`},
		{&b.insFile, `INSERT INTO files (repo_id, rel_path, size, mtime, content_hash, file_type, indexed_at)
		              VALUES (?, ?, ?, ?, ?, ?, ?)`},
		{&b.updFile, `UPDATE files SET size = ?, mtime = ?, content_hash = ?, file_type = ?, indexed_at = ?
		              WHERE id = ?`},
		{&b.delContents, `DELETE FROM contents WHERE file_id = ?`},
		{&b.insContents, `INSERT INTO contents (file_id, content) VALUES (?, ?)`},
	} {
		stmt, err := tx.PrepareContext(ctx, p.sql)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("preparing batch statement: %w", err)
		}
		*p.stmt = stmt
	}
	return b, nil
}

// Commit finishes the batch. The ANN index is dropped afterwards if the
// batch changed any vectors.
func (b *Batch) Commit() error {
	if err := classify(b.tx.Commit()); err != nil {
		return err
	}
	if b.dirtyVectors {
		b.s.dropVectorIndex()
	}
	return nil
}

// Rollback abandons the batch. Safe to call after a failed Commit.
func (b *Batch) Rollback() error {
	err := b.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// UpsertFile writes the file row, its content row, markdown metadata, and
// embedding chunks atomically within the batch, returning the file id.
// Existing rows for the same (repo, rel_path) are replaced.
func (b *Batch) UpsertFile(ctx context.Context, rec *FileRecord) (int64, error) {
	var fileID int64
	now := time.Now().Unix()

	err := b.selFile.QueryRowContext(ctx, rec.RepoID, rec.RelPath).Scan(&fileID)
	switch {
	case err == sql.ErrNoRows:
		res, err := b.insFile.ExecContext(ctx,
			rec.RepoID, rec.RelPath, rec.Size, rec.ModTime, rec.Hash, rec.FileType, now)
		if err != nil {
			return 0, classify(err)
		}
		fileID, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, classify(err)
	default:
		if _, err := b.updFile.ExecContext(ctx,
			rec.Size, rec.ModTime, rec.Hash, rec.FileType, now, fileID); err != nil {
			return 0, classify(err)
		}
	}

	// FTS5 has no REPLACE; delete then insert.
	if _, err := b.delContents.ExecContext(ctx, fileID); err != nil {
		return 0, classify(err)
	}
	if _, err := b.insContents.ExecContext(ctx, fileID, rec.Content); err != nil {
		return 0, classify(err)
	}

	if err := b.writeMarkdownMeta(ctx, fileID, rec); err != nil {
		return 0, classify(err)
	}

	// Content changed, so any previous chunks are stale even when the new
	// record carries none.
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM embeddings WHERE file_id = ?`, fileID); err != nil {
		return 0, classify(err)
	}
	b.dirtyVectors = true
	if len(rec.Chunks) > 0 {
		if err := insertChunks(ctx, b.tx, fileID, rec.Model, rec.Chunks); err != nil {
			return 0, classify(err)
		}
	}
	return fileID, nil
}

func (b *Batch) writeMarkdownMeta(ctx context.Context, fileID int64, rec *FileRecord) error {
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM markdown_meta WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM tags WHERE file_id = ?`, fileID); err != nil {
		return err
	}
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM links WHERE source_file_id = ?`, fileID); err != nil {
		return err
	}

	if rec.FileType != "markdown" {
		return nil
	}

	tags, err := json.Marshal(emptyIfNil(rec.Tags))
	if err != nil {
		return err
	}
	links, err := json.Marshal(emptyIfNil(rec.Links))
	if err != nil {
		return err
	}
	headings, err := json.Marshal(emptyIfNil(rec.Headings))
	if err != nil {
		return err
	}
	if _, err := b.tx.ExecContext(ctx, `
		INSERT INTO markdown_meta (file_id, title, tags, links, headings)
		VALUES (?, ?, ?, ?, ?)`,
		fileID, rec.Title, string(tags), string(links), string(headings)); err != nil {
		return err
	}

	for _, tag := range rec.Tags {
		if _, err := b.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tags (file_id, tag) VALUES (?, ?)`, fileID, tag); err != nil {
			return err
		}
	}
	for _, stem := range rec.Links {
		if _, err := b.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO links (source_file_id, target_stem) VALUES (?, ?)`, fileID, stem); err != nil {
			return err
		}
	}
	return nil
}

// TouchFile refreshes only the mtime of an unchanged file, used when a
// suspect file turned out to have the same hash.
func (b *Batch) TouchFile(ctx context.Context, fileID, mtime int64) error {
	_, err := b.tx.ExecContext(ctx, `UPDATE files SET mtime = ? WHERE id = ?`, mtime, fileID)
	return classify(err)
}

// DeleteFiles removes the named files and everything hanging off them.
func (b *Batch) DeleteFiles(ctx context.Context, repoID int64, relPaths []string) error {
	if len(relPaths) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(relPaths))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(relPaths)+1)
	args = append(args, repoID)
	for _, p := range relPaths {
		args = append(args, p)
	}

	// FTS rows first (no foreign key), then files; the rest cascades.
	if _, err := b.tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM contents WHERE file_id IN (
			SELECT id FROM files WHERE repo_id = ? AND rel_path IN (%s))`, placeholders),
		args...); err != nil {
		return classify(err)
	}
	if _, err := b.tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM files WHERE repo_id = ? AND rel_path IN (%s)`, placeholders),
		args...); err != nil {
		return classify(err)
	}
	b.dirtyVectors = true
	return nil
}

// FileSnapshot loads (rel_path → size, mtime, hash) for a repository, the
// input to the incremental diff.
func (s *Store) FileSnapshot(ctx context.Context, repoID int64) (map[string]FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rel_path, size, mtime, content_hash FROM files WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, fmt.Errorf("loading file snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]FileInfo)
	for rows.Next() {
		var (
			info FileInfo
			rel  string
		)
		if err := rows.Scan(&info.ID, &rel, &info.Size, &info.ModTime, &info.Hash); err != nil {
			return nil, err
		}
		snapshot[rel] = info
	}
	return snapshot, rows.Err()
}

// FilePaths lists the relative paths indexed for a repository.
func (s *Store) FilePaths(ctx context.Context, repoID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rel_path FROM files WHERE repo_id = ? ORDER BY rel_path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// FileByPath resolves a user-supplied path to an indexed file: exact
// relative path in any repository first, then an absolute path under a
// repository root, finally a path suffix. Ambiguous suffixes resolve to
// the first match by repository and path order.
func (s *Store) FileByPath(ctx context.Context, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	const sel = `
		SELECT f.id, f.repo_id, r.name, f.rel_path, f.size, f.mtime,
		       f.content_hash, f.file_type, f.indexed_at
		FROM files f
		JOIN repositories r ON r.id = f.repo_id`

	f, err := scanFile(s.db.QueryRowContext(ctx,
		sel+` WHERE f.rel_path = ? ORDER BY r.name LIMIT 1`, path))
	if err == nil {
		return f, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	if strings.HasPrefix(path, "/") {
		repos, err := s.reposForPrefix(ctx, path)
		if err != nil {
			return nil, err
		}
		for _, repo := range repos {
			rel := strings.TrimPrefix(path, repo.Path+"/")
			f, err := scanFile(s.db.QueryRowContext(ctx,
				sel+` WHERE f.repo_id = ? AND f.rel_path = ?`, repo.ID, rel))
			if err == nil {
				return f, nil
			}
			if err != sql.ErrNoRows {
				return nil, err
			}
		}
	}

	f, err = scanFile(s.db.QueryRowContext(ctx,
		sel+` WHERE f.rel_path LIKE '%/' || ? ORDER BY r.name, f.rel_path LIMIT 1`, path))
	if err == sql.ErrNoRows {
		return nil, kerrors.PathNotFound(path)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) reposForPrefix(ctx context.Context, path string) ([]*Repository, error) {
	rows, err := s.db.QueryContext(ctx, repoSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []*Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(path, repo.Path+"/") {
			matched = append(matched, repo)
		}
	}
	return matched, rows.Err()
}

// FileText returns the indexed (normalized) text of a file.
func (s *Store) FileText(ctx context.Context, fileID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM contents WHERE file_id = ?`, fileID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", kerrors.PathNotFound(fmt.Sprintf("file id %d", fileID))
	}
	if err != nil {
		return "", fmt.Errorf("loading file text: %w", err)
	}
	return text, nil
}

// FileIDs lists file ids, optionally scoped to one repository (repoID 0
// means all). Used by rebuild-embeddings to iterate without holding a
// result set open across writes.
func (s *Store) FileIDs(ctx context.Context, repoID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `SELECT id FROM files ORDER BY id`
	args := []any{}
	if repoID != 0 {
		query = `SELECT id FROM files WHERE repo_id = ? ORDER BY id`
		args = append(args, repoID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing file ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FileWithText loads a file row together with its indexed text.
func (s *Store) FileWithText(ctx context.Context, fileID int64) (*File, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, "", err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.repo_id, r.name, f.rel_path, f.size, f.mtime,
		       f.content_hash, f.file_type, f.indexed_at, c.content
		FROM files f
		JOIN repositories r ON r.id = f.repo_id
		JOIN contents c ON c.file_id = f.id
		WHERE f.id = ?`, fileID)

	var (
		f    File
		text string
	)
	err := row.Scan(&f.ID, &f.RepoID, &f.RepoName, &f.RelPath, &f.Size,
		&f.ModTime, &f.Hash, &f.FileType, &f.IndexedAt, &text)
	if err == sql.ErrNoRows {
		return nil, "", kerrors.PathNotFound(fmt.Sprintf("file id %d", fileID))
	}
	if err != nil {
		return nil, "", err
	}
	return &f, text, nil
}

// EachFileContent streams (file, text) pairs, optionally scoped to one
// repository (repoID 0 means all), ordered by repository and path. fn must
// not call back into the store: the result set holds the single connection.
func (s *Store) EachFileContent(ctx context.Context, repoID int64, fn func(f *File, text string) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := `
		SELECT f.id, f.repo_id, r.name, f.rel_path, f.size, f.mtime,
		       f.content_hash, f.file_type, f.indexed_at, c.content
		FROM files f
		JOIN repositories r ON r.id = f.repo_id
		JOIN contents c ON c.file_id = f.id`
	args := []any{}
	if repoID != 0 {
		query += ` WHERE f.repo_id = ?`
		args = append(args, repoID)
	}
	query += ` ORDER BY r.name, f.rel_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("streaming file contents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f    File
			text string
		)
		if err := rows.Scan(&f.ID, &f.RepoID, &f.RepoName, &f.RelPath, &f.Size,
			&f.ModTime, &f.Hash, &f.FileType, &f.IndexedAt, &text); err != nil {
			return err
		}
		if err := fn(&f, text); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanFile(row rowScanner) (*File, error) {
	var f File
	err := row.Scan(&f.ID, &f.RepoID, &f.RepoName, &f.RelPath, &f.Size,
		&f.ModTime, &f.Hash, &f.FileType, &f.IndexedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
