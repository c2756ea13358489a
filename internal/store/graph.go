package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
)

// PathStem normalizes a file path to the stem wiki-links resolve against:
// the base name without extension, lowercased.
func PathStem(p string) string {
	base := path.Base(p)
	if ext := path.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return strings.ToLower(base)
}

// AllTags returns tag frequencies across all repositories, most frequent
// first.
func (s *Store) AllTags(ctx context.Context) ([]TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) AS n
		FROM tags
		GROUP BY tag
		ORDER BY n DESC, tag`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var tags []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		tags = append(tags, tc)
	}
	return tags, rows.Err()
}

// FileIDsWithTag returns the set of files carrying the tag, for callers
// that filter outside SQL.
func (s *Store) FileIDsWithTag(ctx context.Context, tag string) (map[int64]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id FROM tags WHERE tag = ?`, strings.ToLower(tag))
	if err != nil {
		return nil, fmt.Errorf("listing tagged files: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Backlinks lists the files whose wiki-links point at the given target.
// The target may be a path or a bare note name; it is reduced to a stem.
func (s *Store) Backlinks(ctx context.Context, target string) ([]LinkEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	stem := PathStem(target)
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rel_path, r.name, l.target_stem
		FROM links l
		JOIN files f ON f.id = l.source_file_id
		JOIN repositories r ON r.id = f.repo_id
		WHERE l.target_stem = ?
		ORDER BY r.name, f.rel_path`, stem)
	if err != nil {
		return nil, fmt.Errorf("listing backlinks: %w", err)
	}
	defer rows.Close()

	var edges []LinkEdge
	for rows.Next() {
		var e LinkEdge
		if err := rows.Scan(&e.SourcePath, &e.SourceRepo, &e.TargetStem); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// AllLinks returns every wiki-link edge in the store.
func (s *Store) AllLinks(ctx context.Context) ([]LinkEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rel_path, r.name, l.target_stem
		FROM links l
		JOIN files f ON f.id = l.source_file_id
		JOIN repositories r ON r.id = f.repo_id
		ORDER BY r.name, f.rel_path, l.target_stem`)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	defer rows.Close()

	var edges []LinkEdge
	for rows.Next() {
		var e LinkEdge
		if err := rows.Scan(&e.SourcePath, &e.SourceRepo, &e.TargetStem); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// MarkdownStems returns the stem set of all indexed markdown files, used
// to decide which link targets actually exist.
func (s *Store) MarkdownStems(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rel_path FROM files WHERE file_type = 'markdown'`)
	if err != nil {
		return nil, fmt.Errorf("listing markdown stems: %w", err)
	}
	defer rows.Close()

	stems := make(map[string]struct{})
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			return nil, err
		}
		stems[PathStem(rel)] = struct{}{}
	}
	return stems, rows.Err()
}

// Orphans lists markdown files that no other file links to.
func (s *Store) Orphans(ctx context.Context) ([]OrphanFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	targets := make(map[string]struct{})
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT target_stem FROM links`)
	if err != nil {
		return nil, fmt.Errorf("listing link targets: %w", err)
	}
	for rows.Next() {
		var stem string
		if err := rows.Scan(&stem); err != nil {
			rows.Close()
			return nil, err
		}
		targets[stem] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT f.rel_path, r.name
		FROM files f
		JOIN repositories r ON r.id = f.repo_id
		WHERE f.file_type = 'markdown'
		ORDER BY r.name, f.rel_path`)
	if err != nil {
		return nil, fmt.Errorf("listing markdown files: %w", err)
	}
	defer rows.Close()

	var orphans []OrphanFile
	for rows.Next() {
		var o OrphanFile
		if err := rows.Scan(&o.RelPath, &o.RepoName); err != nil {
			return nil, err
		}
		if _, linked := targets[PathStem(o.RelPath)]; !linked {
			orphans = append(orphans, o)
		}
	}
	return orphans, rows.Err()
}

// Stats summarizes the store for the stats command and MCP list output.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	st := &Stats{FilesByType: make(map[string]int)}

	singles := []struct {
		dest  *int
		query string
	}{
		{&st.Repositories, `SELECT COUNT(*) FROM repositories`},
		{&st.Files, `SELECT COUNT(*) FROM files`},
		{&st.Tags, `SELECT COUNT(DISTINCT tag) FROM tags`},
		{&st.Links, `SELECT COUNT(*) FROM links`},
		{&st.EmbeddedFiles, `SELECT COUNT(DISTINCT file_id) FROM embeddings`},
		{&st.Chunks, `SELECT COUNT(*) FROM embeddings`},
	}
	for _, q := range singles {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("collecting stats: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_type, COUNT(*) FROM files GROUP BY file_type`)
	if err != nil {
		return nil, fmt.Errorf("collecting type stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ft string
			n  int
		)
		if err := rows.Scan(&ft, &n); err != nil {
			return nil, err
		}
		if ft == "" {
			ft = "text"
		}
		st.FilesByType[ft] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	version, err := s.currentVersion(ctx)
	if err != nil {
		return nil, err
	}
	st.SchemaVersion = version

	if s.path != MemoryPath {
		if fi, err := os.Stat(s.path); err == nil {
			st.DBSizeBytes = fi.Size()
		}
	}
	return st, nil
}
