package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xrash/smetrics"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// UpsertRepository inserts the repository or refreshes the mutable fields
// of an existing row with the same path, returning its id.
func (s *Store) UpsertRepository(ctx context.Context, repo *Repository) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var id int64
	err := s.write(ctx, func() error {
		existing, err := s.repoByPath(ctx, repo.Path)
		if err == nil {
			_, err = s.db.ExecContext(ctx, `
				UPDATE repositories
				SET name = ?, status = ?, source = ?, vault = ?,
				    remote_url = ?, remote_branch = ?, shallow = ?
				WHERE id = ?`,
				repo.Name, string(repo.Status), string(repo.Source), repo.Vault,
				repo.RemoteURL, repo.RemoteBranch, boolToInt(repo.Shallow),
				existing.ID)
			id = existing.ID
			return err
		}
		if !kerrors.IsCode(err, kerrors.CodeRepoNotFound) {
			return err
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO repositories
				(name, path, status, source, vault, remote_url, remote_branch,
				 shallow, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			repo.Name, repo.Path, string(repo.Status), string(repo.Source),
			repo.Vault, repo.RemoteURL, repo.RemoteBranch,
			boolToInt(repo.Shallow), time.Now().Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	repo.ID = id
	return id, nil
}

// RepositoryByName resolves a repository by display name. Unknown names
// return RepoNotFound carrying the closest existing name as a suggestion.
func (s *Store) RepositoryByName(ctx context.Context, name string) (*Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, repoSelect+` WHERE name = ?`, name)
	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		closest, cerr := s.closestRepoName(ctx, name)
		if cerr != nil {
			closest = ""
		}
		return nil, kerrors.RepoNotFound(name, closest)
	}
	if err != nil {
		return nil, fmt.Errorf("loading repository %s: %w", name, err)
	}
	return repo, nil
}

// RepositoryByPath resolves a repository by canonical root path.
func (s *Store) RepositoryByPath(ctx context.Context, path string) (*Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.repoByPath(ctx, path)
}

func (s *Store) repoByPath(ctx context.Context, path string) (*Repository, error) {
	row := s.db.QueryRowContext(ctx, repoSelect+` WHERE path = ?`, path)
	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return nil, kerrors.RepoNotFound(path, "")
	}
	if err != nil {
		return nil, fmt.Errorf("loading repository at %s: %w", path, err)
	}
	return repo, nil
}

// Repositories lists all repositories ordered by name.
func (s *Store) Repositories(ctx context.Context) ([]*Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, repoSelect+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var repos []*Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// RemoteRepositories lists repositories of remote origin, for sync --all
// and the portable config export.
func (s *Store) RemoteRepositories(ctx context.Context) ([]*Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, repoSelect+` WHERE source = ? ORDER BY name`, string(SourceRemote))
	if err != nil {
		return nil, fmt.Errorf("listing remote repositories: %w", err)
	}
	defer rows.Close()

	var repos []*Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// SetRepositoryStatus updates the lifecycle status; a non-empty lastErr is
// recorded alongside (used with StatusError).
func (s *Store) SetRepositoryStatus(ctx context.Context, id int64, status RepoStatus, lastErr string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE repositories SET status = ?, last_error = ? WHERE id = ?`,
			string(status), lastErr, id)
		return err
	})
}

// FinishIndexing marks a successful run: status ready, counts refreshed,
// last_indexed_at set to now.
func (s *Store) FinishIndexing(ctx context.Context, id int64, fileCount, totalBytes int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE repositories
			SET status = ?, file_count = ?, total_size_bytes = ?,
			    last_indexed_at = ?, last_error = ''
			WHERE id = ?`,
			string(StatusReady), fileCount, totalBytes, time.Now().Unix(), id)
		return err
	})
}

// SetRepositorySynced records a successful remote sync.
func (s *Store) SetRepositorySynced(ctx context.Context, id int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE repositories SET last_synced_at = ? WHERE id = ?`,
			time.Now().Unix(), id)
		return err
	})
}

// SetRepositoryVault records the detected vault kind.
func (s *Store) SetRepositoryVault(ctx context.Context, id int64, vault string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE repositories SET vault = ? WHERE id = ?`, vault, id)
		return err
	})
}

// DeleteRepository removes the repository and everything hanging off it:
// files, content rows, markdown metadata, tags, links, and embeddings.
func (s *Store) DeleteRepository(ctx context.Context, id int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.write(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		// The FTS table has no foreign key, so clear it explicitly;
		// the relational tables cascade from files.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM contents
			WHERE file_id IN (SELECT id FROM files WHERE repo_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE repo_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	s.dropVectorIndex()
	return nil
}

// closestRepoName returns the existing name most similar to the requested
// one, or empty when nothing is close enough to suggest.
func (s *Store) closestRepoName(ctx context.Context, name string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM repositories`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	best := ""
	bestScore := 0.0
	for rows.Next() {
		var candidate string
		if err := rows.Scan(&candidate); err != nil {
			return "", err
		}
		score := smetrics.JaroWinkler(name, candidate, 0.7, 4)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < 0.75 {
		return "", rows.Err()
	}
	return best, rows.Err()
}

const repoSelect = `
	SELECT id, name, path, status, source, vault, remote_url, remote_branch,
	       shallow, file_count, total_size_bytes, created_at,
	       last_indexed_at, last_synced_at, last_error
	FROM repositories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*Repository, error) {
	var (
		repo      Repository
		status    string
		source    string
		shallow   int
		createdAt int64
		indexedAt sql.NullInt64
		syncedAt  sql.NullInt64
	)
	err := row.Scan(&repo.ID, &repo.Name, &repo.Path, &status, &source,
		&repo.Vault, &repo.RemoteURL, &repo.RemoteBranch, &shallow,
		&repo.FileCount, &repo.TotalSizeBytes, &createdAt,
		&indexedAt, &syncedAt, &repo.LastError)
	if err != nil {
		return nil, err
	}

	repo.Status = RepoStatus(status)
	repo.Source = SourceKind(source)
	repo.Shallow = shallow != 0
	repo.CreatedAt = time.Unix(createdAt, 0)
	if indexedAt.Valid {
		t := time.Unix(indexedAt.Int64, 0)
		repo.LastIndexedAt = &t
	}
	if syncedAt.Valid {
		t := time.Unix(syncedAt.Int64, 0)
		repo.LastSyncedAt = &t
	}
	return &repo, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
