// Package index drives the indexing pipeline: discovery, incremental
// diffing, reading, markdown analysis, embedding, and batched writes
// into the store.
package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kdex-dev/kdex/internal/config"
	"github.com/kdex-dev/kdex/internal/embed"
	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/scan"
	"github.com/kdex-dev/kdex/internal/store"
	"github.com/kdex-dev/kdex/internal/vault"
)

// Progress is one snapshot handed to the progress callback. Total grows
// while discovery is still running.
type Progress struct {
	Total     int
	Processed int
	Skipped   int
	Path      string
	Bytes     int64
	Elapsed   time.Duration
}

// Options configures a single indexing run.
type Options struct {
	// Force reindexes every file regardless of the stored snapshot.
	Force bool

	// Paths scopes the run to these repo-relative paths; the watcher uses
	// this to index just a change set. Empty means the whole tree.
	Paths []string

	// Progress, when set, is called as files complete. It runs on the
	// writer goroutine and must not block.
	Progress func(Progress)
}

// Result summarizes a completed run. Unchanged includes suspect files
// whose content hash matched (mtime refreshed only).
type Result struct {
	RepoName  string
	Total     int
	New       int
	Changed   int
	Unchanged int
	Deleted   int
	Skipped   int
	Chunks    int
	Bytes     int64
	Duration  time.Duration
}

// RegisterOptions describe the repository row created by Register.
type RegisterOptions struct {
	// Name overrides the default (base name of the root).
	Name string

	// Source marks the repository local or remote; empty means local.
	Source store.SourceKind

	// Remote clone metadata, recorded for sync.
	RemoteURL    string
	RemoteBranch string
	Shallow      bool
}

// Indexer runs the scan, read, analyze, embed, write pipeline against
// one repository at a time.
type Indexer struct {
	store    *store.Store
	cfg      *config.Config
	embedder embed.Embedder
	walker   *scan.Walker
	logger   *slog.Logger
}

// New creates an Indexer. A nil embedder disables chunk embedding; files
// are then indexed for lexical search only.
func New(st *store.Store, cfg *config.Config, embedder embed.Embedder) (*Indexer, error) {
	walker, err := scan.NewWalker()
	if err != nil {
		return nil, err
	}
	return &Indexer{
		store:    st,
		cfg:      cfg,
		embedder: embedder,
		walker:   walker,
		logger:   slog.Default(),
	}, nil
}

// Register validates root, detects its vault kind, and upserts the
// repository row with status pending. It does not index.
func (ix *Indexer) Register(ctx context.Context, root string, opts RegisterOptions) (*store.Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, kerrors.PathNotFound(root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsPermission(err) {
			return nil, kerrors.PermissionDenied(abs, err)
		}
		return nil, kerrors.PathNotFound(abs)
	}
	if !info.IsDir() {
		return nil, kerrors.NotADirectory(abs)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	name := opts.Name
	if name == "" {
		name = filepath.Base(abs)
	}
	source := opts.Source
	if source == "" {
		source = store.SourceLocal
	}

	repo := &store.Repository{
		Name:         name,
		Path:         abs,
		Status:       store.StatusPending,
		Source:       source,
		Vault:        string(vault.Detect(abs)),
		RemoteURL:    opts.RemoteURL,
		RemoteBranch: opts.RemoteBranch,
		Shallow:      opts.Shallow,
	}
	id, err := ix.store.UpsertRepository(ctx, repo)
	if err != nil {
		return nil, err
	}
	repo.ID = id
	return repo, nil
}

// IndexRepository runs the pipeline for one repository. On success the
// repository ends up ready with fresh counts; a fatal error leaves it in
// error state with partial data intact; cancellation leaves it pending so
// the next incremental run resumes from the committed batches.
func (ix *Indexer) IndexRepository(ctx context.Context, repo *store.Repository, opts Options) (*Result, error) {
	start := time.Now()
	logger := ix.logger.With(slog.String("repo", repo.Name))
	logger.Info("index_started",
		slog.String("path", repo.Path),
		slog.Bool("force", opts.Force),
		slog.Int("scoped_paths", len(opts.Paths)))

	res, err := ix.execute(ctx, repo, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = kerrors.Cancelled("index")
		}
		status, msg := store.StatusError, err.Error()
		if kerrors.IsCode(err, kerrors.CodeCancelled) {
			status, msg = store.StatusPending, ""
		}
		// The run context may already be dead; the status row still needs
		// to reflect the outcome.
		if serr := ix.store.SetRepositoryStatus(context.WithoutCancel(ctx), repo.ID, status, msg); serr != nil {
			logger.Warn("status_update_failed", slog.String("error", serr.Error()))
		}
		return nil, err
	}

	fileCount, totalBytes, err := ix.repoTotals(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	if err := ix.store.FinishIndexing(ctx, repo.ID, fileCount, totalBytes); err != nil {
		return nil, err
	}

	res.RepoName = repo.Name
	res.Duration = time.Since(start)
	logger.Info("index_complete",
		slog.Int("total", res.Total),
		slog.Int("new", res.New),
		slog.Int("changed", res.Changed),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("deleted", res.Deleted),
		slog.Int("skipped", res.Skipped),
		slog.Int("chunks", res.Chunks),
		slog.Int64("duration_ms", res.Duration.Milliseconds()))
	return res, nil
}

// execute marks the repository indexing and runs the pipeline, so every
// failure, including one on the status write itself, flows through the
// caller's error mapping.
func (ix *Indexer) execute(ctx context.Context, repo *store.Repository, opts Options) (*Result, error) {
	if err := ix.store.SetRepositoryStatus(ctx, repo.ID, store.StatusIndexing, ""); err != nil {
		return nil, err
	}
	return ix.run(ctx, repo, opts)
}

// repoTotals recounts files and bytes from the store so scoped runs keep
// the repository row accurate.
func (ix *Indexer) repoTotals(ctx context.Context, repoID int64) (int64, int64, error) {
	snapshot, err := ix.store.FileSnapshot(ctx, repoID)
	if err != nil {
		return 0, 0, err
	}
	var bytes int64
	for _, info := range snapshot {
		bytes += info.Size
	}
	return int64(len(snapshot)), bytes, nil
}

// RebuildEmbeddings re-chunks and re-embeds every stored file of a
// repository without touching the lexical index. Returns the number of
// files and chunks written.
func (ix *Indexer) RebuildEmbeddings(ctx context.Context, repo *store.Repository) (int, int, error) {
	if ix.embedder == nil {
		return 0, 0, kerrors.ModeUnavailable("semantic", "no embedder configured")
	}
	model := ix.embedder.ModelName()

	type job struct {
		fileID int64
		text   string
	}
	var jobs []job
	err := ix.store.EachFileContent(ctx, repo.ID, func(f *store.File, text string) error {
		jobs = append(jobs, job{fileID: f.ID, text: text})
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	var files, chunks int
	for _, j := range jobs {
		if ctx.Err() != nil {
			return files, chunks, kerrors.Cancelled("rebuild-embeddings")
		}
		recs, err := ix.embedChunks(ctx, j.text)
		if err != nil {
			return files, chunks, err
		}
		if err := ix.store.ReplaceChunks(ctx, j.fileID, model, recs); err != nil {
			return files, chunks, err
		}
		files++
		chunks += len(recs)
	}
	ix.logger.Info("embeddings_rebuilt",
		slog.String("repo", repo.Name),
		slog.Int("files", files),
		slog.Int("chunks", chunks))
	return files, chunks, nil
}

// embedChunks windows text and embeds every window in one batch call.
func (ix *Indexer) embedChunks(ctx context.Context, text string) ([]store.ChunkRecord, error) {
	chunks := embed.ChunkText(text)
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	recs := make([]store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		recs[i] = store.ChunkRecord{
			Index:  c.Ordinal,
			Start:  c.Start,
			End:    c.End,
			Text:   c.Text,
			Vector: vectors[i],
		}
	}
	return recs, nil
}
