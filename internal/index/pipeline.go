package index

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
	"github.com/kdex-dev/kdex/internal/markdown"
	"github.com/kdex-dev/kdex/internal/scan"
	"github.com/kdex-dev/kdex/internal/store"
)

// itemBuffer bounds the worker→writer channel. Workers block here when
// the writer falls behind, which is the pipeline's backpressure.
const itemBuffer = 64

type changeKind int

const (
	kindNew changeKind = iota
	kindChanged
	kindTouch
	kindUnchanged
	kindSkip
	kindDelete
)

// task is one candidate handed to a worker, with its stored snapshot
// entry when the file was indexed before.
type task struct {
	cand  *scan.Candidate
	prior *store.FileInfo
}

// writeItem is one unit drained by the writer goroutine.
type writeItem struct {
	kind    changeKind
	rec     *store.FileRecord // kindNew, kindChanged
	fileID  int64             // kindTouch
	mtime   int64             // kindTouch
	deletes []string          // kindDelete
	path    string
	reason  string // kindSkip
}

// run executes one pipeline pass: walk and diff on the dispatcher,
// read/analyze/embed on the workers, a single writer owning the store
// batch. The dispatcher and workers never touch the store.
func (ix *Indexer) run(ctx context.Context, repo *store.Repository, opts Options) (*Result, error) {
	snapshot, err := ix.store.FileSnapshot(ctx, repo.ID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)

	walkResults, err := ix.walker.Walk(gctx, scan.Options{
		Root:             repo.Path,
		IgnorePatterns:   ix.cfg.IgnorePatterns,
		RespectGitignore: true,
		Paths:            opts.Paths,
	})
	if err != nil {
		return nil, err
	}

	workers := runtime.NumCPU()
	tasks := make(chan task)
	items := make(chan writeItem, itemBuffer)
	var discovered atomic.Int64

	g.Go(func() error {
		defer close(tasks)
		return ix.dispatch(gctx, repo, opts, snapshot, walkResults, tasks, items, &discovered)
	})

	var working sync.WaitGroup
	working.Add(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer working.Done()
			for t := range tasks {
				item := ix.process(gctx, t, repo.ID, opts.Force)
				select {
				case items <- item:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		working.Wait()
		close(items)
	}()

	w := &writer{
		ix:        ix,
		repo:      repo,
		batchSize: ix.cfg.BatchSize,
		progress:  opts.Progress,
		started:   time.Now(),
		total:     &discovered,
	}
	g.Go(func() error {
		return w.drain(gctx, items)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, kerrors.Cancelled("index")
		}
		return nil, err
	}
	return w.result(), nil
}

// dispatch classifies walk results against the snapshot. Unchanged files
// short-circuit to the writer without a read; everything else becomes a
// worker task. After the walk it emits the deletion set: snapshot entries
// the walk never saw, restricted to opts.Paths on scoped runs.
func (ix *Indexer) dispatch(ctx context.Context, repo *store.Repository, opts Options,
	snapshot map[string]store.FileInfo, results <-chan scan.Result,
	tasks chan<- task, items chan<- writeItem, discovered *atomic.Int64) error {

	seen := make(map[string]struct{}, len(snapshot))

	for res := range results {
		if res.Error != nil {
			discovered.Add(1)
			if !send(ctx, items, writeItem{kind: kindSkip, reason: res.Error.Error()}) {
				return ctx.Err()
			}
			continue
		}
		c := res.File
		discovered.Add(1)
		seen[c.RelPath] = struct{}{}

		prior, known := snapshot[c.RelPath]
		if known && !opts.Force && prior.Size == c.Size && prior.ModTime == c.ModTime.Unix() {
			if !send(ctx, items, writeItem{kind: kindUnchanged, path: c.RelPath}) {
				return ctx.Err()
			}
			continue
		}

		t := task{cand: c}
		if known {
			p := prior
			t.prior = &p
		}
		select {
		case tasks <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	deletes := deletedPaths(snapshot, seen, opts.Paths)
	if len(deletes) > 0 {
		if !send(ctx, items, writeItem{kind: kindDelete, deletes: deletes}) {
			return ctx.Err()
		}
	}
	return nil
}

// deletedPaths returns snapshot paths the walk did not see. On scoped
// runs only the scoped paths are eligible; the rest of the tree was
// never walked and must not be treated as deleted.
func deletedPaths(snapshot map[string]store.FileInfo, seen map[string]struct{}, scope []string) []string {
	inScope := func(string) bool { return true }
	if len(scope) > 0 {
		scoped := make(map[string]struct{}, len(scope))
		for _, p := range scope {
			scoped[p] = struct{}{}
		}
		inScope = func(rel string) bool {
			if _, ok := scoped[rel]; ok {
				return true
			}
			// A scoped directory covers everything beneath it.
			for p := range scoped {
				if strings.HasPrefix(rel, p+"/") {
					return true
				}
			}
			return false
		}
	}

	var deletes []string
	for rel := range snapshot {
		if _, ok := seen[rel]; ok {
			continue
		}
		if inScope(rel) {
			deletes = append(deletes, rel)
		}
	}
	sort.Strings(deletes)
	return deletes
}

// process turns one candidate into a write item: read and hash, settle
// the suspect case, analyze markdown, and embed chunks. Per-file faults
// become skips; only the store can fail the run.
func (ix *Indexer) process(ctx context.Context, t task, repoID int64, force bool) writeItem {
	c := t.cand
	content, err := scan.ReadFile(c.AbsPath, ix.cfg.MaxFileSizeBytes())
	if err != nil {
		if errors.Is(err, scan.ErrBinaryContent) {
			return writeItem{kind: kindSkip, path: c.RelPath, reason: "binary content"}
		}
		return writeItem{kind: kindSkip, path: c.RelPath, reason: err.Error()}
	}

	// Suspect file with the same content: refresh mtime, nothing else.
	if t.prior != nil && !force && t.prior.Hash == content.Hash {
		return writeItem{
			kind:   kindTouch,
			path:   c.RelPath,
			fileID: t.prior.ID,
			mtime:  c.ModTime.Unix(),
		}
	}

	rec := &store.FileRecord{
		RepoID:   repoID,
		RelPath:  c.RelPath,
		Size:     content.Size,
		ModTime:  c.ModTime.Unix(),
		Hash:     content.Hash,
		FileType: c.FileType,
		Content:  content.Text,
	}

	if scan.IsMarkdown(c.FileType) {
		meta := markdown.Parse(content.Text)
		rec.Title = meta.Title
		rec.Tags = meta.Tags
		rec.Links = meta.Links
		rec.Headings = meta.HeadingStrings()
		rec.Content = ix.lexicalText(content.Text)
	}

	if ix.embedder != nil {
		chunks, err := ix.embedChunks(ctx, content.Text)
		if err != nil {
			// Lexical indexing still proceeds; the file just has no vectors.
			ix.logger.Warn("file_embed_failed",
				slog.String("path", c.RelPath),
				slog.String("error", err.Error()))
		} else {
			rec.Chunks = chunks
			rec.Model = ix.embedder.ModelName()
		}
	}

	kind := kindNew
	if t.prior != nil {
		kind = kindChanged
	}
	return writeItem{kind: kind, rec: rec, path: c.RelPath}
}

// lexicalText prepares markdown for the FTS index: optionally stripped of
// syntax, optionally with fenced code blocks re-emitted (language tag
// included) as extra searchable content.
func (ix *Indexer) lexicalText(text string) string {
	out := text
	if ix.cfg.StripMarkdownSyntax {
		out = markdown.Strip(text)
	}
	if ix.cfg.IndexCodeBlocks {
		var b strings.Builder
		b.WriteString(out)
		for _, block := range markdown.CodeBlocks(text) {
			b.WriteString("\n")
			if block.Lang != "" {
				b.WriteString(block.Lang)
				b.WriteString("\n")
			}
			b.WriteString(block.Code)
		}
		out = b.String()
	}
	return out
}

// send delivers an item unless the run is cancelled.
func send(ctx context.Context, items chan<- writeItem, item writeItem) bool {
	select {
	case items <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// writer is the single goroutine that owns the store batch. It counts
// everything, commits every batchSize writes, and observes cancellation
// at batch boundaries.
type writer struct {
	ix        *Indexer
	repo      *store.Repository
	batchSize int
	progress  func(Progress)
	started   time.Time
	total     *atomic.Int64

	batch  *store.Batch
	writes int
	res    Result

	chunks    int
	bytes     int64
	processed int
}

func (w *writer) drain(ctx context.Context, items <-chan writeItem) error {
	batch, err := w.ix.store.BeginBatch(ctx)
	if err != nil {
		return err
	}
	w.batch = batch
	defer func() {
		if w.batch != nil {
			_ = w.batch.Rollback()
		}
	}()

	for item := range items {
		if err := w.handle(ctx, item); err != nil {
			return err
		}
	}

	if err := w.batch.Commit(); err != nil {
		return err
	}
	w.batch = nil
	return nil
}

func (w *writer) handle(ctx context.Context, item writeItem) error {
	switch item.kind {
	case kindUnchanged:
		w.res.Unchanged++
		w.processed++
	case kindSkip:
		w.res.Skipped++
		w.ix.logger.Debug("file_skipped",
			slog.String("path", item.path),
			slog.String("reason", item.reason))
	case kindTouch:
		if err := w.apply(ctx, item); err != nil {
			return err
		}
		w.res.Unchanged++
		w.processed++
	case kindNew, kindChanged:
		if err := w.apply(ctx, item); err != nil {
			return err
		}
		if item.kind == kindNew {
			w.res.New++
		} else {
			w.res.Changed++
		}
		w.processed++
		w.chunks += len(item.rec.Chunks)
		w.bytes += item.rec.Size
	case kindDelete:
		if err := w.apply(ctx, item); err != nil {
			return err
		}
		w.res.Deleted += len(item.deletes)
	}

	if w.progress != nil {
		w.progress(Progress{
			Total:     int(w.total.Load()),
			Processed: w.processed,
			Skipped:   w.res.Skipped,
			Path:      item.path,
			Bytes:     w.bytes,
			Elapsed:   time.Since(w.started),
		})
	}
	return nil
}

// apply executes one store write, retrying once on a fresh transaction.
// The first failure aborts the current batch; uncommitted files in it are
// picked up again by the next incremental run.
func (w *writer) apply(ctx context.Context, item writeItem) error {
	err := w.write(ctx, item)
	if err == nil {
		return w.maybeCommit(ctx)
	}

	w.ix.logger.Warn("batch_write_failed",
		slog.String("path", item.path),
		slog.String("error", err.Error()))
	_ = w.batch.Rollback()
	w.batch = nil

	batch, berr := w.ix.store.BeginBatch(ctx)
	if berr != nil {
		return berr
	}
	w.batch = batch
	w.writes = 0
	if err := w.write(ctx, item); err != nil {
		return err
	}
	return w.maybeCommit(ctx)
}

func (w *writer) write(ctx context.Context, item writeItem) error {
	switch item.kind {
	case kindTouch:
		if err := w.batch.TouchFile(ctx, item.fileID, item.mtime); err != nil {
			return err
		}
		w.writes++
	case kindNew, kindChanged:
		if _, err := w.batch.UpsertFile(ctx, item.rec); err != nil {
			return err
		}
		w.writes++
	case kindDelete:
		if err := w.batch.DeleteFiles(ctx, w.repo.ID, item.deletes); err != nil {
			return err
		}
		w.writes += len(item.deletes)
	}
	return nil
}

// maybeCommit renews the transaction every batchSize writes. Batch
// boundaries are where cancellation is honored: committed work stays,
// and the run reports Cancelled.
func (w *writer) maybeCommit(ctx context.Context) error {
	if w.writes < w.batchSize {
		return nil
	}
	if err := w.batch.Commit(); err != nil {
		return err
	}
	w.batch = nil
	w.writes = 0
	if ctx.Err() != nil {
		return kerrors.Cancelled("index")
	}
	batch, err := w.ix.store.BeginBatch(ctx)
	if err != nil {
		return err
	}
	w.batch = batch
	return nil
}

func (w *writer) result() *Result {
	res := w.res
	res.Total = int(w.total.Load())
	res.Chunks = w.chunks
	res.Bytes = w.bytes
	return &res
}
