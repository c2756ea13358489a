package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/coder/hnsw"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// ANN graph parameters, sized for tens of thousands of chunks.
const (
	hnswM        = 16
	hnswEfSearch = 64
	hnswMl       = 0.25

	// Oversampling covers chunks of the same file collapsing into one
	// result upstream.
	vectorOversample = 4
)

// vectorIndex is an in-memory ANN graph over the embeddings table, keyed
// by embedding row id. It is rebuilt lazily after any write that touches
// vectors; the table on disk stays the source of truth.
type vectorIndex struct {
	graph *hnsw.Graph[int64]
	dims  int
	size  int
}

func (s *Store) dropVectorIndex() {
	s.vmu.Lock()
	s.vectors = nil
	s.vmu.Unlock()
}

// ReplaceChunks rewrites all embedding chunks of a file in one
// transaction. Used by rebuild-embeddings; the indexer writes chunks
// through its batch instead.
func (s *Store) ReplaceChunks(ctx context.Context, fileID int64, model string, chunks []ChunkRecord) error {
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

		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE file_id = ?`, fileID); err != nil {
			return err
		}
		if err := insertChunks(ctx, tx, fileID, model, chunks); err != nil {
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

func insertChunks(ctx context.Context, tx *sql.Tx, fileID int64, model string, chunks []ChunkRecord) error {
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings
				(file_id, chunk_index, start_offset, end_offset, chunk_text, embedding, model)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fileID, c.Index, c.Start, c.End, c.Text, packVector(c.Vector), model); err != nil {
			return err
		}
	}
	return nil
}

// HasEmbeddings reports whether any chunks are stored at all, letting the
// searcher distinguish "semantic unavailable" from "no matches".
func (s *Store) HasEmbeddings(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM embeddings LIMIT 1`).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// VectorSearch returns chunks ranked by cosine similarity to queryVec,
// best first. Unfiltered searches go through the ANN graph; filtered
// searches scan the matching rows exactly. Stored vectors of a different
// width than the query surface ModeUnavailable, pointing at
// rebuild-embeddings.
func (s *Store) VectorSearch(ctx context.Context, queryVec []float32, filters Filters, limit int) ([]VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(queryVec) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	if filters == (Filters{}) {
		return s.annSearch(ctx, queryVec, limit)
	}
	return s.linearSearch(ctx, queryVec, filters, limit)
}

func (s *Store) annSearch(ctx context.Context, queryVec []float32, limit int) ([]VectorHit, error) {
	idx, err := s.loadVectorIndex(ctx)
	if err != nil {
		return nil, err
	}
	if idx.size == 0 {
		return nil, nil
	}
	if idx.dims != len(queryVec) {
		return nil, kerrors.ModeUnavailable("semantic",
			fmt.Sprintf("stored embeddings are %d-dimensional but the query is %d-dimensional; run rebuild-embeddings", idx.dims, len(queryVec)))
	}

	nodes := idx.graph.Search(queryVec, limit*vectorOversample)
	if len(nodes) == 0 {
		return nil, nil
	}

	scores := make(map[int64]float64, len(nodes))
	ids := make([]int64, 0, len(nodes))
	for _, node := range nodes {
		// Cosine distance ranges 0..2; similarity is its complement.
		scores[node.Key] = 1 - float64(idx.graph.Distance(queryVec, node.Value))
		ids = append(ids, node.Key)
	}

	hits, err := s.hydrateChunks(ctx, ids, scores)
	if err != nil {
		return nil, err
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) linearSearch(ctx context.Context, queryVec []float32, filters Filters, limit int) ([]VectorHit, error) {
	where, args := filters.conditions()
	query := `
		SELECT e.id, e.file_id, e.chunk_index, e.chunk_text, e.embedding,
		       f.rel_path, f.file_type, r.name
		FROM embeddings e
		JOIN files f ON f.id = e.file_id
		JOIN repositories r ON r.id = f.repo_id
		WHERE 1 = 1` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var (
			hit  VectorHit
			blob []byte
		)
		if err := rows.Scan(&hit.ChunkID, &hit.FileID, &hit.ChunkIndex,
			&hit.ChunkText, &blob, &hit.RelPath, &hit.FileType, &hit.RepoName); err != nil {
			return nil, err
		}
		vec := unpackVector(blob)
		if len(vec) != len(queryVec) {
			continue
		}
		hit.Score = cosineSimilarity(queryVec, vec)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// loadVectorIndex returns the cached ANN graph, building it from the
// embeddings table when absent. Rows whose width differs from the first
// row are skipped; rebuild-embeddings heals such mixtures.
func (s *Store) loadVectorIndex(ctx context.Context) (*vectorIndex, error) {
	s.vmu.Lock()
	defer s.vmu.Unlock()

	if s.vectors != nil {
		return s.vectors, nil
	}

	graph := hnsw.NewGraph[int64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = hnswM
	graph.EfSearch = hnswEfSearch
	graph.Ml = hnswMl

	idx := &vectorIndex{graph: graph}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("loading vector index: %w", err)
	}
	defer rows.Close()

	skipped := 0
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec := unpackVector(blob)
		if len(vec) == 0 {
			continue
		}
		if idx.dims == 0 {
			idx.dims = len(vec)
		}
		if len(vec) != idx.dims {
			skipped++
			continue
		}
		graph.Add(hnsw.MakeNode(id, vec))
		idx.size++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("vector_index_mixed_dimensions", "skipped", skipped, "dims", idx.dims)
	}

	s.vectors = idx
	return idx, nil
}

func (s *Store) hydrateChunks(ctx context.Context, ids []int64, scores map[int64]float64) ([]VectorHit, error) {
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT e.id, e.file_id, e.chunk_index, e.chunk_text,
		       f.rel_path, f.file_type, r.name
		FROM embeddings e
		JOIN files f ON f.id = e.file_id
		JOIN repositories r ON r.id = f.repo_id
		WHERE e.id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("hydrating vector hits: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var hit VectorHit
		if err := rows.Scan(&hit.ChunkID, &hit.FileID, &hit.ChunkIndex,
			&hit.ChunkText, &hit.RelPath, &hit.FileType, &hit.RepoName); err != nil {
			return nil, err
		}
		hit.Score = scores[hit.ChunkID]
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func sortHits(hits []VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// packVector encodes float32s as little-endian bytes for BLOB storage.
func packVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
