package search

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// rrfK is the reciprocal-rank-fusion smoothing constant. 60 is the value
// validated across IR literature and used by the major engines.
const rrfK = 60

// hybridDepth is how far past the requested window each leg searches, so
// fusion has enough overlap to reorder.
const hybridDepth = 2

// hybrid runs the lexical and semantic legs concurrently and fuses their
// rankings. Either leg failing fails the search; semantic readiness is
// checked up front so the common failure surfaces as ModeUnavailable.
func (s *Searcher) hybrid(ctx context.Context, query string, opts Options) ([]Result, error) {
	if err := s.semanticReady(ctx); err != nil {
		return nil, err
	}

	depth := (opts.Offset + opts.Limit) * hybridDepth
	var lex, sem []Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.store.LexicalSearch(gctx, query, opts.Filters, depth, 0)
		if err != nil {
			return err
		}
		lex = make([]Result, 0, len(hits))
		for _, h := range hits {
			lex = append(lex, fromLexical(h))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sem, err = s.semanticDepth(gctx, query, opts.Filters, depth)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuseRRF(lex, sem, rrfK)
	return window(fused, opts.Offset, opts.Limit), nil
}

type fusedHit struct {
	res     Result
	score   float64
	lexRank int
	semRank int
}

// fuseRRF combines two ranked lists keyed by file: each appearance adds
// 1/(k+rank) with 1-based ranks. Files in neither list are absent. When a
// file appears in both, the lexical result (its snippet) is kept.
func fuseRRF(lex, sem []Result, k int) []Result {
	byFile := make(map[int64]*fusedHit, len(lex)+len(sem))
	order := make([]int64, 0, len(lex)+len(sem))

	for i, r := range lex {
		f := &fusedHit{res: r, lexRank: i + 1}
		f.score = 1 / float64(k+i+1)
		byFile[r.FileID] = f
		order = append(order, r.FileID)
	}
	for i, r := range sem {
		f, ok := byFile[r.FileID]
		if !ok {
			f = &fusedHit{res: r}
			byFile[r.FileID] = f
			order = append(order, r.FileID)
		}
		f.semRank = i + 1
		f.score += 1 / float64(k+i+1)
	}

	hits := make([]*fusedHit, 0, len(order))
	for _, id := range order {
		hits = append(hits, byFile[id])
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		aBoth := a.lexRank > 0 && a.semRank > 0
		bBoth := b.lexRank > 0 && b.semRank > 0
		if aBoth != bBoth {
			return aBoth
		}
		if a.res.Score != b.res.Score {
			return a.res.Score > b.res.Score
		}
		return a.res.FileID < b.res.FileID
	})

	results := make([]Result, 0, len(hits))
	for _, f := range hits {
		r := f.res
		r.Score = f.score
		r.Mode = ModeHybrid
		results = append(results, r)
	}
	return results
}
