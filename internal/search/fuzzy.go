package search

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"

	"github.com/kdex-dev/kdex/internal/store"
)

const (
	// fuzzyMinSimilarity is the default score floor for fuzzy results.
	fuzzyMinSimilarity = 0.7
	// fuzzyPrefixRunes is how much of each query token seeds the lexical
	// prefilter. A typo usually lands past the first few characters, so
	// short prefixes keep the misspelled word's candidates reachable.
	fuzzyPrefixRunes = 4
	// fuzzyCandidateLimit bounds the prefilter result set before rescoring.
	fuzzyCandidateLimit = 200

	jaroBoostThreshold = 0.7
	jaroPrefixSize     = 4
)

// fuzzy tokenizes the query, pulls lexical candidates by token prefixes,
// and rescores each file with Jaro-Winkler similarity over its path stem
// and snippet words. Files under the similarity floor are dropped.
func (s *Searcher) fuzzy(ctx context.Context, query string, opts Options) ([]Result, error) {
	minSim := opts.MinSimilarity
	if minSim <= 0 {
		minSim = fuzzyMinSimilarity
	}

	tokens := fuzzyTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	candidates, err := s.store.LexicalSearch(ctx,
		prefilterQuery(tokens), opts.Filters, fuzzyCandidateLimit, 0)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, c := range candidates {
		score := fuzzyScore(tokens, candidateTokens(c))
		if score < minSim {
			continue
		}
		r := fromLexical(c)
		r.Score = score
		r.Mode = ModeFuzzy
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FileID < results[j].FileID
	})
	return window(results, opts.Offset, opts.Limit), nil
}

// prefilterQuery turns query tokens into an OR of prefix predicates, e.g.
// "authetnicate token" into `auth* toke*` joined by OR.
func prefilterQuery(tokens []string) string {
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, runePrefix(tok, fuzzyPrefixRunes)+"*")
	}
	return strings.Join(terms, " OR ")
}

// fuzzyScore averages, over the query tokens, each token's best
// Jaro-Winkler match among the candidate's tokens.
func fuzzyScore(queryTokens, candTokens []string) float64 {
	if len(candTokens) == 0 {
		return 0
	}
	var total float64
	for _, q := range queryTokens {
		best := 0.0
		for _, c := range candTokens {
			if sim := smetrics.JaroWinkler(q, c, jaroBoostThreshold, jaroPrefixSize); sim > best {
				best = sim
			}
		}
		total += best
	}
	return total / float64(len(queryTokens))
}

// candidateTokens collects the words fuzzy matching compares against: the
// file's path stem plus its snippet, split on non-alphanumerics (which
// also discards the snippet markers).
func candidateTokens(c store.SearchResult) []string {
	raw := store.PathStem(c.RelPath) + " " + c.Snippet
	return fuzzyTokens(raw)
}

func fuzzyTokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
