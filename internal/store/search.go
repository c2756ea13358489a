package store

import (
	"context"
	"fmt"
	"strings"
)

// Snippet markers bracket the best match window so callers can re-highlight
// without re-running the query.
const (
	SnippetStart    = ">>>"
	SnippetEnd      = "<<<"
	snippetEllipsis = "..."
	snippetTokens   = 64
)

const defaultSearchLimit = 20

// TranslateQuery converts user input to the FTS5 MATCH grammar: quoted
// phrases pass through, bare words become required terms, a trailing *
// becomes a prefix predicate, and AND/OR/NOT propagate as operators. All
// other control characters are stripped so user input cannot inject index
// operators. An empty return means nothing searchable remained.
func TranslateQuery(query string) string {
	var parts []string
	for _, tok := range splitQueryTokens(query) {
		if tok.quoted {
			phrase := strings.ReplaceAll(tok.text, `"`, "")
			if strings.TrimSpace(phrase) != "" {
				parts = append(parts, `"`+phrase+`"`)
			}
			continue
		}
		if tok.text == "AND" || tok.text == "OR" || tok.text == "NOT" {
			parts = append(parts, tok.text)
			continue
		}

		prefix := strings.HasSuffix(tok.text, "*")
		word := stripQueryControls(strings.TrimRight(tok.text, "*"))
		if word == "" {
			continue
		}
		term := `"` + word + `"`
		if prefix {
			term += "*"
		}
		parts = append(parts, term)
	}
	return strings.Join(parts, " ")
}

type queryToken struct {
	text   string
	quoted bool
}

// splitQueryTokens splits on whitespace while keeping double-quoted
// phrases together. An unterminated quote swallows the rest of the input.
func splitQueryTokens(query string) []queryToken {
	var tokens []queryToken
	i := 0
	for i < len(query) {
		switch {
		case query[i] == ' ' || query[i] == '\t' || query[i] == '\n':
			i++
		case query[i] == '"':
			end := strings.IndexByte(query[i+1:], '"')
			if end < 0 {
				tokens = append(tokens, queryToken{text: query[i+1:], quoted: true})
				return tokens
			}
			tokens = append(tokens, queryToken{text: query[i+1 : i+1+end], quoted: true})
			i += end + 2
		default:
			end := strings.IndexAny(query[i:], " \t\n")
			if end < 0 {
				tokens = append(tokens, queryToken{text: query[i:]})
				return tokens
			}
			tokens = append(tokens, queryToken{text: query[i : i+end]})
			i += end + 1
		}
	}
	return tokens
}

// stripQueryControls removes the characters FTS5 assigns meaning to.
func stripQueryControls(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '(', ')', ':', '^', '*', '-':
			return -1
		}
		return r
	}, s)
}

// LexicalSearch runs a BM25-ranked full-text query. Results are ordered by
// ascending BM25 rank (best first) and carry marker-bracketed snippets. A
// query that translates to nothing searchable returns no results.
func (s *Store) LexicalSearch(ctx context.Context, query string, filters Filters, limit, offset int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	match := TranslateQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if offset < 0 {
		offset = 0
	}

	where, args := filters.conditions()
	sql := fmt.Sprintf(`
		SELECT f.id, f.repo_id, r.name, f.rel_path, f.file_type,
		       bm25(contents) AS rank,
		       snippet(contents, 1, '%s', '%s', '%s', %d) AS snip
		FROM contents
		JOIN files f ON f.id = contents.file_id
		JOIN repositories r ON r.id = f.repo_id
		WHERE contents MATCH ?%s
		ORDER BY rank
		LIMIT ? OFFSET ?`,
		SnippetStart, SnippetEnd, snippetEllipsis, snippetTokens, where)

	queryArgs := append([]any{match}, args...)
	queryArgs = append(queryArgs, limit, offset)

	rows, err := s.db.QueryContext(ctx, sql, queryArgs...)
	if err != nil {
		// FTS5 rejects some operator arrangements (for example a leading
		// NOT); treat grammar rejections as no matches.
		if isFTSSyntaxErr(err) {
			s.logger.Debug("fts_query_rejected", "query", match, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			rank float64
		)
		if err := rows.Scan(&r.FileID, &r.RepoID, &r.RepoName, &r.RelPath,
			&r.FileType, &rank, &r.Snippet); err != nil {
			return nil, err
		}
		// bm25() reports lower-is-better (negative); surface higher-is-better.
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

func isFTSSyntaxErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5") || strings.Contains(msg, "syntax error")
}

// conditions renders the filters as conjunctive SQL over the f (files) and
// r (repositories) aliases. The returned string is empty or starts with
// " AND".
func (f Filters) conditions() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Repo != "" {
		conds = append(conds, `r.name LIKE '%' || ? || '%'`)
		args = append(args, f.Repo)
	}
	if f.FileType != "" {
		conds = append(conds, `f.file_type = ?`)
		args = append(args, f.FileType)
	}
	if f.Extension != "" {
		ext := strings.ToLower(f.Extension)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		conds = append(conds, `f.rel_path LIKE '%' || ?`)
		args = append(args, ext)
	}
	if f.PathGlob != "" {
		conds = append(conds, `f.rel_path GLOB ?`)
		args = append(args, f.PathGlob)
	}
	if f.Tag != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM tags t WHERE t.file_id = f.id AND t.tag = ?)`)
		args = append(args, strings.ToLower(f.Tag))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}
