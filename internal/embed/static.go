package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

const (
	staticModelName = "static-hash-384"

	// Tokens carry most of the signal; character trigrams add partial
	// matching for typos and compound identifiers.
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// stopWords are high-frequency words that would otherwise dominate the
// hash buckets. The list mixes English function words with keywords common
// in indexed code blocks.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "has": {}, "had": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "use": {}, "with": {}, "this": {},
	"that": {}, "from": {}, "have": {}, "will": {}, "your": {}, "when": {},
	"then": {}, "than": {}, "them": {}, "they": {}, "what": {}, "which": {},
	"func": {}, "return": {}, "var": {}, "const": {}, "type": {},
	"import": {}, "package": {}, "struct": {}, "interface": {},
	"def": {}, "class": {}, "self": {}, "let": {}, "fn": {}, "pub": {},
	"int": {}, "string": {}, "bool": {}, "nil": {}, "null": {}, "void": {},
	"true": {}, "false": {}, "new": {}, "if": {}, "else": {}, "end": {},
}

// StaticEmbedder produces deterministic embeddings by hashing tokens and
// character trigrams into fixed buckets. It captures lexical overlap, not
// meaning, but needs no model runtime and always answers. It serves as the
// fallback when no Ollama server is reachable.
type StaticEmbedder struct {
	dimensions int
}

// NewStaticEmbedder returns a hash-based embedder at the default width.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{dimensions: DefaultDimensions}
}

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)

	tokens := tokenize(text)
	for _, tok := range tokens {
		bucket := hashString(tok) % uint64(e.dimensions)
		vec[bucket] += tokenWeight
	}

	for _, tok := range tokens {
		if len(tok) < ngramSize {
			continue
		}
		for i := 0; i+ngramSize <= len(tok); i++ {
			bucket := hashString(tok[i:i+ngramSize]) % uint64(e.dimensions)
			vec[bucket] += ngramWeight
		}
	}

	normalizeVector(vec)
	return vec, nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *StaticEmbedder) Dimensions() int { return e.dimensions }

func (e *StaticEmbedder) ModelName() string { return staticModelName }

func (e *StaticEmbedder) Available(context.Context) bool { return true }

func (e *StaticEmbedder) Close() error { return nil }

// tokenize lowercases text, splits on non-alphanumerics, breaks camelCase
// and snake_case identifiers apart, and drops stop words and single
// characters.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range splitNonAlnum(text) {
		for _, part := range splitIdentifier(word) {
			part = strings.ToLower(part)
			if len(part) < 2 {
				continue
			}
			if _, stop := stopWords[part]; stop {
				continue
			}
			tokens = append(tokens, part)
		}
	}
	return tokens
}

func splitNonAlnum(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// splitIdentifier breaks camelCase and digit transitions apart. Snake and
// kebab case are already handled by the non-alphanumeric split.
func splitIdentifier(word string) []string {
	var parts []string
	runes := []rune(word)
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := (unicode.IsLower(prev) && unicode.IsUpper(cur)) ||
			(unicode.IsLetter(prev) && unicode.IsDigit(cur)) ||
			(unicode.IsDigit(prev) && unicode.IsLetter(cur))
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
