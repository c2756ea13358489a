package embed

import (
	"strings"
	"unicode/utf8"
)

// Chunking approximates tokens as 4 characters, which is close enough for
// MiniLM-class models on prose and code. Windows overlap so sentences that
// straddle a boundary still appear whole in at least one chunk.
const (
	chunkTokens   = 512
	overlapTokens = 50
	charsPerToken = 4

	maxChunkChars = chunkTokens * charsPerToken
	overlapChars  = overlapTokens * charsPerToken
)

// Chunk is a window of source text prepared for embedding. Offsets are
// byte positions into the original text.
type Chunk struct {
	Ordinal int
	Start   int
	End     int
	Text    string
}

// ChunkText splits text into overlapping windows sized for the embedding
// model. Whitespace-only windows are dropped; offsets of the remaining
// chunks still refer to the original text.
func ChunkText(text string) []Chunk {
	return chunkWith(text, maxChunkChars, overlapChars)
}

func chunkWith(text string, maxChars, overlap int) []Chunk {
	if len(text) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else {
			// Prefer breaking at a word boundary so chunks do not
			// end mid-token. Fall back to a hard cut, stepping back
			// to a rune boundary if the cut would split one.
			if b := strings.LastIndexAny(text[start:end], " \n"); b > 0 {
				end = start + b
			} else {
				for end > start && !utf8.RuneStart(text[end]) {
					end--
				}
			}
		}

		window := text[start:end]
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, Chunk{
				Ordinal: len(chunks),
				Start:   start,
				End:     end,
				Text:    window,
			})
		}

		if end >= len(text) {
			break
		}
		next := end - overlap
		if next < start+1 {
			next = start + 1
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
	return chunks
}
