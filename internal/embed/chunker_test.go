package embed

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_ShortText(t *testing.T) {
	chunks := ChunkText("just a short note")

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len("just a short note"), chunks[0].End)
	assert.Equal(t, "just a short note", chunks[0].Text)
}

func TestChunkText_Empty(t *testing.T) {
	assert.Nil(t, ChunkText(""))
	assert.Nil(t, ChunkText("   \n\t  "))
}

func TestChunkWith_WordBoundaries(t *testing.T) {
	text := "one two three four five six seven eight nine ten"

	chunks := chunkWith(text, 16, 4)

	require.Len(t, chunks, 5)
	assert.Equal(t, "one two three", chunks[0].Text)
	assert.Equal(t, "nine ten", chunks[4].Text)
	assert.Equal(t, len(text), chunks[4].End)
}

func TestChunkWith_Properties(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur ", 50)
	maxChars := 64

	chunks := chunkWith(text, maxChars, 16)

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.LessOrEqual(t, len(c.Text), maxChars)
		assert.Equal(t, text[c.Start:c.End], c.Text, "offsets must index the source text")
		if i > 0 {
			assert.Less(t, chunks[i-1].Start, c.Start, "windows must advance")
			assert.Less(t, c.Start, chunks[i-1].End, "adjacent windows must overlap")
		}
	}
}

func TestChunkWith_MultibyteRunesNotSplit(t *testing.T) {
	// No spaces, so every cut is a hard cut inside a run of 2-byte runes.
	text := strings.Repeat("é", 100)

	chunks := chunkWith(text, 15, 4)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %d split a rune", c.Ordinal)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}

func TestChunkWith_WhitespaceWindowsDropped(t *testing.T) {
	text := "word" + strings.Repeat(" ", 30) + "tail"

	chunks := chunkWith(text, 10, 2)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, 1, chunks[1].Ordinal)
	assert.Contains(t, chunks[0].Text, "word")
	assert.Contains(t, chunks[1].Text, "tail")
}
