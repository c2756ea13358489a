package scan

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadFile_Basic(t *testing.T) {
	path := writeTemp(t, "a.md", []byte("# Title\n\nhello world\n"))

	c, err := ReadFile(path, 1024)
	require.NoError(t, err)

	assert.Equal(t, "# Title\n\nhello world\n", c.Text)
	assert.Len(t, c.Hash, 64)
	assert.Equal(t, int64(21), c.Size)
}

func TestReadFile_SizeBoundary(t *testing.T) {
	// Given: a cap of 64 bytes
	const cap = int64(64)

	// A file of exactly cap bytes is read.
	exact := writeTemp(t, "exact.txt", bytes.Repeat([]byte("x"), int(cap)))
	c, err := ReadFile(exact, cap)
	require.NoError(t, err)
	assert.Equal(t, cap, c.Size)

	// One byte over is rejected without a second stat.
	over := writeTemp(t, "over.txt", bytes.Repeat([]byte("x"), int(cap)+1))
	_, err = ReadFile(over, cap)
	require.Error(t, err)
	assert.Equal(t, kerrors.CodeFileTooLarge, kerrors.CodeOf(err))
}

func TestReadFile_BinarySniff(t *testing.T) {
	// NUL within the first 8 KB marks the file binary.
	data := append([]byte("PK\x03\x04"), 0x00, 0x01, 0x02)
	path := writeTemp(t, "archive.unknownext", data)

	_, err := ReadFile(path, 1024)
	assert.ErrorIs(t, err, ErrBinaryContent)

	// NUL after the sniff window does not.
	late := append(bytes.Repeat([]byte("a"), sniffLen), 0x00)
	path = writeTemp(t, "late.txt", late)
	_, err = ReadFile(path, int64(len(late)))
	assert.NoError(t, err)
}

func TestReadFile_CRLFNormalization(t *testing.T) {
	crlf := writeTemp(t, "crlf.md", []byte("line one\r\nline two\r\n"))
	lf := writeTemp(t, "lf.md", []byte("line one\nline two\n"))

	a, err := ReadFile(crlf, 1024)
	require.NoError(t, err)
	b, err := ReadFile(lf, 1024)
	require.NoError(t, err)

	// The hash is insensitive to the line-ending difference only.
	assert.Equal(t, b.Text, a.Text)
	assert.Equal(t, b.Hash, a.Hash)

	// Raw sizes still differ.
	assert.NotEqual(t, b.Size, a.Size)
}

func TestNormalize_Idempotent(t *testing.T) {
	once := Normalize("a\r\nb\r\nc")
	twice := Normalize(once)
	assert.Equal(t, "a\nb\nc", once)
	assert.Equal(t, once, twice)
}

func TestReadFile_Latin1Fallback(t *testing.T) {
	// 0xE9 is 'é' in Latin-1 and invalid standalone UTF-8.
	data := []byte{'c', 'a', 'f', 0xE9}
	path := writeTemp(t, "latin1.txt", data)

	c, err := ReadFile(path, 1024)
	require.NoError(t, err)
	assert.Equal(t, "café", c.Text)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.md"), 1024)
	assert.Error(t, err)
}

func TestHashText_Deterministic(t *testing.T) {
	assert.Equal(t, HashText("same"), HashText("same"))
	assert.NotEqual(t, HashText("same"), HashText("different"))
}
