package scan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"unicode/utf8"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// sniffLen is how many leading bytes are checked for NUL to detect
// binary content that slipped past the extension filter.
const sniffLen = 8 * 1024

// ErrBinaryContent marks a file whose leading bytes contain NUL. It is a
// filter decision rather than a fault: the pipeline skips the file
// without recording an error.
var ErrBinaryContent = errors.New("binary content")

// Content is the normalized text of one file, ready for indexing.
type Content struct {
	// Text is the decoded content with CRLF normalized to LF.
	Text string

	// Hash is the hex SHA-256 over the normalized bytes.
	Hash string

	// Size is the raw on-disk byte count that was read.
	Size int64
}

// ReadFile reads a file of at most maxSize bytes and normalizes it.
// The read is take-limited to maxSize+1 so oversize is detected without
// a second stat. Decoding tries UTF-8 and falls back to Latin-1.
func ReadFile(path string, maxSize int64) (*Content, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, kerrors.PermissionDenied(path, err)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, kerrors.DecodeFailed(path, err)
	}
	if int64(len(data)) > maxSize {
		return nil, kerrors.FileTooLarge(path, int64(len(data)), maxSize)
	}
	if SniffBinary(data) {
		return nil, ErrBinaryContent
	}

	text := decode(data)
	return NewContent(text, int64(len(data))), nil
}

// NewContent normalizes decoded text and computes its hash. Exposed so
// tests and the suspect-file path can hash without re-reading.
func NewContent(text string, size int64) *Content {
	text = Normalize(text)
	return &Content{
		Text: text,
		Hash: HashText(text),
		Size: size,
	}
}

// SniffBinary reports whether the first 8 KB contain a NUL byte.
func SniffBinary(data []byte) bool {
	n := len(data)
	if n > sniffLen {
		n = sniffLen
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

// Normalize converts CRLF line endings to LF. Applying it twice is a
// no-op.
func Normalize(text string) string {
	if !containsCR(text) {
		return text
	}
	return string(bytes.ReplaceAll([]byte(text), []byte("\r\n"), []byte("\n")))
}

// HashText returns the hex SHA-256 of the text bytes.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// decode returns the data as a string, widening bytes to runes (Latin-1)
// when it is not valid UTF-8. Latin-1 maps every byte, so decoding never
// fails outright.
func decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

func containsCR(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\r' {
			return true
		}
	}
	return false
}
