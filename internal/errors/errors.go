package errors

import (
	stderrors "errors"
	"fmt"
)

// KdexError is the structured error type for kdex.
// It provides rich context for error handling, logging, and user presentation.
type KdexError struct {
	// Code is the unique error code (e.g., "ERR_201_PATH_NOT_FOUND").
	Code Code

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Usage, File, Store, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *KdexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KdexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with KdexError.
func (e *KdexError) Is(target error) bool {
	if t, ok := target.(*KdexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *KdexError) WithDetail(key, value string) *KdexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *KdexError) WithSuggestion(suggestion string) *KdexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new KdexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code Code, message string, cause error) *KdexError {
	return &KdexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KdexError from an existing error.
// The error's message becomes the KdexError message.
func Wrap(code Code, err error) *KdexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// PathNotFound reports an index target that does not exist.
func PathNotFound(path string) *KdexError {
	return New(CodePathNotFound, fmt.Sprintf("path not found: %s", path), nil).
		WithDetail("path", path)
}

// NotADirectory reports an index target that is not a directory.
func NotADirectory(path string) *KdexError {
	return New(CodeNotADirectory, fmt.Sprintf("not a directory: %s", path), nil).
		WithDetail("path", path)
}

// PermissionDenied reports an unreadable file or directory.
func PermissionDenied(path string, cause error) *KdexError {
	return New(CodePermissionDenied, fmt.Sprintf("permission denied: %s", path), cause).
		WithDetail("path", path)
}

// FileTooLarge reports a file over the configured size cap.
func FileTooLarge(path string, size, limit int64) *KdexError {
	return New(CodeFileTooLarge, fmt.Sprintf("file too large: %s (%d bytes, limit %d)", path, size, limit), nil).
		WithDetail("path", path)
}

// DecodeFailed reports text that is neither valid UTF-8 nor Latin-1.
func DecodeFailed(path string, cause error) *KdexError {
	return New(CodeDecodeFailed, fmt.Sprintf("cannot decode file: %s", path), cause).
		WithDetail("path", path)
}

// StoreBusy reports writer contention after retries are exhausted.
func StoreBusy(cause error) *KdexError {
	return New(CodeStoreBusy, "database locked by another operation", cause).
		WithSuggestion("wait for the running index or watch operation to finish and retry")
}

// StoreCorrupt reports a failed integrity check on open.
func StoreCorrupt(path string, cause error) *KdexError {
	return New(CodeStoreCorrupt, fmt.Sprintf("database failed integrity check: %s", path), cause).
		WithDetail("path", path).
		WithSuggestion("delete the database file and re-index your repositories to rebuild it")
}

// MigrationFailed reports a failed schema migration step. The open is
// aborted and the data file left untouched.
func MigrationFailed(from, to int, cause error) *KdexError {
	return New(CodeMigrationFailed, fmt.Sprintf("schema migration v%d -> v%d failed", from, to), cause).
		WithDetail("from", fmt.Sprintf("%d", from)).
		WithDetail("to", fmt.Sprintf("%d", to))
}

// EmptyQuery reports a blank search query.
func EmptyQuery() *KdexError {
	return New(CodeEmptyQuery, "search query is empty", nil)
}

// RegexTooLarge reports a pattern whose compiled program exceeds the cap.
func RegexTooLarge(pattern string, size, limit int) *KdexError {
	return New(CodeRegexTooLarge, fmt.Sprintf("regex too large: %d instructions (limit %d)", size, limit), nil).
		WithDetail("pattern", pattern).
		WithSuggestion("simplify the pattern or split it into multiple searches")
}

// ModeUnavailable reports a search mode that cannot run.
func ModeUnavailable(mode, reason string) *KdexError {
	return New(CodeModeUnavailable, fmt.Sprintf("search mode %q unavailable: %s", mode, reason), nil).
		WithDetail("mode", mode).
		WithSuggestion("enable semantic search in the config and re-index, or use lexical mode")
}

// RepoNotFound reports an operation on an unknown repository.
// The suggestion names the closest known repository when one exists.
func RepoNotFound(name, closest string) *KdexError {
	e := New(CodeRepoNotFound, fmt.Sprintf("repository not found: %s", name), nil).
		WithDetail("repo", name)
	if closest != "" {
		e = e.WithSuggestion(fmt.Sprintf("did you mean %q?", closest))
	}
	return e
}

// AuthRequired reports a remote that rejected all credential sources.
func AuthRequired(url string) *KdexError {
	return New(CodeAuthRequired, fmt.Sprintf("authentication required: %s", url), nil).
		WithDetail("url", url).
		WithSuggestion("set KDEX_GITHUB_TOKEN or add the repository over SSH with an agent running")
}

// CloneFailed reports a failed clone; the partial target directory has
// already been removed.
func CloneFailed(url string, cause error) *KdexError {
	return New(CodeCloneFailed, fmt.Sprintf("clone failed: %s", url), cause).
		WithDetail("url", url)
}

// FetchDiverged reports a remote branch that cannot be fast-forwarded.
func FetchDiverged(name, branch string) *KdexError {
	return New(CodeFetchDiverged, fmt.Sprintf("remote history diverged: %s (branch %s)", name, branch), nil).
		WithDetail("repo", name).
		WithDetail("branch", branch).
		WithSuggestion("remove and re-add the repository to re-clone")
}

// Cancelled reports cooperative cancellation of a long operation.
func Cancelled(op string) *KdexError {
	return New(CodeCancelled, fmt.Sprintf("%s cancelled", op), nil)
}

// WatcherLimit reports that the estimated subscription count is likely to
// exceed the OS watch limit. Watching continues with partial coverage.
func WatcherLimit(needed, limit int) *KdexError {
	return New(CodeWatcherLimitExceeded, fmt.Sprintf("watch may exceed OS limit: ~%d directories, limit %d", needed, limit), nil).
		WithSuggestion("raise fs.inotify.max_user_watches or watch fewer repositories")
}

// InvalidInput reports a bad flag or argument value (usage error, exit 2).
func InvalidInput(message string) *KdexError {
	return New(CodeInvalidInput, message, nil)
}

// ConfigInvalid reports an unreadable or malformed configuration file.
func ConfigInvalid(message string, cause error) *KdexError {
	return New(CodeConfigInvalid, message, cause)
}

// Internal creates an internal error.
func Internal(message string, cause error) *KdexError {
	return New(CodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ke *KdexError
	if stderrors.As(err, &ke) {
		return ke.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var ke *KdexError
	if stderrors.As(err, &ke) {
		return ke.Severity == SeverityFatal
	}
	return false
}

// CodeOf extracts the error code, unwrapping as needed.
// Returns empty string if no KdexError is in the chain.
func CodeOf(err error) Code {
	var ke *KdexError
	if stderrors.As(err, &ke) {
		return ke.Code
	}
	return ""
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// GetCategory extracts the category, unwrapping as needed.
// Returns empty string if no KdexError is in the chain.
func GetCategory(err error) Category {
	var ke *KdexError
	if stderrors.As(err, &ke) {
		return ke.Category
	}
	return ""
}
