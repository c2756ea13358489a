// Package errors provides structured error handling for kdex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Usage and configuration errors
//   - 2XX: File and path errors
//   - 3XX: Store errors
//   - 4XX: Query errors
//   - 5XX: Remote sync errors
//   - 6XX: Runtime errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryUsage indicates invalid invocation or configuration.
	CategoryUsage Category = "USAGE"
	// CategoryFile indicates file and path errors.
	CategoryFile Category = "FILE"
	// CategoryStore indicates database errors.
	CategoryStore Category = "STORE"
	// CategoryQuery indicates search query errors.
	CategoryQuery Category = "QUERY"
	// CategoryRemote indicates remote repository errors.
	CategoryRemote Category = "REMOTE"
	// CategoryRuntime indicates runtime and lifecycle errors.
	CategoryRuntime Category = "RUNTIME"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Code identifies one kind in the closed error set. Callers dispatch on
// the code, never on message text.
type Code string

// The closed error set.
const (
	// Usage and configuration errors (100-199)
	CodeInvalidInput  Code = "ERR_101_INVALID_INPUT"
	CodeConfigInvalid Code = "ERR_102_CONFIG_INVALID"

	// File and path errors (200-299)
	CodePathNotFound     Code = "ERR_201_PATH_NOT_FOUND"
	CodeNotADirectory    Code = "ERR_202_NOT_A_DIRECTORY"
	CodePermissionDenied Code = "ERR_203_PERMISSION_DENIED"
	CodeFileTooLarge     Code = "ERR_204_FILE_TOO_LARGE"
	CodeDecodeFailed     Code = "ERR_205_DECODE_FAILED"

	// Store errors (300-399)
	CodeStoreBusy       Code = "ERR_301_STORE_BUSY"
	CodeStoreCorrupt    Code = "ERR_302_STORE_CORRUPT"
	CodeMigrationFailed Code = "ERR_303_MIGRATION_FAILED"

	// Query errors (400-499)
	CodeEmptyQuery      Code = "ERR_401_EMPTY_QUERY"
	CodeRegexTooLarge   Code = "ERR_402_REGEX_TOO_LARGE"
	CodeModeUnavailable Code = "ERR_403_MODE_UNAVAILABLE"
	CodeRepoNotFound    Code = "ERR_404_REPO_NOT_FOUND"

	// Remote sync errors (500-599)
	CodeAuthRequired  Code = "ERR_501_AUTH_REQUIRED"
	CodeCloneFailed   Code = "ERR_502_CLONE_FAILED"
	CodeFetchDiverged Code = "ERR_503_FETCH_DIVERGED"

	// Runtime errors (600-699)
	CodeCancelled            Code = "ERR_601_CANCELLED"
	CodeWatcherLimitExceeded Code = "ERR_602_WATCHER_LIMIT_EXCEEDED"
	CodeInternal             Code = "ERR_603_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code Code) Category {
	if len(code) < 7 {
		return CategoryRuntime
	}
	switch code[4] {
	case '1':
		return CategoryUsage
	case '2':
		return CategoryFile
	case '3':
		return CategoryStore
	case '4':
		return CategoryQuery
	case '5':
		return CategoryRemote
	default:
		return CategoryRuntime
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code Code) Severity {
	switch code {
	case CodeStoreCorrupt, CodeMigrationFailed:
		return SeverityFatal
	case CodeFileTooLarge, CodeDecodeFailed, CodePermissionDenied, CodeWatcherLimitExceeded:
		// Per-file and watcher faults degrade the run but never abort it.
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code Code) bool {
	return code == CodeStoreBusy
}

// ExitCode maps an error to the process exit status: 0 on success,
// 2 for usage errors, 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch CodeOf(err) {
	case CodeInvalidInput:
		return 2
	default:
		return 1
	}
}
