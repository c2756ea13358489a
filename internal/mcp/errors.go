// Package mcp implements the Model Context Protocol (MCP) server for kdex.
package mcp

import (
	"context"
	"errors"
	"fmt"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// Custom MCP error codes for kdex.
const (
	// ErrCodeIndexNotFound indicates no usable index exists.
	ErrCodeIndexNotFound = -32001

	// ErrCodeSearchFailed indicates the search backend rejected the query.
	ErrCodeSearchFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a path is not present in the index.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates a file is too large to return.
	ErrCodeFileTooLarge = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Structured kdex errors
// map by code; anything else becomes an internal server error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var kerr *kerrors.KdexError
	if errors.As(err, &kerr) {
		return mapKdexError(kerr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapKdexError converts a KdexError to an MCPError. The suggestion is folded
// into the message so MCP clients see the same guidance the CLI prints.
func mapKdexError(ke *kerrors.KdexError) *MCPError {
	message := ke.Message
	if ke.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ke.Message, ke.Suggestion)
	}

	switch ke.Code {
	case kerrors.CodeInvalidInput,
		kerrors.CodeEmptyQuery,
		kerrors.CodeRegexTooLarge,
		kerrors.CodeModeUnavailable,
		kerrors.CodeRepoNotFound:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	case kerrors.CodePathNotFound:
		return &MCPError{
			Code:    ErrCodeFileNotFound,
			Message: message,
		}
	case kerrors.CodeFileTooLarge:
		return &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: message,
		}
	case kerrors.CodeStoreBusy, kerrors.CodeCancelled:
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: message,
		}
	case kerrors.CodeStoreCorrupt, kerrors.CodeMigrationFailed:
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: message,
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
