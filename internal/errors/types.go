// Package errors provides the structured error type used across mdpreview.
//
// Every error that crosses a component boundary is a *PreviewError carrying
// a category, a stable code and whether the pipeline can carry on after it.
// Startup code treats non-recoverable errors as fatal; the live pipeline logs
// recoverable ones and keeps running.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeEncoding ErrorType = "encoding"
	ErrorTypeWatch    ErrorType = "watch"
	ErrorTypeDelivery ErrorType = "delivery"
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeInternal ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeDocumentMissing  = "ERR_DOCUMENT_MISSING"
	ErrCodeStylesheet       = "ERR_STYLESHEET"
	ErrCodeFileRead         = "ERR_FILE_READ"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodePermissionDenied = "ERR_PERMISSION_DENIED"
	ErrCodeFileEncoding     = "ERR_FILE_ENCODING"
	ErrCodeWatchSubscribe   = "ERR_WATCH_SUBSCRIBE"
	ErrCodeWatchPattern     = "ERR_WATCH_PATTERN"
	ErrCodeDelivery         = "ERR_DELIVERY"
	ErrCodeSlowViewer       = "ERR_SLOW_VIEWER"
	ErrCodeListen           = "ERR_LISTEN"
	ErrCodeUnknownPath      = "ERR_UNKNOWN_PATH"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// PreviewError is a structured error type with context.
type PreviewError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *PreviewError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PreviewError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *PreviewError) Is(target error) bool {
	var t *PreviewError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PreviewError) WithContext(key string, value interface{}) *PreviewError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the file the error refers to.
func (e *PreviewError) WithPath(path string) *PreviewError {
	e.Path = path

	return e
}

// WithComponent adds component context.
func (e *PreviewError) WithComponent(component string) *PreviewError {
	e.Component = component

	return e
}

// NewConfigError creates a configuration error. Configuration errors abort
// startup.
func NewConfigError(code, message string) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewEncodingError creates an error for file contents that are not text.
func NewEncodingError(message string) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeEncoding,
		Code:        ErrCodeFileEncoding,
		Message:     message,
		Recoverable: true,
	}
}

// NewWatchError creates a watcher subscription error.
func NewWatchError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeWatch,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewDeliveryError creates an error for a failed send to one viewer.
func NewDeliveryError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeDelivery,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsType checks whether err is a PreviewError of the given category.
func IsType(err error, errType ErrorType) bool {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Type == errType
	}

	return false
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	return IsType(err, ErrorTypeConfig)
}

// ErrUnknownPath reports a change notification for a path that is not a
// watch target. Directory watches surface sibling files, so this is logged
// and ignored rather than treated as fatal.
func ErrUnknownPath(path string) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeInternal,
		Code:        ErrCodeUnknownPath,
		Message:     "change for untracked path",
		Path:        path,
		Recoverable: true,
	}
}

// ErrSlowViewer reports a viewer whose outbound queue overflowed.
func ErrSlowViewer(remote string) *PreviewError {
	return NewDeliveryError(ErrCodeSlowViewer, "viewer queue full", nil).
		WithContext("remote", remote)
}
