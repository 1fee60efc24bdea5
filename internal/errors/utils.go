package errors

import (
	"errors"
	"io/fs"
)

// Wrap wraps an error with additional context, creating a PreviewError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *PreviewError {
	if err == nil {
		return nil
	}

	// If it's already a PreviewError, keep its location but re-categorize it
	var pe *PreviewError
	if errors.As(err, &pe) {
		return &PreviewError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       pe,
			Context:     pe.Context,
			Component:   pe.Component,
			Path:        pe.Path,
			Recoverable: pe.Recoverable,
		}
	}

	return &PreviewError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeIO || errType == ErrorTypeEncoding || errType == ErrorTypeDelivery,
	}
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *PreviewError {
	pe := Wrap(err, ErrorTypeConfig, code, message)
	if pe != nil {
		pe.Recoverable = false
	}
	return pe
}

// WrapIO wraps a filesystem error. The code is refined for the two cases a
// user can act on: missing files and permissions.
func WrapIO(err error, message, path string) *PreviewError {
	code := ErrCodeFileRead
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = ErrCodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		code = ErrCodePermissionDenied
	}

	pe := Wrap(err, ErrorTypeIO, code, message)
	if pe != nil {
		pe.Path = path
	}
	return pe
}

// WrapWatch wraps an error raised while subscribing to filesystem events
func WrapWatch(err error, message, path string) *PreviewError {
	pe := Wrap(err, ErrorTypeWatch, ErrCodeWatchSubscribe, message)
	if pe != nil {
		pe.Path = path
		pe.Recoverable = false
	}
	return pe
}

// WrapDelivery wraps an error raised while sending to a viewer
func WrapDelivery(err error, message string) *PreviewError {
	pe := Wrap(err, ErrorTypeDelivery, ErrCodeDelivery, message)
	if pe != nil {
		pe.Recoverable = true
	}
	return pe
}

// WrapInternal wraps an error as an internal error
func WrapInternal(err error, code, message string) *PreviewError {
	pe := Wrap(err, ErrorTypeInternal, code, message)
	if pe != nil {
		pe.Recoverable = false
	}
	return pe
}

// FormatError formats an error for user display
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Error()
	}

	return err.Error()
}

// GetErrorContext extracts structured fields from a PreviewError, suitable
// for passing to a logger.
func GetErrorContext(err error) map[string]interface{} {
	var pe *PreviewError
	if errors.As(err, &pe) {
		context := make(map[string]interface{})
		for k, v := range pe.Context {
			context[k] = v
		}
		if pe.Component != "" {
			context["component"] = pe.Component
		}
		if pe.Path != "" {
			context["path"] = pe.Path
		}
		if pe.Cause != nil {
			context["cause"] = ExtractCause(pe).Error()
		}
		context["type"] = string(pe.Type)
		context["code"] = pe.Code
		context["recoverable"] = pe.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// ExtractCause extracts the root cause from a wrapped error
func ExtractCause(err error) error {
	for err != nil {
		var pe *PreviewError
		if errors.As(err, &pe) {
			if pe.Cause == nil {
				return pe
			}
			err = pe.Cause
		} else {
			return err
		}
	}
	return nil
}
