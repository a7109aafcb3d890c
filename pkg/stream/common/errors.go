package common

import (
	"errors"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
)

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// StreamError represents errors raised while resolving, downloading or buffering media
type StreamError struct {
	Type    MediaType      `json:"type"`
	URL     string         `json:"url"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  logging.Fields `json:"fields,omitempty"`
	Cause   error          `json:"-"`
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeConnection     = "CONNECTION_FAILED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInvalidFormat  = "INVALID_FORMAT"
	ErrCodeUnsupported    = "UNSUPPORTED"
	ErrCodeManifest       = "MANIFEST_ERROR"
	ErrCodeAborted        = "ABORTED"
	ErrCodeBufferRejected = "BUFFER_REJECTED"
	ErrCodeState          = "INVALID_STATE"
)

// NewStreamError creates a new stream error
func NewStreamError(mediaType MediaType, url, code, message string, cause error) *StreamError {
	return &StreamError{
		Type:    mediaType,
		URL:     url,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewStreamErrorWithFields creates a new stream error carrying extra log fields
func NewStreamErrorWithFields(mediaType MediaType, url, code, message string, cause error, fields logging.Fields) *StreamError {
	err := NewStreamError(mediaType, url, code, message, cause)
	err.Fields = fields
	return err
}

// HasCode reports whether err wraps a StreamError with the given code
func HasCode(err error, code string) bool {
	var se *StreamError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}
