package intake

import (
	"fmt"
	"net/http"
)

// Kind classifies why a submission was refused.
type Kind int

const (
	MethodNotAllowed Kind = iota + 1
	QuotaExceeded
	BadUpload
	PayloadTooLarge
	UnsupportedMediaType
	StorageFailure
	InternalError
)

func (k Kind) String() string {
	switch k {
	case MethodNotAllowed:
		return "method_not_allowed"
	case QuotaExceeded:
		return "quota_exceeded"
	case BadUpload:
		return "bad_upload"
	case PayloadTooLarge:
		return "payload_too_large"
	case UnsupportedMediaType:
		return "unsupported_media_type"
	case StorageFailure:
		return "storage_failure"
	case InternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Client-facing messages.
const (
	MsgMethodNotAllowed  = "Method Not Allowed"
	MsgQuotaExceeded     = "Submission limit reached."
	MsgBadUpload         = "No file uploaded or an upload error occurred."
	MsgTransportTooLarge = "File too large. Maximum upload size exceeded."
	MsgUnsupportedType   = "Invalid file type. Only WebM audio is accepted."
	MsgMoveFailed        = "Failed to move the uploaded file. Check directory permissions."
	MsgDirectoryFailed   = "Server failed to create the target upload directory."
	MsgQuotaUnavailable  = "Submission quota could not be verified."
	MsgUploadAbandoned   = "The upload did not finish in time and was not stored."
)

// Error is a refused submission. Message is safe to show to the client.
type Error struct {
	Kind    Kind
	Message string
	// Limit is set for QuotaExceeded.
	Limit int
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case QuotaExceeded:
		return http.StatusTooManyRequests
	case BadUpload:
		return http.StatusBadRequest
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case UnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// Detail is the secondary message sent alongside the error, if any.
func (e *Error) Detail() string {
	if e.Kind == QuotaExceeded {
		return fmt.Sprintf("You have reached the limit of %d submissions allowed per day. Please try again tomorrow.", e.Limit)
	}
	return ""
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
