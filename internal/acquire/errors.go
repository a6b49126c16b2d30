package acquire

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure so that upstream layers
// (API, bot UI) can branch on the category without inspecting message
// text. Quota and validation failures are user-facing and must not be
// retried; the remainder are surfaced as task failures.
type ErrorKind string

const (
	ValidationFailure  ErrorKind = "VALIDATION"
	NoHandlerFailure   ErrorKind = "NO_HANDLER"
	QuotaFailure       ErrorKind = "QUOTA_EXCEEDED"
	MetadataFailure    ErrorKind = "METADATA_EXTRACTION"
	FetchFailure       ErrorKind = "FETCH"
	PersistFailure     ErrorKind = "PERSIST"
	NotFoundFailure    ErrorKind = "NOT_FOUND"
	CancellationDenied ErrorKind = "CANCELLATION_DENIED"
)

type PipelineError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause.Error())
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

func newPipelineError(kind ErrorKind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the ErrorKind from err if it (or anything it wraps)
// is a PipelineError. Errors raised outside of the pipeline report an
// empty kind.
func KindOf(err error) ErrorKind {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}

	return ""
}
