package async

import (
	"context"

	"github.com/teranos/prism/errors"
)

// ErrorCode represents the classification of an error
type ErrorCode string

const (
	ErrorCodeStoreUnavailable ErrorCode = "store_unavailable"
	ErrorCodeUnsupportedType  ErrorCode = "unsupported_data_type"
	ErrorCodeInvalidRequest   ErrorCode = "invalid_request"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeTimeout          ErrorCode = "timeout"
	ErrorCodeCancelled        ErrorCode = "cancelled"
	ErrorCodeUnknown          ErrorCode = "unknown"
)

// ErrorContext provides structured error information for job failures
type ErrorContext struct {
	Stage     string    // Where the error occurred
	Code      ErrorCode // Error classification
	Message   string    // Human-readable message
	Retryable bool      // Can the job be retried?
}

// ClassifyError categorizes a job failure by the sentinel it is marked with.
//
// Definition bugs (unsupported data types, malformed payloads) fail the job
// immediately. Store failures, timeouts and anything unrecognised are retried.
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{
			Stage:   stage,
			Code:    ErrorCodeUnknown,
			Message: "unknown error",
		}
	}

	ctx := ErrorContext{
		Stage:   stage,
		Message: err.Error(),
	}

	switch {
	case errors.Is(err, errors.ErrUnsupportedDataType):
		ctx.Code = ErrorCodeUnsupportedType
		ctx.Retryable = false

	case errors.Is(err, errors.ErrInvalidRequest):
		ctx.Code = ErrorCodeInvalidRequest
		ctx.Retryable = false

	case errors.Is(err, errors.ErrStoreUnavailable):
		ctx.Code = ErrorCodeStoreUnavailable
		ctx.Retryable = true

	case errors.Is(err, errors.ErrNotFound):
		ctx.Code = ErrorCodeNotFound
		ctx.Retryable = false

	case errors.Is(err, context.DeadlineExceeded):
		ctx.Code = ErrorCodeTimeout
		ctx.Retryable = true

	case errors.Is(err, context.Canceled):
		ctx.Code = ErrorCodeCancelled
		ctx.Retryable = true

	default:
		ctx.Code = ErrorCodeUnknown
		ctx.Retryable = true
	}

	return ctx
}
