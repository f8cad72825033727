package async

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/prism/errors"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		retryable bool
	}{
		{
			name:      "store unavailable is retried",
			err:       errors.Unavailable(errors.New("connection refused"), "failed to upsert entity_live:1"),
			code:      ErrorCodeStoreUnavailable,
			retryable: true,
		},
		{
			name:      "unsupported data type fails the build",
			err:       errors.Wrap(errors.Unsupported("attribute %q has data type %q", "height", "polygon"), "build entity 7"),
			code:      ErrorCodeUnsupportedType,
			retryable: false,
		},
		{
			name:      "malformed payload is not retried",
			err:       errors.NewInvalidRequestError("decode payload"),
			code:      ErrorCodeInvalidRequest,
			retryable: false,
		},
		{
			name:      "not found is not retried",
			err:       errors.NewNotFoundError("job not found: x"),
			code:      ErrorCodeNotFound,
			retryable: false,
		},
		{
			name:      "deadline is retried",
			err:       errors.Wrap(context.DeadlineExceeded, "search.entity"),
			code:      ErrorCodeTimeout,
			retryable: true,
		},
		{
			name:      "cancellation is retried",
			err:       context.Canceled,
			code:      ErrorCodeCancelled,
			retryable: true,
		},
		{
			name:      "unknown errors are retried",
			err:       errors.New("database is locked"),
			code:      ErrorCodeUnknown,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError("execute", tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, "execute", got.Stage)
			assert.Equal(t, tt.err.Error(), got.Message)
		})
	}
}

func TestClassifyNilError(t *testing.T) {
	got := ClassifyError("execute", nil)
	assert.Equal(t, ErrorCodeUnknown, got.Code)
	assert.False(t, got.Retryable)
}

// Store failures stay retryable however much the unit handler wraps them
func TestClassifyErrorUnavailableWinsOverWrapping(t *testing.T) {
	err := errors.Unavailable(errors.New("503"), "failed to merge node")
	err = errors.Wrapf(err, "graph.entity %d", 3)
	err = errors.WithDetail(err, "Attempt: 2")

	assert.Equal(t, ErrorCodeStoreUnavailable, ClassifyError("execute", err).Code)
}
