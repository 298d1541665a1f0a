package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorUnwrapping(t *testing.T) {
	cause := fmt.Errorf("tesseract: %w", ErrTimeout)
	err := NewAppError("OCR_TIMEOUT", "ocr took too long", cause)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "OCR_TIMEOUT")
	assert.Contains(t, err.Error(), "ocr took too long")
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrTimeout))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", ErrTimeout)))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.False(t, IsTimeout(errors.New("plain failure")))
	assert.False(t, IsTimeout(nil))
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"timeout", fmt.Errorf("x: %w", ErrTimeout), codes.DeadlineExceeded},
		{"not found", fmt.Errorf("x: %w", ErrNotFound), codes.NotFound},
		{"invalid input", fmt.Errorf("x: %w", ErrInvalidInput), codes.InvalidArgument},
		{"unknown", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(StatusFromError(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.want, st.Code())
		})
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = EnsureRequestID(ctx)
	rid := RequestIDFromContext(ctx)
	assert.NotEmpty(t, rid)

	// already-stamped contexts keep their id
	assert.Equal(t, rid, RequestIDFromContext(EnsureRequestID(ctx)))
}
