package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/BaSui01/lessonpipe/types"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	typed := types.NewError(types.ErrForbidden, "nope")

	tests := []struct {
		name      string
		err       error
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"already typed", fmt.Errorf("wrapped: %w", typed), types.ErrForbidden, false},
		{"canceled", context.Canceled, types.ErrCanceled, false},
		{"deadline", context.DeadlineExceeded, types.ErrUpstreamTimeout, true},
		{"unexpected eof", io.ErrUnexpectedEOF, types.ErrServiceUnavailable, true},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, types.ErrUpstreamTimeout, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.example"}, types.ErrServiceUnavailable, true},
		{"unknown", errors.New("???"), types.ErrInternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
		})
	}

	assert.Nil(t, Classify(nil))
	assert.Same(t, typed, Classify(typed))
}
