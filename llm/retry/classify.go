package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/BaSui01/lessonpipe/types"
)

// Classify 将任意错误归类为 *types.Error
// 已分类的错误原样返回；未知错误视为不可重试的内部错误
func Classify(err error) *types.Error {
	if err == nil {
		return nil
	}
	if e, ok := types.AsError(err); ok {
		return e
	}

	switch {
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrCanceled, "request canceled").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrUpstreamTimeout, "request timed out").
			WithCause(err).WithRetryable(true)
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return types.NewError(types.ErrServiceUnavailable, "connection failed").
			WithCause(err).WithRetryable(true)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return types.NewError(types.ErrUpstreamTimeout, "network timeout").
				WithCause(err).WithRetryable(true)
		}
		return types.NewError(types.ErrServiceUnavailable, "network error").
			WithCause(err).WithRetryable(true)
	}

	return types.NewError(types.ErrInternalError, "unclassified error").WithCause(err)
}
