package retry

import "context"

// DoWithResultTyped is a type-safe generic wrapper around Retryer.DoWithResult.
// It also reports how many attempts were made.
//
// Usage:
//
//	val, attempts, err := retry.DoWithResultTyped[int](r, ctx, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, int, error) {
	result, attempts, err := r.DoWithResult(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, attempts, err
	}
	return result.(T), attempts, nil
}
