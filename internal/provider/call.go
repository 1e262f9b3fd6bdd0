package provider

import (
	"context"
	"fmt"
	"time"
)

// Call runs fn under a deadline of timeout and returns when fn returns or
// the deadline passes, whichever comes first. A provider that ignores its
// context is abandoned at the deadline and its late result dropped. Every
// failure, panics included, wraps ErrProviderUnavailable. A timeout <= 0
// leaves only the deadline of ctx.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		val T
		err error
	}
	// buffered so an abandoned call can still deliver and exit
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: fmt.Errorf("panic: %v", r)}
			}
			done <- res
		}()
		res.val, res.err = fn(ctx)
	}()

	select {
	case res := <-done:
		if res.err != nil {
			var zero T
			return zero, fmt.Errorf("%w: %w", ErrProviderUnavailable, res.err)
		}
		return res.val, nil
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: abandoned: %w", ErrProviderUnavailable, ctx.Err())
	}
}
