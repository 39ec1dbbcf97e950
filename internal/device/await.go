package device

import (
	"context"

	"github.com/srg/blesense/internal/groutine"
)

// spawn starts the goroutine running a platform call (can be overridden in tests)
var spawn = groutine.Go

// Await runs fn on its own goroutine and waits for it or for ctx, whichever
// finishes first. When ctx expires first the result of fn is discarded and a
// *CommunicationError with StatusTimeout is returned; fn itself keeps running
// until the platform gives up, since BLE stacks offer no way to abort a GATT
// round trip midway.
func Await[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	if err := ctx.Err(); err != nil {
		var zero T
		return zero, expired(op, err)
	}

	done := make(chan result, 1)
	spawn(ctx, "await-"+op, func(context.Context) {
		v, err := fn()
		done <- result{v, err}
	})

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, expired(op, ctx.Err())
	}
}

// AwaitErr is Await for calls that only return an error.
func AwaitErr(ctx context.Context, op string, fn func() error) error {
	_, err := Await(ctx, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func expired(op string, err error) error {
	status := StatusTimeout
	if err == context.Canceled {
		status = StatusUnreachable
	}
	return &CommunicationError{Op: op, Status: status, Err: err}
}
