// Package groutine starts goroutines carrying a pprof "goroutine_name" label so
// that platform callbacks, status monitors and the session control loop can be
// told apart in profiles and stack dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a new goroutine labelled with name.
//
//	groutine.Go(ctx, "session-loop", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels(string(goroutineNameKey), name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})
}

// Name returns the goroutine name carried by ctx, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(goroutineNameKey).(string)
	return s
}
