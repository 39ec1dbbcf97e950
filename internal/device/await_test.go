package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blesense/internal/groutine"
)

func TestAwaitReturnsResult(t *testing.T) {
	v, err := Await(context.Background(), "read", func() ([]byte, error) {
		return []byte{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, v)
}

func TestAwaitPassesErrorThrough(t *testing.T) {
	boom := errors.New("boom")
	err := AwaitErr(context.Background(), "write", func() error { return boom })

	assert.Same(t, boom, err, "platform errors MUST be returned unchanged")
}

func TestAwaitTimesOut(t *testing.T) {
	// GOAL: Verify a hung platform call is bounded by the context deadline
	//
	// TEST SCENARIO: call blocks past deadline → CommunicationError(timeout) returned promptly

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Await(ctx, "discover services", func() (int, error) {
		<-release
		return 1, nil
	})

	var cerr *CommunicationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, StatusTimeout, cerr.Status)
	assert.Equal(t, "discover services", cerr.Op)
	assert.Less(t, time.Since(start), time.Second, "MUST not wait for the platform call")
}

func TestAwaitOnDoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := AwaitErr(ctx, "write", func() error {
		called = true
		return nil
	})

	assert.False(t, called, "MUST not start the call on a done context")
	assert.Equal(t, StatusUnreachable, StatusOf(err))
}

func TestAwaitRunsOnNamedGoroutine(t *testing.T) {
	// GOAL: Verify platform calls run on goroutines labelled after the operation
	//
	// TEST SCENARIO: record spawned names → Await "discover services" → name carries the op

	original := spawn
	defer func() { spawn = original }()

	var names []string
	var seen string
	spawn = func(ctx context.Context, name string, fn func(ctx context.Context)) {
		names = append(names, name)
		original(ctx, name, func(ctx context.Context) {
			seen = groutine.Name(ctx)
			fn(ctx)
		})
	}

	_, err := Await(context.Background(), "discover services", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	assert.Equal(t, []string{"await-discover services"}, names)
	assert.Equal(t, "await-discover services", seen, "the call MUST run with the goroutine name in its context")
}
