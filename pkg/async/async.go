// Package async turns blocking client calls into callback-style operations
// whose completion is delivered exactly once on a chosen executor.
package async

import (
	"context"
	"fmt"
	"sync"

	apierrors "github.com/spounge-ai/polypay/pkg/errors"
)

// Completion receives the outcome of an asynchronous operation: a result or an error, never both.
type Completion[T any] func(T, error)

// Handle controls an in-flight operation.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	settled   bool
	cancelled bool
}

// Cancel aborts the operation. If the outcome has not been settled yet the
// completion fires with an error matching ErrCancelled and any late response
// is dropped; after settlement Cancel has no effect.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if !h.settled {
		h.cancelled = true
	}
	h.mu.Unlock()
	h.cancel()
}

// Done is closed once the completion has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// settle fixes the outcome; it reports whether Cancel won the race.
func (h *Handle) settle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settled = true
	return h.cancelled
}

// Go runs fn on its own goroutine and delivers its outcome to done via exec.
// A nil exec delivers inline; a nil done discards the outcome.
func Go[T any](ctx context.Context, exec Executor, op string, fn func(context.Context) (T, error), done Completion[T]) *Handle {
	if exec == nil {
		exec = Inline
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer cancel()
		result, err := call(ctx, op, fn)
		if h.settle() {
			var zero T
			result, err = zero, cancelledError(op, err)
		}
		exec.Execute(func() {
			defer close(h.done)
			if done != nil {
				done(result, err)
			}
		})
	}()

	return h
}

// Fail delivers err without running anything. It is used when a request is
// rejected before any network I/O.
func Fail[T any](exec Executor, err error, done Completion[T]) *Handle {
	return Go(context.Background(), exec, "", func(context.Context) (T, error) {
		var zero T
		return zero, err
	}, done)
}

func call[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, err = zero, apierrors.New(apierrors.KindUnknown, op, fmt.Errorf("panic: %v", r))
		}
	}()
	return fn(ctx)
}

func cancelledError(op string, err error) error {
	if apierrors.KindOf(err) == apierrors.KindCancelled {
		return err
	}
	return apierrors.New(apierrors.KindCancelled, op, context.Canceled)
}
