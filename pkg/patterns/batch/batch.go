package batch

import (
	"context"
	"errors"
	"sync"
)

// ErrSkipped marks items that were not processed because an earlier item
// failed and the batch was not allowed to continue.
var ErrSkipped = errors.New("skipped after earlier failure")

// Item is the outcome for one request, at the same index as the request.
type Item[TResult any] struct {
	Result TResult
	Error  error
}

type Result[TResult any] struct {
	Items []Item[TResult]
}

// Failed counts items that carry an error.
func (r *Result[TResult]) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Error != nil {
			n++
		}
	}
	return n
}

// Processor runs requests with bounded concurrency. Validate is optional and
// runs before Process; a validation error counts as a failure of that item.
type Processor[TRequest, TResult any] struct {
	MaxConcurrency int
	Validate       func(TRequest) error
	Process        func(context.Context, TRequest) (TResult, error)
}

// ProcessBatch runs every request and returns per-item outcomes in request
// order. With continueOnError false the first failure stops items that have
// not started yet; they report ErrSkipped.
func (p *Processor[TRequest, TResult]) ProcessBatch(ctx context.Context, requests []TRequest, continueOnError bool) *Result[TResult] {
	limit := p.MaxConcurrency
	if limit < 1 {
		limit = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make([]Item[TResult], len(requests))
	semaphore := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(index int, request TRequest) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				items[index] = Item[TResult]{Error: skippedOr(ctx)}
				return
			}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				items[index] = Item[TResult]{Error: skippedOr(ctx)}
				return
			}

			if p.Validate != nil {
				if err := p.Validate(request); err != nil {
					items[index] = Item[TResult]{Error: err}
					if !continueOnError {
						cancel()
					}
					return
				}
			}

			result, err := p.Process(ctx, request)
			items[index] = Item[TResult]{Result: result, Error: err}
			if err != nil && !continueOnError {
				cancel()
			}
		}(i, req)
	}

	wg.Wait()
	return &Result[TResult]{Items: items}
}

func skippedOr(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), context.Canceled) {
		return ErrSkipped
	}
	return ctx.Err()
}
