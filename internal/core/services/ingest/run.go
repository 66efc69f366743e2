package ingest

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/alejandroruanova/dupflatten/internal/pkg/errors"
)

// Run is a flattening run executing in the background. It finishes exactly
// once, with either a result or an error.
type Run struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *Result
	err    error
}

// Start executes fn on its own goroutine. Canceling ctx or calling Cancel
// stops the run at the next group boundary and rolls it back.
func Start(ctx context.Context, fn func(context.Context) (*Result, error)) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		defer cancel()

		result, err := r.execute(runCtx, fn)

		r.mu.Lock()
		r.result, r.err = result, err
		r.mu.Unlock()
	}()

	return r
}

func (r *Run) execute(ctx context.Context, fn func(context.Context) (*Result, error)) (result *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = apperrors.Internal(fmt.Sprintf("ingest panicked: %v", rec))
		}
	}()

	result, err = fn(ctx)
	if err == nil && result == nil {
		err = apperrors.Internal("ingest finished without a result")
	}
	return result, err
}

// Done is closed when the run has finished
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes and returns its outcome
func (r *Run) Wait() (*Result, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Cancel asks the run to stop. It does not wait.
func (r *Run) Cancel() {
	r.cancel()
}
