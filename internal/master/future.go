package master

import "context"

// Future is the pending result of one remote invocation.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Done is closed once the invocation finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result waits for the invocation and returns the worker's result or error.
func (f *Future) Result(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
