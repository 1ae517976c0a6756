package dispatch

import (
	"context"

	"ddp-dispatch/internal/domain"
)

// AsCompleted yields the futures in the order they finish. The channel is
// closed after the last future or once ctx is done, whichever comes first.
func AsCompleted(ctx context.Context, futures []domain.Future) <-chan domain.Future {
	out := make(chan domain.Future, len(futures))
	done := make(chan struct{})
	for _, f := range futures {
		go func(f domain.Future) {
			select {
			case <-f.Done():
				out <- f
			case <-ctx.Done():
			}
			done <- struct{}{}
		}(f)
	}
	go func() {
		for range futures {
			<-done
		}
		close(out)
	}()
	return out
}
