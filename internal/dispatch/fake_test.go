package dispatch

import (
	"context"
	"errors"
	"sync"

	"ddp-dispatch/internal/domain"
)

type fakeFuture struct {
	done      chan struct{}
	collected chan struct{}
	once      sync.Once
	result    any
	err       error
}

func newFakeFuture(result any, err error) *fakeFuture {
	return &fakeFuture{
		done:      make(chan struct{}),
		collected: make(chan struct{}),
		result:    result,
		err:       err,
	}
}

func (f *fakeFuture) finish() { close(f.done) }

func (f *fakeFuture) Done() <-chan struct{} { return f.done }

func (f *fakeFuture) Result(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		f.once.Do(func() { close(f.collected) })
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type submission struct {
	worker string
	inv    domain.Invocation
}

type fakeClient struct {
	info      domain.SchedulerInfo
	infoErr   error
	mu        sync.Mutex
	submitted []submission
	// futures are handed out in submission order; when empty a finished
	// future returning the rank is created.
	futures   []domain.Future
	submitErr error
}

func (c *fakeClient) SchedulerInfo(context.Context) (domain.SchedulerInfo, error) {
	return c.info, c.infoErr
}

func (c *fakeClient) Submit(_ context.Context, worker string, inv domain.Invocation) (domain.Future, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	c.submitted = append(c.submitted, submission{worker: worker, inv: inv})
	if len(c.futures) > 0 {
		f := c.futures[0]
		c.futures = c.futures[1:]
		return f, nil
	}
	f := newFakeFuture(inv.Rank, nil)
	f.finish()
	return f, nil
}

type fakeProcessGroup struct {
	initCalls    int
	destroyCalls int
	rendezvous   domain.Rendezvous
	initErr      error
	// env observed at Init time, to check the variables were set first
	seenEnv []string
	env     Environ
}

func (p *fakeProcessGroup) Init(_ context.Context, rv domain.Rendezvous) error {
	p.initCalls++
	p.rendezvous = rv
	if p.env != nil {
		p.seenEnv = p.env.Environ()
	}
	return p.initErr
}

func (p *fakeProcessGroup) Destroy(context.Context) error {
	p.destroyCalls++
	return nil
}

var errBoom = errors.New("boom")

func testWorkers() domain.SchedulerInfo {
	return domain.SchedulerInfo{Workers: map[string]domain.WorkerInfo{
		"tcp://1.2.3.4:8786": {Address: "tcp://1.2.3.4:8786", Host: "1.2.3.4"},
		"tcp://2.2.3.4:8786": {Address: "tcp://2.2.3.4:8786", Host: "2.2.3.4"},
		"tcp://3.2.3.4:8786": {Address: "tcp://3.2.3.4:8786", Host: "3.2.3.4"},
		"tcp://4.2.3.4:8786": {Address: "tcp://4.2.3.4:8786", Host: "4.2.3.4"},
	}}
}
