package usecase

import (
	"context"
	"sort"
	"sync"

	"ddp-dispatch/internal/domain"
)

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.TrainingJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]domain.TrainingJob)}
}

func (r *memJobRepo) Save(_ context.Context, job *domain.TrainingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.Name] = *job
	return nil
}

func (r *memJobRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, name)
	return nil
}

func (r *memJobRepo) Get(_ context.Context, name string) (*domain.TrainingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (r *memJobRepo) List(context.Context) ([]*domain.TrainingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]*domain.TrainingJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		j := j
		jobs = append(jobs, &j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Name < jobs[b].Name })
	return jobs, nil
}

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]domain.RunRecord
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]domain.RunRecord)}
}

func (r *memRunRepo) Save(_ context.Context, record *domain.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *record
	cp.Results = append([]any(nil), record.Results...)
	r.runs[record.ID] = cp
	return nil
}

func (r *memRunRepo) ListByJobName(_ context.Context, jobName string, _, _ int) ([]*domain.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.RunRecord
	for _, rec := range r.runs {
		if rec.JobName == jobName {
			rec := rec
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r *memRunRepo) Get(_ context.Context, jobName, runID string) (*domain.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[runID]
	if !ok || rec.JobName != jobName {
		return nil, domain.ErrRunNotFound
	}
	return &rec, nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Lock(_ context.Context, name string) (domain.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, domain.ErrLockNotAcquired
	}
	l.held[name] = true
	return memLock{l: l, name: name}, nil
}

func (l *memLocker) isHeld(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[name]
}

type memLock struct {
	l    *memLocker
	name string
}

func (m memLock) Unlock(context.Context) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	delete(m.l.held, m.name)
	return nil
}

type doneFuture struct {
	done    chan struct{}
	result  any
	err     error
}

func (f *doneFuture) Done() <-chan struct{} { return f.done }

func (f *doneFuture) Result(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stubCluster answers every submission with the rank, or err for failRank.
// When gate is set, futures complete only after it is closed.
type stubCluster struct {
	info     domain.SchedulerInfo
	gate     chan struct{}
	failRank int
	err      error

	mu          sync.Mutex
	invocations []domain.Invocation
}

func (c *stubCluster) SchedulerInfo(context.Context) (domain.SchedulerInfo, error) {
	return c.info, nil
}

func (c *stubCluster) Submit(_ context.Context, _ string, inv domain.Invocation) (domain.Future, error) {
	c.mu.Lock()
	c.invocations = append(c.invocations, inv)
	c.mu.Unlock()

	f := &doneFuture{done: make(chan struct{}), result: inv.Rank}
	if c.err != nil && inv.Rank == c.failRank {
		f.result, f.err = nil, c.err
	}
	if c.gate == nil {
		close(f.done)
		return f, nil
	}
	go func() {
		<-c.gate
		close(f.done)
	}()
	return f, nil
}

func (c *stubCluster) submitted() []domain.Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Invocation(nil), c.invocations...)
}

type recordingScheduler struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (s *recordingScheduler) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *recordingScheduler) Stop() {}

func (s *recordingScheduler) AddJob(job *domain.TrainingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, job.Name)
	return nil
}

func (s *recordingScheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, name)
	return nil
}

func twoWorkers() domain.SchedulerInfo {
	return domain.SchedulerInfo{Workers: map[string]domain.WorkerInfo{
		"tcp://10.0.0.2:8786": {Address: "tcp://10.0.0.2:8786", Host: "10.0.0.2"},
		"tcp://10.0.0.1:8786": {Address: "tcp://10.0.0.1:8786", Host: "10.0.0.1"},
	}}
}
