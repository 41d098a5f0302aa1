package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

var (
	ErrClosed = errors.New("queue: closed")
	ErrFull   = errors.New("queue: full")
)

// Job is a unit of work. Jobs with the same Key run on the same worker, in
// the order they were enqueued.
type Job struct {
	Key  string
	Fn   func(ctx context.Context) error
	Errc chan error
}

// Manager runs jobs on a fixed set of workers, one channel per worker
type Manager struct {
	shards []chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewManager starts workers goroutines, each with its own queue of queueSize jobs
func NewManager(workers int, queueSize int) *Manager {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		shards: make([]chan Job, workers),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range m.shards {
		m.shards[i] = make(chan Job, queueSize)
	}
	m.startWorkers()
	return m
}

func (m *Manager) startWorkers() {
	for i, ch := range m.shards {
		m.wg.Add(1)
		go func(workerID int, jobs <-chan Job) {
			defer m.wg.Done()
			log.Printf("Persistence worker %d started", workerID)
			for job := range jobs {
				err := m.run(job)
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			log.Printf("Persistence worker %d stopped", workerID)
		}(i, ch)
	}
}

func (m *Manager) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in job for %s: %v", job.Key, r)
			err = errors.New("queue: job panicked")
		}
	}()
	return job.Fn(m.ctx)
}

func (m *Manager) shard(key string) chan Job {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Enqueue blocks until the job is queued, ctx is done, or the manager is closed
func (m *Manager) Enqueue(ctx context.Context, job Job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	select {
	case m.shard(job.Key) <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue queues the job without blocking
func (m *Manager) TryEnqueue(job Job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	select {
	case m.shard(job.Key) <- job:
		return nil
	default:
		return ErrFull
	}
}

// Do enqueues fn and waits for its result
func (m *Manager) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	if err := m.Enqueue(ctx, Job{Key: key, Fn: fn, Errc: errc}); err != nil {
		return err
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of jobs waiting across all workers
func (m *Manager) Depth() int {
	n := 0
	for _, ch := range m.shards {
		n += len(ch)
	}
	return n
}

// Shutdown stops accepting jobs and waits for queued ones to finish. Jobs
// still running when the timeout expires see their context cancelled.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, ch := range m.shards {
		close(ch)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-time.After(timeout):
		m.cancel()
		log.Println("Persistence queue shutdown timeout reached, cancelling pending jobs")
		<-done
		return context.DeadlineExceeded
	}
}
