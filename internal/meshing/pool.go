package meshing

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"voxelcore/internal/profiling"
)

// ErrExecutorClosed is reported to completions submitted after Close.
var ErrExecutorClosed = errors.New("meshing: executor closed")

type job struct {
	req  Request
	done func(Result)
}

// Executor runs mesh builds on a small fixed set of worker goroutines fed
// round-robin. It is created once per session and shared by everything that
// needs meshing. With zero workers, or when the chosen worker's queue is
// full, a build runs synchronously on the caller.
type Executor struct {
	queues []chan job
	next   atomic.Uint64
	ids    atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	inline atomic.Uint64
	prof   *profiling.Profiler
	log    *zap.Logger
}

// NewExecutor starts workers goroutines, each with its own queue.
func NewExecutor(workers, queueSize int, prof *profiling.Profiler, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		queues: make([]chan job, max(workers, 0)),
		prof:   prof,
		log:    logger,
	}
	for i := range e.queues {
		e.queues[i] = make(chan job, max(queueSize, 1))
		e.wg.Add(1)
		go e.worker(i, e.queues[i])
	}
	e.log.Debug("mesh executor started", zap.Int("workers", len(e.queues)), zap.Int("queue", queueSize))
	return e
}

// Workers returns the number of worker goroutines.
func (e *Executor) Workers() int {
	return len(e.queues)
}

// InlineRuns counts builds that ran on the submitting goroutine.
func (e *Executor) InlineRuns() uint64 {
	return e.inline.Load()
}

// NextID reserves a request ID.
func (e *Executor) NextID() uint64 {
	return e.ids.Add(1)
}

// Submit schedules a build and returns its request ID (assigned if the
// request has none). done is called exactly once, from a worker goroutine or
// from the caller when the build runs inline.
func (e *Executor) Submit(req Request, done func(Result)) uint64 {
	if req.ID == 0 {
		req.ID = e.NextID()
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		done(Result{ID: req.ID, Coord: req.Coord, Version: req.Version, Err: ErrExecutorClosed})
		return req.ID
	}
	if n := uint64(len(e.queues)); n > 0 {
		q := e.queues[(e.next.Add(1)-1)%n]
		select {
		case q <- job{req: req, done: done}:
			e.mu.RUnlock()
			return req.ID
		default:
		}
	}
	e.mu.RUnlock()

	e.inline.Add(1)
	done(e.build(req))
	return req.ID
}

func (e *Executor) build(req Request) Result {
	defer e.prof.Track("meshing.Build")()
	return Build(req)
}

func (e *Executor) worker(id int, queue <-chan job) {
	defer e.wg.Done()
	for j := range queue {
		j.done(e.build(j.req))
	}
	e.log.Debug("mesh worker stopped", zap.Int("worker", id))
}

// Close stops accepting work, lets queued builds finish and waits for the
// workers to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, q := range e.queues {
		close(q)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
