package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"voxelcore/internal/chunk"
	"voxelcore/internal/profiling"
	"voxelcore/internal/world"
)

var errCanceled = errors.New("streaming: operation canceled")

// Options configure a Loader.
type Options struct {
	ViewDistance int
	Bounds       Bounds
	// Parallelism bounds concurrent fetches within one distance group.
	Parallelism int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Hooks observe a streaming operation. They run on the operation's goroutine
// while it holds its lock, so they must not call back into the Loader or the
// Operation.
type Hooks struct {
	OnRequest     func(coord chunk.Coord)
	OnAttach      func(coord chunk.Coord)
	OnDetach      func(coord chunk.Coord)
	OnPlaceholder func(coord chunk.Coord, err error)
	OnComplete    func(stats Stats)
}

// Loader keeps the world map's loaded set equal to the chunks visible from a
// moving reference point. At most one streaming operation is live; a new
// reference chunk cancels it and starts another.
type Loader struct {
	opts    Options
	m       *world.Map
	fetcher Fetcher
	hooks   Hooks
	metrics *Metrics
	prof    *profiling.Profiler
	log     *zap.Logger

	mu     sync.Mutex
	ref    chunk.Coord
	hasRef bool
	op     *Operation
	closed bool
	wg     sync.WaitGroup
}

// NewLoader creates a loader and installs it as the map's hydrator.
func NewLoader(m *world.Map, f Fetcher, opts Options, hooks Hooks, metrics *Metrics, prof *profiling.Profiler, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 100 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = opts.BackoffBase
	}
	l := &Loader{
		opts:    opts,
		m:       m,
		fetcher: f,
		hooks:   hooks,
		metrics: metrics,
		prof:    prof,
		log:     logger,
	}
	m.SetHydrator(l)
	return l
}

// Update moves the reference point. It returns nil when the reference chunk
// did not change, otherwise the newly started operation.
func (l *Loader) Update(pos mgl32.Vec3) *Operation {
	return l.UpdateChunk(ChunkOf(pos, l.m.Dims(), l.m.BlockShift()))
}

// UpdateChunk is Update for a reference already in chunk coordinates.
func (l *Loader) UpdateChunk(ref chunk.Coord) *Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || (l.hasRef && l.ref == ref) {
		return nil
	}
	l.ref, l.hasRef = ref, true
	if l.op != nil {
		l.op.Cancel()
	}
	op := newOperation(l, ref)
	l.op = op
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		op.run()
	}()
	return op
}

// Current returns the latest operation, finished or not.
func (l *Loader) Current() *Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.op
}

// Close cancels the live operation and waits for operation goroutines.
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	if l.op != nil {
		l.op.Cancel()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// Hydrate refetches a chunk so the world map can restore its colour data.
func (l *Loader) Hydrate(ctx context.Context, coord chunk.Coord) (*chunk.Chunk, error) {
	return l.fetch(ctx, coord, nil)
}

// fetch runs the fetcher with capped exponential backoff. Retries stop once
// op is canceled.
func (l *Loader) fetch(ctx context.Context, coord chunk.Coord, op *Operation) (*chunk.Chunk, error) {
	defer l.prof.Track("streaming.fetch")()
	l.metrics.fetchStarted()
	defer l.metrics.fetchDone()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = l.opts.BackoffBase
	expo.MaxInterval = l.opts.BackoffMax
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(max(l.opts.MaxRetries, 0))), ctx)

	dims := l.m.Dims()
	attempt := func() (*chunk.Chunk, error) {
		if op != nil && op.Canceled() {
			return nil, backoff.Permanent(errCanceled)
		}
		c, err := l.fetcher.Fetch(ctx, coord)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadPayload) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			return nil, err
		}
		if c.Dims() != dims {
			return nil, backoff.Permanent(fmt.Errorf("chunk %s: dims %v, want %v", coord, c.Dims(), dims))
		}
		c.Coord = coord
		return c, nil
	}
	notify := func(err error, wait time.Duration) {
		l.metrics.retry()
		if op != nil {
			op.addRetry()
		}
		l.log.Debug("fetch failed, retrying", zap.Stringer("chunk", coord), zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotifyWithData(attempt, policy, notify)
}
