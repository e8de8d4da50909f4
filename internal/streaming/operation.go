package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelcore/internal/chunk"
	"voxelcore/internal/world"
)

// Stats summarize one streaming operation.
type Stats struct {
	Ref          chunk.Coord
	Requested    int
	Attached     int
	Detached     int
	Placeholders int
	Retries      int
	Canceled     bool
	Elapsed      time.Duration
}

// Operation is one cooperative streaming pass. Cancellation is checked
// between steps; fetches already issued run to completion and their results
// are discarded.
type Operation struct {
	ID  uuid.UUID
	Ref chunk.Coord

	l     *Loader
	done  chan struct{}
	start time.Time

	mu       sync.Mutex
	hooks    Hooks
	canceled bool
	stats    Stats
	unload   []chunk.Coord
}

func newOperation(l *Loader, ref chunk.Coord) *Operation {
	return &Operation{
		ID:    uuid.New(),
		Ref:   ref,
		l:     l,
		done:  make(chan struct{}),
		start: time.Now(),
		hooks: l.hooks,
		stats: Stats{Ref: ref},
	}
}

// Cancel stops the operation. Once it returns no hook of this operation runs
// again. Canceling twice is harmless.
func (op *Operation) Cancel() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.canceled {
		return
	}
	select {
	case <-op.done:
		return
	default:
	}
	op.canceled = true
	op.stats.Canceled = true
	op.hooks = Hooks{}
	op.unload = nil
	op.l.metrics.canceled()
}

func (op *Operation) Canceled() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.canceled
}

// Done is closed when the operation has finished or observed its cancellation.
func (op *Operation) Done() <-chan struct{} {
	return op.done
}

// Wait blocks until Done or ctx ends.
func (op *Operation) Wait(ctx context.Context) error {
	select {
	case <-op.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (op *Operation) Stats() Stats {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.stats
}

func (op *Operation) addRetry() {
	op.mu.Lock()
	op.stats.Retries++
	op.mu.Unlock()
}

type fetched struct {
	chunk *chunk.Chunk
	err   error
}

func (op *Operation) run() {
	defer close(op.done)
	l := op.l
	defer l.prof.Track("streaming.operation")()
	log := l.log.With(zap.Stringer("op", op.ID), zap.Stringer("ref", op.Ref))

	visible := VisibleBox(op.Ref, l.opts.ViewDistance, l.opts.Bounds)
	toLoad, toUnload := Diff(visible, l.m.Registered())
	groups := Prioritize(op.Ref, toLoad)

	op.mu.Lock()
	op.unload = toUnload
	op.mu.Unlock()
	log.Debug("streaming started", zap.Int("load", len(toLoad)), zap.Int("unload", len(toUnload)), zap.Int("groups", len(groups)))

	// fetches outlive cancellation; their results are simply not attached
	fetchCtx := context.WithoutCancel(context.Background())

	for _, group := range groups {
		results := make([]fetched, len(group))
		var g errgroup.Group
		g.SetLimit(l.opts.Parallelism)
		for i, coord := range group {
			if !op.emit(func(h Hooks) {
				op.stats.Requested++
				l.metrics.request()
				if h.OnRequest != nil {
					h.OnRequest(coord)
				}
			}) {
				break
			}
			g.Go(func() error {
				c, err := l.fetch(fetchCtx, coord, op)
				results[i] = fetched{chunk: c, err: err}
				return nil
			})
		}
		g.Wait()

		for i, coord := range group {
			if !op.attach(coord, results[i], log) {
				log.Debug("streaming canceled")
				return
			}
		}
	}

	op.emit(func(h Hooks) {
		for len(op.unload) > 0 {
			op.detachNext()
		}
		op.stats.Elapsed = time.Since(op.start)
		if h.OnComplete != nil {
			h.OnComplete(op.stats)
		}
		log.Debug("streaming complete",
			zap.Int("attached", op.stats.Attached),
			zap.Int("detached", op.stats.Detached),
			zap.Int("placeholders", op.stats.Placeholders),
			zap.Duration("elapsed", op.stats.Elapsed))
	})
}

// emit runs fn under the operation lock unless canceled. fn sees the hooks
// current at that moment.
func (op *Operation) emit(fn func(h Hooks)) bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.canceled {
		return false
	}
	fn(op.hooks)
	return true
}

// attach installs one fetched chunk, or a placeholder when the fetch failed,
// then pairs it with one pending detach.
func (op *Operation) attach(coord chunk.Coord, res fetched, log *zap.Logger) bool {
	l := op.l
	return op.emit(func(h Hooks) {
		if res.chunk == nil {
			err := res.err
			if err == nil {
				err = errors.New("fetch returned no chunk")
			}
			log.Warn("fetch exhausted, using placeholder", zap.Stringer("chunk", coord), zap.Error(err))
			res.chunk = world.Placeholder(coord, l.m.Dims())
			op.stats.Placeholders++
			l.metrics.placeholder()
			if h.OnPlaceholder != nil {
				h.OnPlaceholder(coord, err)
			}
		}
		if err := l.m.Attach(res.chunk); err != nil {
			// attached meanwhile by a hydration or an earlier pass
			log.Debug("attach skipped", zap.Stringer("chunk", coord), zap.Error(err))
			return
		}
		op.stats.Attached++
		l.metrics.attach(l.m.Len())
		if h.OnAttach != nil {
			h.OnAttach(coord)
		}
		if len(op.unload) > 0 {
			op.detachNext()
		}
	})
}

// detachNext must hold op.mu.
func (op *Operation) detachNext() {
	coord := op.unload[0]
	op.unload = op.unload[1:]
	if !op.l.m.Detach(coord) {
		return
	}
	op.stats.Detached++
	op.l.metrics.detach(op.l.m.Len())
	if op.hooks.OnDetach != nil {
		op.hooks.OnDetach(coord)
	}
}
