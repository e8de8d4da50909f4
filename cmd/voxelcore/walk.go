package main

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"voxelcore/internal/chunk"
	"voxelcore/internal/physics"
	"voxelcore/internal/session"
	"voxelcore/internal/streaming"
)

// WalkOptions configure the headless walk.
type WalkOptions struct {
	Ticks int
	Rate  int
	// Speed is in blocks per second along +X.
	Speed float32
	Spawn string
}

// WalkLoop drives a session the way a client would: an entity walks across
// the terrain, the streaming reference follows it and the maps tick.
type WalkLoop struct {
	sess    *session.Session
	log     *zap.Logger
	opts    WalkOptions
	limiter *session.TickLimiter

	body     *session.Body
	lastTick time.Time
	lastLog  time.Time
	jumps    int
}

func NewWalkLoop(sess *session.Session, logger *zap.Logger, opts WalkOptions) *WalkLoop {
	return &WalkLoop{
		sess:    sess,
		log:     logger.Named("walk"),
		opts:    opts,
		limiter: session.NewTickLimiter(opts.Rate),
	}
}

// Run streams the start area, drops the walker onto it and walks until the
// tick budget is spent or ctx ends.
func (w *WalkLoop) Run(ctx context.Context) error {
	if err := w.spawn(ctx); err != nil {
		return err
	}

	w.lastTick = time.Now()
	w.lastLog = w.lastTick
	for i := 0; w.opts.Ticks <= 0 || i < w.opts.Ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.limiter.Wait()
		now := time.Now()
		dt := now.Sub(w.lastTick)
		w.lastTick = now
		if w.opts.Rate > 0 {
			// fixed step keeps the walk reproducible
			dt = time.Second / time.Duration(w.opts.Rate)
		}
		w.step(ctx, dt)

		if now.Sub(w.lastLog) >= time.Second {
			w.report()
			w.lastLog = now
		}
	}
	w.report()
	return nil
}

func (w *WalkLoop) spawn(ctx context.Context) error {
	start := mgl32.Vec3{0.5, 0, 0.5}
	if op := w.sess.Tick(ctx, 0, start); op != nil {
		if err := op.Wait(ctx); err != nil {
			return err
		}
	}
	fp := physics.Footprint{Radius: 0.3, Height: 1.8}
	top := float32(w.sess.Config.World.Chunk.Height) * w.sess.Resolver.BlockSize()
	ground, _ := w.sess.Resolver.GroundLevel(start.X(), start.Z(), top, fp)
	w.body = &session.Body{
		Position:  mgl32.Vec3{start.X(), ground, start.Z()},
		Footprint: fp,
		OnGround:  true,
	}
	w.log.Info("walker spawned", zap.Float32("y", ground))

	if w.opts.Spawn != "" {
		c, err := w.sess.SpawnObject(w.opts.Spawn, chunk.Coord{X: -1, Z: 0})
		if err != nil {
			w.log.Warn("object not spawned", zap.String("model", w.opts.Spawn), zap.Error(err))
		} else {
			w.log.Info("object spawned", zap.String("model", w.opts.Spawn), zap.Int("blocks", c.Count()))
		}
	}
	return nil
}

func (w *WalkLoop) step(ctx context.Context, dt time.Duration) {
	w.sess.Profiler.ResetFrame()
	b := w.body
	b.Velocity[0] = w.opts.Speed
	w.sess.Step(b, dt.Seconds())

	// a wall stopped us: hop over it
	if b.Velocity[0] == 0 && b.OnGround {
		b.Jump()
		w.jumps++
	}
	w.sess.Tick(ctx, dt, b.Position)
}

func (w *WalkLoop) report() {
	st := w.sess.Map.Stats()
	fields := []zap.Field{
		zap.Float32("x", w.body.Position.X()),
		zap.Float32("y", w.body.Position.Y()),
		zap.Stringer("chunk", streaming.ChunkOf(w.body.Position, w.sess.Map.Dims(), w.sess.Map.BlockShift())),
		zap.Int("chunks", st.Chunks),
		zap.Int("light", st.Light),
		zap.Int("meshed", st.Meshed),
		zap.Int("hydrations", st.Hydrations),
		zap.Int("stale", st.StaleResults),
		zap.Int("mem_bytes", st.MemoryBytes),
		zap.Int("jumps", w.jumps),
	}
	if op := w.sess.Loader.Current(); op != nil {
		fields = append(fields, zap.Stringer("op", op.ID))
	}
	fields = append(fields, zap.String("top", w.sess.Profiler.TopN(3)))
	w.log.Info("walk", fields...)
}
