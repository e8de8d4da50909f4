package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"voxelcore/internal/chunk"
	"voxelcore/internal/config"
	"voxelcore/internal/meshing"
	"voxelcore/internal/physics"
	"voxelcore/internal/profiling"
	"voxelcore/internal/streaming"
	"voxelcore/internal/world"
	"voxelcore/pkg/voxmodel"
)

var ErrNoModels = errors.New("session: no model root configured")

// Options carry what the config file cannot express.
type Options struct {
	// Fetcher replaces the source chosen from the streaming config.
	Fetcher  streaming.Fetcher
	Hooks    streaming.Hooks
	Registry *prometheus.Registry
	// ModelRoot is the directory SpawnObject loads models from.
	ModelRoot string
}

// Session owns one running world: terrain streaming, meshing, objects and
// collision, all sharing a profiler and a metrics registry.
type Session struct {
	Config   config.Config
	Profiler *profiling.Profiler
	Registry *prometheus.Registry
	Metrics  *streaming.Metrics

	Map      *world.Map
	Objects  *world.Map
	Loader   *streaming.Loader
	Resolver *physics.Resolver
	Models   *voxmodel.Loader

	log   *zap.Logger
	exec  *meshing.Executor
	cache *streaming.PayloadCache
	once  sync.Once
}

func New(cfg config.Config, logger *zap.Logger, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	prof := profiling.New()
	if err := prof.Observe(reg, cfg.Metrics.Namespace); err != nil {
		return nil, fmt.Errorf("profiler metrics: %w", err)
	}
	metrics, err := streaming.NewMetrics(reg, cfg.Metrics.Namespace)
	if err != nil {
		return nil, fmt.Errorf("streaming metrics: %w", err)
	}

	s := &Session{
		Config:   cfg,
		Profiler: prof,
		Registry: reg,
		Metrics:  metrics,
		log:      logger,
		exec:     meshing.NewExecutor(cfg.Meshing.Workers, cfg.Meshing.QueueSize, prof, logger.Named("meshing")),
	}

	mapOpts := world.Options{
		Dims:           cfg.World.Chunk,
		BlockShift:     cfg.World.BlockShift,
		FadeDuration:   cfg.Streaming.FadeDuration,
		LightAfterMesh: cfg.Meshing.LightAfterMesh,
		Bounds:         world.Bounds(cfg.World.Bounds),
	}
	if s.Map, err = world.NewMap(mapOpts, s.exec, prof, logger.Named("world")); err != nil {
		s.exec.Close()
		return nil, err
	}
	mapOpts.LightAfterMesh = false
	if s.Objects, err = world.NewMap(mapOpts, s.exec, prof, logger.Named("objects")); err != nil {
		s.exec.Close()
		return nil, err
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		if fetcher, err = s.newFetcher(); err != nil {
			s.exec.Close()
			return nil, err
		}
	}

	st := cfg.Streaming
	s.Loader = streaming.NewLoader(s.Map, fetcher, streaming.Options{
		ViewDistance: config.ClampViewDistance(st.ViewDistance),
		Bounds:       streaming.Bounds(cfg.World.Bounds),
		Parallelism:  st.Parallelism,
		MaxRetries:   st.MaxRetries,
		BackoffBase:  st.BackoffBase,
		BackoffMax:   st.BackoffMax,
	}, opts.Hooks, metrics, prof, logger.Named("streaming"))

	s.Resolver = physics.NewResolver(layers{s.Map, s.Objects}, cfg.World.BlockShift, prof)
	if opts.ModelRoot != "" {
		s.Models = voxmodel.NewLoader(opts.ModelRoot)
	}

	logger.Info("session started",
		zap.Stringer("chunk", cfg.World.Chunk),
		zap.Int("view_distance", st.ViewDistance),
		zap.Int("mesh_workers", s.exec.Workers()),
		zap.Bool("remote", opts.Fetcher == nil && st.BaseURL != ""))
	return s, nil
}

// newFetcher picks the terrain source from the config: HTTP when a base URL
// is set, procedural otherwise, behind the payload cache when a cache dir is.
func (s *Session) newFetcher() (streaming.Fetcher, error) {
	cfg := s.Config
	dims := cfg.World.Chunk

	var src interface {
		streaming.Fetcher
		streaming.PayloadSource
	}
	if cfg.Streaming.BaseURL != "" {
		src = streaming.NewHTTPFetcher(dims, streaming.HTTPOptions{
			BaseURL:   cfg.Streaming.BaseURL,
			Extension: cfg.Streaming.Extension,
			RateLimit: cfg.Streaming.RateLimit,
			RateBurst: cfg.Streaming.RateBurst,
		}, s.log.Named("http"))
	} else {
		gen := world.NewGenerator(cfg.World.Seed, dims.Height)
		src = streaming.NewGeneratorFetcher(dims, gen.Column)
	}

	if cfg.Streaming.CacheDir == "" {
		return src, nil
	}
	cache, err := streaming.OpenPayloadCache(cfg.Streaming.CacheDir)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return streaming.NewCachedFetcher(src, cache, dims, s.Metrics, s.log.Named("cache")), nil
}

// layers answers occupancy across several maps.
type layers []*world.Map

func (l layers) HasBlock(bx, by, bz int) bool {
	for _, m := range l {
		if m.HasBlock(bx, by, bz) {
			return true
		}
	}
	return false
}

// Tick moves the streaming reference to ref and advances both maps by dt. It
// returns the streaming operation started by this tick, if any.
func (s *Session) Tick(ctx context.Context, dt time.Duration, ref mgl32.Vec3) *streaming.Operation {
	defer s.Profiler.Track("session.Tick")()
	op := s.Loader.Update(ref)
	s.Map.Tick(ctx, dt)
	s.Objects.Tick(ctx, dt)
	return op
}

// Move resolves a displacement against terrain and objects and returns the
// new position and whether anything clamped it.
func (s *Session) Move(pos, shift mgl32.Vec3, fp physics.Footprint) (mgl32.Vec3, bool) {
	resolved, changed := s.Resolver.Resolve(pos, shift, fp)
	return pos.Add(resolved), changed
}

// Pick casts a ray within reach and reports the first solid block.
func (s *Session) Pick(start, dir mgl32.Vec3) physics.RaycastResult {
	return s.Resolver.Raycast(start, dir, physics.MinReachDistance, physics.MaxReachDistance)
}

// SpawnObject loads a model and attaches it as an object chunk at coord.
func (s *Session) SpawnObject(name string, coord chunk.Coord) (*chunk.Chunk, error) {
	if s.Models == nil {
		return nil, ErrNoModels
	}
	m, err := s.Models.Load(name)
	if err != nil {
		return nil, err
	}
	c, err := voxmodel.ToChunk(coord, chunk.KindObject, s.Config.World.Chunk, m)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	if err := s.Objects.Attach(c); err != nil {
		return nil, err
	}
	s.log.Debug("object spawned", zap.String("model", name), zap.Stringer("chunk", coord), zap.Int("blocks", c.Count()))
	return c, nil
}

// Close stops streaming and meshing and closes the payload cache. It is safe
// to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.Loader.Close()
		s.exec.Close()
		if s.cache != nil {
			err = s.cache.Close()
		}
		s.log.Info("session closed", zap.Stringer("stats", statsSummary(s.Map.Stats())))
	})
	return err
}

type statsSummary world.Stats

func (st statsSummary) String() string {
	return fmt.Sprintf("chunks=%d light=%d meshed=%d hydrations=%d stale=%d mem=%dB",
		st.Chunks, st.Light, st.Meshed, st.Hydrations, st.StaleResults, st.MemoryBytes)
}
