package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"voxelcore/internal/chunk"
	"voxelcore/internal/meshing"
	"voxelcore/internal/profiling"
)

var (
	ErrAlreadyAttached = errors.New("world: chunk already attached")
	ErrNotAttached     = errors.New("world: chunk not attached")
)

// Hydrator restores the colour data of a chunk that was lightened.
type Hydrator interface {
	Hydrate(ctx context.Context, coord chunk.Coord) (*chunk.Chunk, error)
}

// Options configure a Map.
type Options struct {
	Dims chunk.Dims
	// BlockShift is log2 of a block's edge in world units.
	BlockShift     int
	FadeDuration   time.Duration
	LightAfterMesh bool
	// Bounds limits where map chunks can exist. A chunk is only lightened
	// once every neighbour inside Bounds is attached.
	Bounds Bounds
}

// Bounds is an optional inclusive chunk range.
type Bounds struct {
	Enabled    bool
	MinX, MinZ int
	MaxX, MaxZ int
}

// Contains reports whether c lies inside b. Disabled bounds contain every chunk.
func (b Bounds) Contains(c chunk.Coord) bool {
	if !b.Enabled {
		return true
	}
	return c.X >= b.MinX && c.X <= b.MaxX && c.Z >= b.MinZ && c.Z <= b.MaxZ
}

// Registered is a loaded chunk with its registration order.
type Registered struct {
	Coord chunk.Coord
	Seq   uint64
}

// Stats is a point-in-time summary of the map.
type Stats struct {
	Chunks       int
	Light        int
	Meshed       int
	Hydrations   int
	StaleResults int
	MemoryBytes  int
}

type entry struct {
	chunk   *chunk.Chunk
	seq     uint64
	version uint64
	// journal maps heavy block index to the colour written there, 0 for a
	// removal. It survives lightening so a hydrated chunk can be replayed.
	journal map[int]uint32
	node    *Node
	dirty   bool
	pending uint64
	meshed  bool

	// lightened is set once; a hydrated chunk stays heavy afterwards.
	lightened bool
}

// Map is the registry of attached chunks. It answers block queries in world
// block space, drives the mesh pipeline and owns per-chunk render nodes.
type Map struct {
	opts  Options
	exec  *meshing.Executor
	log   *zap.Logger
	prof  *profiling.Profiler
	shift [2]int

	mu       sync.RWMutex
	entries  map[chunk.Coord]*entry
	seq      uint64
	hydrator Hydrator
	stale    int
	hydrated int

	resMu   sync.Mutex
	results []meshing.Result
}

// NewMap creates an empty map. The executor is shared and not closed by the map.
func NewMap(opts Options, exec *meshing.Executor, prof *profiling.Profiler, logger *zap.Logger) (*Map, error) {
	if err := opts.Dims.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Map{
		opts:    opts,
		exec:    exec,
		log:     logger,
		prof:    prof,
		shift:   [2]int{opts.Dims.WidthShift(), opts.Dims.DepthShift()},
		entries: make(map[chunk.Coord]*entry),
	}, nil
}

func (m *Map) Dims() chunk.Dims { return m.opts.Dims }
func (m *Map) BlockShift() int  { return m.opts.BlockShift }

// SetHydrator installs the source used to restore lightened chunks on edit.
func (m *Map) SetHydrator(h Hydrator) {
	m.mu.Lock()
	m.hydrator = h
	m.mu.Unlock()
}

// Attach registers a chunk and dispatches its first mesh.
func (m *Map) Attach(c *chunk.Chunk) error {
	if c.Dims() != m.opts.Dims {
		return fmt.Errorf("world: chunk %s has dims %v, map uses %v", c.Coord, c.Dims(), m.opts.Dims)
	}
	m.mu.Lock()
	if _, ok := m.entries[c.Coord]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, c.Coord)
	}
	m.seq++
	m.entries[c.Coord] = &entry{
		chunk:   c,
		seq:     m.seq,
		journal: make(map[int]uint32),
		node:    newNode(),
		dirty:   true,
	}
	// neighbours were meshed against a closed edge on this side. A lightened
	// one saw an earlier chunk here and is only remeshed when it can be
	// hydrated.
	if c.Kind == chunk.KindMap {
		for _, n := range neighbours(c.Coord) {
			if e, ok := m.entries[n]; ok && (e.chunk.HasColor() || m.hydrator != nil) {
				e.dirty = true
			}
		}
	}
	m.mu.Unlock()

	m.log.Debug("chunk attached", zap.Stringer("chunk", c.Coord), zap.Stringer("kind", c.Kind))
	if err := m.Rebuild(context.Background(), c.Coord); err != nil {
		// stays dirty; Tick retries
		m.log.Warn("initial mesh failed", zap.Stringer("chunk", c.Coord), zap.Error(err))
	}
	return nil
}

// Detach unregisters a chunk and releases its buffers.
func (m *Map) Detach(coord chunk.Coord) bool {
	m.mu.Lock()
	e, ok := m.entries[coord]
	if ok {
		delete(m.entries, coord)
		e.chunk.Release()
		e.node.Geometry.Reset()
	}
	m.mu.Unlock()
	if ok {
		m.log.Debug("chunk detached", zap.Stringer("chunk", coord))
	}
	return ok
}

func (m *Map) Has(coord chunk.Coord) bool {
	m.mu.RLock()
	_, ok := m.entries[coord]
	m.mu.RUnlock()
	return ok
}

// Get returns the attached chunk. Callers must not mutate it directly; use
// SetBlock and RemoveBlock so versions and the journal stay consistent.
func (m *Map) Get(coord chunk.Coord) (*chunk.Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[coord]; ok {
		return e.chunk, true
	}
	return nil, false
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns the registry keys of all attached chunks.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for c := range m.entries {
		keys = append(keys, c.Key())
	}
	sort.Strings(keys)
	return keys
}

// Registered lists attached chunks, oldest registration first.
func (m *Map) Registered() []Registered {
	m.mu.RLock()
	out := make([]Registered, 0, len(m.entries))
	for c, e := range m.entries {
		out = append(out, Registered{Coord: c, Seq: e.seq})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Node returns a copy of the render state of a chunk, geometry included.
func (m *Map) Node(coord chunk.Coord) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[coord]
	if !ok {
		return Node{}, false
	}
	n := *e.node
	n.Geometry = e.node.Geometry.Clone()
	return n, true
}

// WithNode calls fn with the live render state of a chunk under the read
// lock, so a renderer can upload geometry without copying it. fn must not
// retain the slices or call back into the Map.
func (m *Map) WithNode(coord chunk.Coord, fn func(n *Node)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[coord]
	if ok {
		fn(e.node)
	}
	return ok
}

// Version returns the edit version of a chunk.
func (m *Map) Version(coord chunk.Coord) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[coord]
	if !ok {
		return 0, false
	}
	return e.version, true
}

func (m *Map) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Chunks: len(m.entries), Hydrations: m.hydrated, StaleResults: m.stale}
	for _, e := range m.entries {
		if e.chunk.Encoding() == chunk.EncodingLight {
			s.Light++
		}
		if e.meshed {
			s.Meshed++
		}
		s.MemoryBytes += e.chunk.MemoryBytes()
	}
	return s
}

// locate maps world block coordinates to a chunk and local coordinates.
func (m *Map) locate(bx, by, bz int) (chunk.Coord, int, int, int, bool) {
	d := m.opts.Dims
	if by < 0 || by >= d.Height {
		return chunk.Coord{}, 0, 0, 0, false
	}
	coord := chunk.Coord{X: bx >> m.shift[0], Z: bz >> m.shift[1]}
	return coord, bx & (d.Width - 1), by, bz & (d.Depth - 1), true
}

// HasBlock reports whether a block exists at world block coordinates.
// Unloaded chunks read as empty.
func (m *Map) HasBlock(bx, by, bz int) bool {
	coord, x, y, z, ok := m.locate(bx, by, bz)
	if !ok {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[coord]
	return ok && e.chunk.HasBlock(x, y, z)
}

// GetBlock returns the colour at world block coordinates, 0 when empty.
func (m *Map) GetBlock(bx, by, bz int) uint32 {
	coord, x, y, z, ok := m.locate(bx, by, bz)
	if !ok {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[coord]; ok {
		return e.chunk.GetBlock(x, y, z)
	}
	return 0
}

// MinMaxY returns the topmost run of blocks in a world column.
func (m *Map) MinMaxY(bx, bz int) (int, int, bool) {
	coord, x, _, z, _ := m.locate(bx, 0, bz)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[coord]; ok {
		return e.chunk.MinMaxY(x, z)
	}
	return 0, 0, false
}

// SurfaceHeight is the Y just above the topmost block of a column.
func (m *Map) SurfaceHeight(bx, bz int) (int, bool) {
	_, top, ok := m.MinMaxY(bx, bz)
	if !ok {
		return 0, false
	}
	return top + 1, true
}

// SetBlock writes a block in world block space. A lightened chunk is hydrated
// first. Writes outside the vertical range are ignored.
func (m *Map) SetBlock(ctx context.Context, bx, by, bz int, rgb uint32) (bool, error) {
	return m.edit(ctx, bx, by, bz, func(c *chunk.Chunk, x, y, z int) bool {
		return c.AddBlock(x, y, z, rgb)
	})
}

// RemoveBlock clears a block in world block space.
func (m *Map) RemoveBlock(ctx context.Context, bx, by, bz int) (bool, error) {
	return m.edit(ctx, bx, by, bz, func(c *chunk.Chunk, x, y, z int) bool {
		return c.RemoveBlock(x, y, z)
	})
}

func (m *Map) edit(ctx context.Context, bx, by, bz int, apply func(c *chunk.Chunk, x, y, z int) bool) (bool, error) {
	coord, x, y, z, ok := m.locate(bx, by, bz)
	if !ok {
		return false, nil
	}
	if err := m.ensureHeavy(ctx, coord); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[coord]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotAttached, coord)
	}
	if !apply(e.chunk, x, y, z) {
		return false, nil
	}
	e.version++
	e.journal[chunk.HeavyIndex(m.opts.Dims, x, y, z)] = e.chunk.GetBlock(x, y, z)
	e.dirty = true

	// a border edit changes what the neighbour sees through its edge
	d := m.opts.Dims
	var touched []chunk.Coord
	if x == 0 {
		touched = append(touched, chunk.Coord{X: coord.X - 1, Z: coord.Z})
	} else if x == d.Width-1 {
		touched = append(touched, chunk.Coord{X: coord.X + 1, Z: coord.Z})
	}
	if z == 0 {
		touched = append(touched, chunk.Coord{X: coord.X, Z: coord.Z - 1})
	} else if z == d.Depth-1 {
		touched = append(touched, chunk.Coord{X: coord.X, Z: coord.Z + 1})
	}
	for _, n := range touched {
		if ne, ok := m.entries[n]; ok && (ne.chunk.HasColor() || m.hydrator != nil) {
			ne.dirty = true
		}
	}
	return true, nil
}

// ensureHeavy hydrates a lightened chunk and replays its edit journal.
func (m *Map) ensureHeavy(ctx context.Context, coord chunk.Coord) error {
	m.mu.RLock()
	e, ok := m.entries[coord]
	light := ok && !e.chunk.HasColor() && e.chunk.Initialized()
	h := m.hydrator
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAttached, coord)
	}
	if !light {
		return nil
	}
	if h == nil {
		return fmt.Errorf("world: hydrate %s: %w", coord, chunk.ErrNoColorData)
	}

	defer m.prof.Track("world.hydrate")()
	fresh, err := h.Hydrate(ctx, coord)
	if err != nil {
		return fmt.Errorf("world: hydrate %s: %w", coord, err)
	}
	if fresh.Dims() != m.opts.Dims {
		return fmt.Errorf("world: hydrated chunk %s has dims %v", coord, fresh.Dims())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[coord]; !ok || cur != e {
		return fmt.Errorf("%w: %s", ErrNotAttached, coord)
	}
	if e.chunk.HasColor() {
		return nil
	}
	d := m.opts.Dims
	for idx, rgb := range e.journal {
		y := idx % d.Height
		col := idx / d.Height
		x, z := col/d.Depth, col%d.Depth
		if rgb == 0 {
			fresh.RemoveBlock(x, y, z)
		} else {
			fresh.AddBlock(x, y, z, rgb)
		}
	}
	fresh.Coord = coord
	fresh.Kind = e.chunk.Kind
	e.chunk = fresh
	m.hydrated++
	m.log.Debug("chunk hydrated", zap.Stringer("chunk", coord), zap.Int("replayed", len(e.journal)))
	return nil
}

// surroundedLocked reports whether every neighbour that can exist is attached.
func (m *Map) surroundedLocked(coord chunk.Coord) bool {
	for _, n := range neighbours(coord) {
		if _, ok := m.entries[n]; !ok && m.opts.Bounds.Contains(n) {
			return false
		}
	}
	return true
}

func neighbours(c chunk.Coord) [4]chunk.Coord {
	return [4]chunk.Coord{
		{X: c.X - 1, Z: c.Z},
		{X: c.X + 1, Z: c.Z},
		{X: c.X, Z: c.Z - 1},
		{X: c.X, Z: c.Z + 1},
	}
}

// edgesLocked captures the neighbour planes touching a map chunk.
func (m *Map) edgesLocked(coord chunk.Coord) *meshing.EdgeSnapshot {
	d := m.opts.Dims
	plane := func(n chunk.Coord, fixed int, alongX bool) []bool {
		e, ok := m.entries[n]
		if !ok || !e.chunk.Initialized() {
			return nil
		}
		span := d.Depth
		if alongX {
			span = d.Width
		}
		out := make([]bool, span*d.Height)
		for i := 0; i < span; i++ {
			for y := 0; y < d.Height; y++ {
				if alongX {
					out[i*d.Height+y] = e.chunk.HasBlock(i, y, fixed)
				} else {
					out[i*d.Height+y] = e.chunk.HasBlock(fixed, y, i)
				}
			}
		}
		return out
	}
	ns := neighbours(coord)
	return &meshing.EdgeSnapshot{
		Left:  plane(ns[0], d.Width-1, false),
		Right: plane(ns[1], 0, false),
		Back:  plane(ns[2], d.Depth-1, true),
		Front: plane(ns[3], 0, true),
	}
}

// Rebuild dispatches a mesh request for the chunk's current version. The
// result is applied by ProcessMeshResults.
func (m *Map) Rebuild(ctx context.Context, coord chunk.Coord) error {
	if err := m.ensureHeavy(ctx, coord); err != nil {
		return err
	}

	m.mu.Lock()
	e, ok := m.entries[coord]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAttached, coord)
	}
	buf, err := e.chunk.Snapshot()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("world: rebuild %s: %w", coord, err)
	}
	opts := meshing.DefaultOptions(e.chunk.Kind)
	opts.BlockScale = float32(int(1) << m.opts.BlockShift)
	req := meshing.Request{
		ID:      m.exec.NextID(),
		Coord:   coord,
		Version: e.version,
		Buffer:  buf,
		Dims:    m.opts.Dims,
		Options: opts,
	}
	if e.chunk.Kind == chunk.KindMap {
		req.Edges = m.edgesLocked(coord)
	}
	e.pending = req.ID
	e.dirty = false
	m.mu.Unlock()

	m.exec.Submit(req, m.complete)
	return nil
}

func (m *Map) complete(res meshing.Result) {
	m.resMu.Lock()
	m.results = append(m.results, res)
	m.resMu.Unlock()
}

// ProcessMeshResults applies finished meshes and returns how many were
// applied. Results for detached chunks, older versions or superseded
// requests are dropped.
func (m *Map) ProcessMeshResults() int {
	m.resMu.Lock()
	batch := m.results
	m.results = nil
	m.resMu.Unlock()
	if len(batch) == 0 {
		return 0
	}
	defer m.prof.Track("world.ProcessMeshResults")()

	m.mu.Lock()
	defer m.mu.Unlock()
	applied := 0
	for _, res := range batch {
		e, ok := m.entries[res.Coord]
		if !ok {
			continue
		}
		if res.Err != nil {
			m.log.Warn("mesh failed", zap.Stringer("chunk", res.Coord), zap.Error(res.Err))
			continue
		}
		if res.ID != e.pending || res.Version != e.version {
			m.stale++
			continue
		}
		e.node.Geometry.Update(res)
		applied++
		if !e.meshed {
			e.meshed = true
			e.node.startFade(m.opts.FadeDuration)
		}
		// a dirty chunk is about to be remeshed and still needs its colours,
		// and so does one with a neighbour that may still attach
		if m.opts.LightAfterMesh && !e.lightened && !e.dirty && e.chunk.Kind == chunk.KindMap && m.surroundedLocked(res.Coord) {
			e.chunk.Lighten()
			e.lightened = true
		}
	}
	return applied
}

// Tick applies finished meshes, rebuilds chunks edited since their last
// dispatch (once each, however many edits) and advances fades.
func (m *Map) Tick(ctx context.Context, dt time.Duration) {
	defer m.prof.Track("world.Tick")()
	m.ProcessMeshResults()

	m.mu.Lock()
	var dirty []chunk.Coord
	for c, e := range m.entries {
		e.node.advance(dt, m.opts.FadeDuration)
		if e.dirty {
			dirty = append(dirty, c)
		}
	}
	m.mu.Unlock()

	for _, c := range dirty {
		if err := m.Rebuild(ctx, c); err != nil {
			m.log.Warn("rebuild failed", zap.Stringer("chunk", c), zap.Error(err))
		}
	}
}
