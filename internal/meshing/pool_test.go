package meshing

import (
	"errors"
	"sync"
	"testing"

	"voxelcore/internal/chunk"
	"voxelcore/internal/profiling"
)

func cubeRequest(coord chunk.Coord) Request {
	dims := chunk.Dims{Width: 4, Height: 4, Depth: 4}
	c := chunk.New(coord, chunk.KindObject, dims)
	c.FillBox(0, 0, 0, 3, 3, 3, 0xABCDEF)
	buf, _ := c.Snapshot()
	return Request{Coord: coord, Buffer: buf, Dims: dims, Options: DefaultOptions(chunk.KindObject)}
}

func TestExecutorZeroWorkersRunsInline(t *testing.T) {
	e := NewExecutor(0, 0, nil, nil)
	defer e.Close()

	var got Result
	called := false
	id := e.Submit(cubeRequest(chunk.Coord{X: 1}), func(r Result) {
		got = r
		called = true
	})
	if !called {
		t.Fatal("zero-worker executor did not complete synchronously")
	}
	if got.ID != id || got.Quads != 6 || got.Coord != (chunk.Coord{X: 1}) {
		t.Fatalf("unexpected result: id=%d quads=%d coord=%v", got.ID, got.Quads, got.Coord)
	}
	if e.InlineRuns() != 1 {
		t.Fatalf("InlineRuns = %d, want 1", e.InlineRuns())
	}
}

func TestExecutorWorkersCompleteAll(t *testing.T) {
	prof := profiling.New()
	e := NewExecutor(3, 4, prof, nil)
	if e.Workers() != 3 {
		t.Fatalf("Workers = %d", e.Workers())
	}

	const n = 40
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[uint64]chunk.Coord{}
	)
	wg.Add(n)
	var last uint64
	for i := 0; i < n; i++ {
		coord := chunk.Coord{X: i, Z: -i}
		id := e.Submit(cubeRequest(coord), func(r Result) {
			mu.Lock()
			seen[r.ID] = r.Coord
			mu.Unlock()
			wg.Done()
		})
		if id <= last {
			t.Fatalf("request IDs not increasing: %d after %d", id, last)
		}
		last = id
	}
	wg.Wait()
	e.Close()

	if len(seen) != n {
		t.Fatalf("got %d distinct results, want %d", len(seen), n)
	}
	if _, ok := prof.Snapshot()["meshing.Build"]; !ok {
		t.Fatal("builds were not profiled")
	}
}

func TestExecutorKeepsCallerID(t *testing.T) {
	e := NewExecutor(0, 0, nil, nil)
	req := cubeRequest(chunk.Coord{})
	req.ID = 99
	if id := e.Submit(req, func(Result) {}); id != 99 {
		t.Fatalf("Submit returned %d, want caller ID 99", id)
	}
}

func TestExecutorClosed(t *testing.T) {
	e := NewExecutor(2, 1, nil, nil)
	e.Close()
	e.Close()

	var err error
	e.Submit(cubeRequest(chunk.Coord{}), func(r Result) { err = r.Err })
	if !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("err = %v, want ErrExecutorClosed", err)
	}
}

func TestGeometryUpdateInPlace(t *testing.T) {
	var g Geometry
	small := Build(cubeRequest(chunk.Coord{}))
	if g.Update(small) {
		t.Fatal("first update cannot be in place")
	}
	backing := &g.Positions[0]

	again := Build(cubeRequest(chunk.Coord{}))
	again.Positions[0] = 42
	if !g.Update(again) {
		t.Fatal("same vertex count should update in place")
	}
	if &g.Positions[0] != backing || g.Positions[0] != 42 {
		t.Fatal("in-place update reallocated or did not copy")
	}

	req := cubeRequest(chunk.Coord{})
	req.Buffer[chunk.HeavyIndex(req.Dims, 0, 3, 0)] = 0
	if g.Update(Build(req)) {
		t.Fatal("different vertex count must reallocate")
	}
	if g.Generation != 3 {
		t.Fatalf("Generation = %d, want 3", g.Generation)
	}
	g.Reset()
	if g.VertexCount() != 0 {
		t.Fatal("Reset left vertices")
	}
}
