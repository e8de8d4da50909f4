package voxmodel

import (
	"os"
	"path/filepath"
	"testing"

	"voxelcore/internal/chunk"
)

func writeModel(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSimpleModel(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "objects/crate.json", `{
		"size": [2, 2, 2],
		"palette": { "wood": "8b5a2b" },
		"boxes": [ { "from": [0,0,0], "to": [2,1,2], "color": "#wood" } ],
		"voxels": [ [1, 1, 1, "ff0000"] ]
	}`)

	loader := NewLoader(dir)
	m, err := loader.Load("objects/crate")
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}
	if len(m.Boxes) != 1 || len(m.Voxels) != 1 {
		t.Fatalf("got %d boxes, %d voxels", len(m.Boxes), len(m.Voxels))
	}
	if m.Voxels[0] != (Voxel{X: 1, Y: 1, Z: 1, Color: "ff0000"}) {
		t.Fatalf("voxel decoded as %+v", m.Voxels[0])
	}

	again, _ := loader.Load("objects/crate.json")
	if again != m {
		t.Error("Expected the same model instance to be returned from cache")
	}
}

func TestParentInheritanceDoesNotShare(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "base.json", `{
		"size": [1, 1, 1],
		"palette": { "body": "#skin" },
		"voxels": [ [0, 0, 0, "#body"] ]
	}`)
	writeModel(t, dir, "red.json", `{ "parent": "base", "palette": { "skin": "ff0000" } }`)
	writeModel(t, dir, "blue.json", `{ "parent": "base", "palette": { "skin": "0000ff" } }`)

	loader := NewLoader(dir)
	red, err := loader.Load("red")
	if err != nil {
		t.Fatal(err)
	}
	blue, err := loader.Load("blue")
	if err != nil {
		t.Fatal(err)
	}
	if rgb, _ := red.ResolveColor(red.Voxels[0].Color); rgb != 0xFF0000 {
		t.Errorf("red resolved to %06x", rgb)
	}
	if rgb, _ := blue.ResolveColor(blue.Voxels[0].Color); rgb != 0x0000FF {
		t.Errorf("blue resolved to %06x", rgb)
	}

	red.Voxels[0].Color = "00ff00"
	if blue.Voxels[0].Color != "#body" {
		t.Error("children share the parent's voxel slice")
	}
}

func TestLoadRejectsUnresolvedBase(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "base.json", `{ "size": [1,1,1], "voxels": [ [0,0,0,"#skin"] ] }`)
	if _, err := NewLoader(dir).Load("base"); err == nil {
		t.Fatal("expected unresolved palette reference to fail")
	}
}

func TestLoadPrefersCompressed(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "m.json", `{ "size": [1,1,1], "voxels": [ [0,0,0,"111111"] ] }`)
	data, err := Encode(&Model{Size: [3]int{1, 1, 1}, Voxels: []Voxel{{Color: "222222"}}}, true)
	if err != nil {
		t.Fatal(err)
	}
	writeModel(t, dir, "m.json.zst", string(data))

	m, err := NewLoader(dir).Load("m")
	if err != nil {
		t.Fatal(err)
	}
	if m.Voxels[0].Color != "222222" {
		t.Fatalf("loaded %q, want the compressed variant", m.Voxels[0].Color)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		m    Model
		ok   bool
	}{
		{"empty size", Model{}, false},
		{"box outside", Model{Size: [3]int{2, 2, 2}, Boxes: []Box{{To: [3]int{3, 1, 1}, Color: "000000"}}}, false},
		{"voxel outside", Model{Size: [3]int{2, 2, 2}, Voxels: []Voxel{{X: 2, Color: "000000"}}}, false},
		{"bad colour", Model{Size: [3]int{2, 2, 2}, Voxels: []Voxel{{Color: "zz"}}}, false},
		{"fine", Model{Size: [3]int{2, 2, 2}, Boxes: []Box{{To: [3]int{2, 2, 2}, Color: "0x00ff00"}}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(&tc.m); (err == nil) != tc.ok {
				t.Fatalf("Validate = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestChunkRoundTrip(t *testing.T) {
	dims := chunk.Dims{Width: 4, Height: 8, Depth: 4}
	c := chunk.New(chunk.Coord{X: 2, Z: -1}, chunk.KindMap, dims)
	c.FillBox(0, 0, 0, 3, 1, 3, 0x3a7d2c)
	c.AddBlock(1, 2, 1, 0xaa0000)
	c.AddBlock(1, 3, 1, 0xaa0000)
	c.AddBlock(2, 5, 2, 0x0000bb)

	data, err := Encode(FromChunk(c), true)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ToChunk(c.Coord, chunk.KindMap, dims, m)
	if err != nil {
		t.Fatal(err)
	}
	if got.Count() != c.Count() {
		t.Fatalf("Count = %d, want %d", got.Count(), c.Count())
	}
	c.ForEachBlock(func(x, y, z int, color uint32) {
		if g := got.GetBlock(x, y, z); g != color {
			t.Fatalf("(%d,%d,%d) = %06x, want %06x", x, y, z, g, color)
		}
	})
}

func TestPopulateClipsAndOffsets(t *testing.T) {
	c := chunk.New(chunk.Coord{}, chunk.KindObject, chunk.Dims{Width: 4, Height: 4, Depth: 4})
	m := &Model{Size: [3]int{2, 2, 2}, Boxes: []Box{{To: [3]int{2, 2, 2}, Color: "ffffff"}}}
	n, err := Populate(c, m, [3]int{3, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("populated %d blocks, want 4 after clipping", n)
	}
	if !c.HasBlock(3, 1, 1) || c.HasBlock(2, 0, 0) {
		t.Fatal("offset not applied")
	}
}
