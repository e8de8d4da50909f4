package voxmodel

import (
	"fmt"

	"voxelcore/internal/chunk"
)

// Populate writes the model into c with its origin at off, clipping whatever
// falls outside the chunk. Boxes are applied before single voxels. It returns
// the number of blocks that changed.
func Populate(c *chunk.Chunk, m *Model, off [3]int) (int, error) {
	colors := make(map[string]uint32)
	resolve := func(name string) (uint32, error) {
		if rgb, ok := colors[name]; ok {
			return rgb, nil
		}
		rgb, err := m.ResolveColor(name)
		if err != nil {
			return 0, err
		}
		colors[name] = rgb
		return rgb, nil
	}

	n := 0
	for i, b := range m.Boxes {
		rgb, err := resolve(b.Color)
		if err != nil {
			return n, fmt.Errorf("box %d: %w", i, err)
		}
		n += c.FillBox(off[0]+b.From[0], off[1]+b.From[1], off[2]+b.From[2],
			off[0]+b.To[0]-1, off[1]+b.To[1]-1, off[2]+b.To[2]-1, rgb)
	}
	for i, v := range m.Voxels {
		rgb, err := resolve(v.Color)
		if err != nil {
			return n, fmt.Errorf("voxel %d: %w", i, err)
		}
		if c.AddBlock(off[0]+v.X, off[1]+v.Y, off[2]+v.Z, rgb) {
			n++
		}
	}
	return n, nil
}

// ToChunk builds a fresh chunk sized to dims from a model placed at the origin.
func ToChunk(coord chunk.Coord, kind chunk.Kind, dims chunk.Dims, m *Model) (*chunk.Chunk, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	c := chunk.New(coord, kind, dims)
	if _, err := Populate(c, m, [3]int{}); err != nil {
		return nil, err
	}
	return c, nil
}

// FromChunk captures a chunk as a model. Vertical runs of one colour within a
// column become single boxes and every colour gets a palette entry.
func FromChunk(c *chunk.Chunk) *Model {
	d := c.Dims()
	m := &Model{
		Size:    [3]int{d.Width, d.Height, d.Depth},
		Palette: make(map[string]string),
	}
	names := make(map[uint32]string)
	name := func(rgb uint32) string {
		if n, ok := names[rgb]; ok {
			return n
		}
		key := fmt.Sprintf("c%d", len(names))
		m.Palette[key] = FormatColor(rgb)
		names[rgb] = "#" + key
		return names[rgb]
	}
	for x := 0; x < d.Width; x++ {
		for z := 0; z < d.Depth; z++ {
			for y := 0; y < d.Height; {
				rgb := c.GetBlock(x, y, z)
				if rgb == 0 {
					y++
					continue
				}
				top := y + 1
				for top < d.Height && c.GetBlock(x, top, z) == rgb {
					top++
				}
				m.Boxes = append(m.Boxes, Box{
					From:  [3]int{x, y, z},
					To:    [3]int{x + 1, top, z + 1},
					Color: name(rgb),
				})
				y = top
			}
		}
	}
	return m
}
