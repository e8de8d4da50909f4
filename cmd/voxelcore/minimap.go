package main

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"voxelcore/internal/chunk"
	"voxelcore/internal/world"
)

var errNothingLoaded = errors.New("minimap: no chunks loaded")

// RenderMinimap draws one pixel per block column of every loaded chunk,
// coloured by the top block. Occupancy-only chunks are shaded by height.
func RenderMinimap(m *world.Map, scale int) (*image.RGBA, error) {
	reg := m.Registered()
	if len(reg) == 0 {
		return nil, errNothingLoaded
	}
	minC, maxC := reg[0].Coord, reg[0].Coord
	for _, r := range reg[1:] {
		minC.X, minC.Z = min(minC.X, r.Coord.X), min(minC.Z, r.Coord.Z)
		maxC.X, maxC.Z = max(maxC.X, r.Coord.X), max(maxC.Z, r.Coord.Z)
	}

	d := m.Dims()
	w := (maxC.X - minC.X + 1) * d.Width
	h := (maxC.Z - minC.Z + 1) * d.Depth
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	ox, oz := minC.X*d.Width, minC.Z*d.Depth
	for px := 0; px < w; px++ {
		for pz := 0; pz < h; pz++ {
			small.SetRGBA(px, pz, columnColor(m, ox+px, oz+pz, d.Height))
		}
	}

	if scale <= 1 {
		return small, nil
	}
	big := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)
	return big, nil
}

func columnColor(m *world.Map, bx, bz, height int) color.RGBA {
	top, ok := m.SurfaceHeight(bx, bz)
	if !ok {
		return color.RGBA{A: 0xFF}
	}
	rgb := m.GetBlock(bx, top-1, bz)
	if rgb == chunk.OccupiedColor {
		v := uint8(40 + 215*top/height)
		return color.RGBA{R: v, G: v, B: v, A: 0xFF}
	}
	return color.RGBA{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb), A: 0xFF}
}

func WriteMinimap(path string, m *world.Map, scale int) error {
	img, err := RenderMinimap(m, scale)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
