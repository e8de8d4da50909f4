package meshing

// Geometry is the CPU-side copy of a chunk mesh that a renderer uploads from.
type Geometry struct {
	Positions []float32
	Colors    []float32
	// Generation counts updates, so a renderer can tell when to re-upload.
	Generation uint64
}

// VertexCount is the number of vertices currently held.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// Update applies a mesh result. When the vertex count is unchanged the
// existing arrays are overwritten in place and true is returned; otherwise new
// backing arrays are allocated.
func (g *Geometry) Update(res Result) bool {
	g.Generation++
	if len(res.Positions) == len(g.Positions) && len(res.Colors) == len(g.Colors) && g.Positions != nil {
		copy(g.Positions, res.Positions)
		copy(g.Colors, res.Colors)
		return true
	}
	g.Positions = make([]float32, len(res.Positions))
	copy(g.Positions, res.Positions)
	g.Colors = make([]float32, len(res.Colors))
	copy(g.Colors, res.Colors)
	return false
}

// Clone returns a copy that does not share backing arrays with g.
func (g *Geometry) Clone() Geometry {
	return Geometry{
		Positions:  append([]float32(nil), g.Positions...),
		Colors:     append([]float32(nil), g.Colors...),
		Generation: g.Generation,
	}
}

// Reset drops the arrays.
func (g *Geometry) Reset() {
	g.Positions = nil
	g.Colors = nil
	g.Generation++
}
