package world

import (
	"time"

	"voxelcore/internal/meshing"
)

// Node is the renderable state of an attached chunk. A freshly meshed chunk
// fades in: Opacity rises from 0 to 1 over the configured duration, after
// which Transparent is cleared.
type Node struct {
	Geometry    meshing.Geometry
	Opacity     float32
	Transparent bool

	fading  bool
	elapsed time.Duration
}

func newNode() *Node {
	return &Node{Transparent: true}
}

func (n *Node) startFade(d time.Duration) {
	n.elapsed = 0
	n.Opacity = 0
	n.Transparent = true
	n.fading = true
	n.advance(0, d)
}

func (n *Node) advance(dt, d time.Duration) {
	if !n.fading {
		return
	}
	n.elapsed += dt
	if d <= 0 || n.elapsed >= d {
		n.Opacity = 1
		n.Transparent = false
		n.fading = false
		return
	}
	n.Opacity = float32(n.elapsed) / float32(d)
}

// Fading reports whether the node is still animating in.
func (n *Node) Fading() bool {
	return n.fading
}
