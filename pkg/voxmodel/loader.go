package voxmodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	decoder, _ = zstd.NewReader(nil)
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
)

// Decode parses a model payload, zstd-compressed or plain JSON. Parent
// references are left unresolved; use a Loader for those.
func Decode(data []byte) (*Model, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		plain, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("could not decompress model: %w", err)
		}
		data = plain
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("could not unmarshal model json: %w", err)
	}
	return &m, nil
}

// Encode serializes a model, optionally zstd-compressed.
func Encode(m *Model, compress bool) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("could not marshal model: %w", err)
	}
	if compress {
		return encoder.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
	}
	return data, nil
}

// Loader reads named models from a directory tree and caches them. Each
// session owns its own Loader.
type Loader struct {
	root string

	mu    sync.Mutex
	cache map[string]*Model
}

func NewLoader(root string) *Loader {
	return &Loader{
		root:  root,
		cache: make(map[string]*Model),
	}
}

// Load returns the named model with its parent chain merged in. name.json.zst
// is preferred over name.json when both exist.
func (l *Loader) Load(name string) (*Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, err := l.load(name, 0)
	if err != nil {
		return nil, err
	}
	// parents may be abstract, so only the requested model must be complete
	if err := Validate(m); err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}
	return m, nil
}

func (l *Loader) load(name string, depth int) (*Model, error) {
	if depth > 16 {
		return nil, fmt.Errorf("model %q: parent chain too deep", name)
	}
	name = strings.TrimSuffix(name, ".json")
	if m, ok := l.cache[name]; ok {
		return m, nil
	}

	data, err := l.read(name)
	if err != nil {
		return nil, err
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}

	if m.Parent != "" {
		parent, err := l.load(m.Parent, depth+1)
		if err != nil {
			return nil, fmt.Errorf("could not load parent model '%s': %w", m.Parent, err)
		}
		inherit(m, parent)
	}
	l.cache[name] = m
	return m, nil
}

func (l *Loader) read(name string) ([]byte, error) {
	base := filepath.Join(l.root, filepath.FromSlash(name))
	data, err := os.ReadFile(base + ".json.zst")
	if errors.Is(err, os.ErrNotExist) {
		data, err = os.ReadFile(base + ".json")
	}
	if err != nil {
		return nil, fmt.Errorf("could not read model file: %w", err)
	}
	return data, nil
}

// inherit copies what the child leaves unset. Parent slices and maps are
// copied so cached parents are never shared mutably.
func inherit(m, parent *Model) {
	if m.Size == [3]int{} {
		m.Size = parent.Size
	}
	if len(m.Boxes) == 0 && len(m.Voxels) == 0 {
		m.Boxes = append([]Box(nil), parent.Boxes...)
		m.Voxels = append([]Voxel(nil), parent.Voxels...)
	}
	if m.Palette == nil {
		m.Palette = make(map[string]string, len(parent.Palette))
	}
	for k, v := range parent.Palette {
		if _, ok := m.Palette[k]; !ok {
			m.Palette[k] = v
		}
	}
}

// Validate checks that every box and voxel fits the model size and every
// colour resolves.
func Validate(m *Model) error {
	for i, n := range m.Size {
		if n <= 0 {
			return fmt.Errorf("size axis %d is %d", i, n)
		}
	}
	in := func(x, y, z int) bool {
		return x >= 0 && y >= 0 && z >= 0 && x < m.Size[0] && y < m.Size[1] && z < m.Size[2]
	}
	for i, b := range m.Boxes {
		if !in(b.From[0], b.From[1], b.From[2]) || !in(b.To[0]-1, b.To[1]-1, b.To[2]-1) {
			return fmt.Errorf("box %d %v-%v outside size %v", i, b.From, b.To, m.Size)
		}
		if _, err := m.ResolveColor(b.Color); err != nil {
			return fmt.Errorf("box %d: %w", i, err)
		}
	}
	for i, v := range m.Voxels {
		if !in(v.X, v.Y, v.Z) {
			return fmt.Errorf("voxel %d (%d,%d,%d) outside size %v", i, v.X, v.Y, v.Z, m.Size)
		}
		if _, err := m.ResolveColor(v.Color); err != nil {
			return fmt.Errorf("voxel %d: %w", i, err)
		}
	}
	return nil
}
