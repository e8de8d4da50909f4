package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voxelcore/internal/chunk"
)

// EnvPath names the environment variable consulted when Load gets no path.
const EnvPath = "VOXEL_CONFIG"

// View distance bounds in chunks.
const (
	MinViewDistance = 1
	MaxViewDistance = 50
)

var ErrInvalid = errors.New("config: invalid")

// Config is the root of the YAML configuration.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Streaming StreamingConfig `yaml:"streaming"`
	Meshing   MeshingConfig   `yaml:"meshing"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type WorldConfig struct {
	Chunk chunk.Dims `yaml:"chunk"`
	// BlockShift is log2 of a block's edge in world units.
	BlockShift int    `yaml:"block_shift"`
	Seed       int64  `yaml:"seed"`
	Bounds     Bounds `yaml:"bounds"`
}

// Bounds optionally clips streaming to an inclusive chunk range.
type Bounds struct {
	Enabled bool `yaml:"enabled"`
	MinX    int  `yaml:"min_x"`
	MinZ    int  `yaml:"min_z"`
	MaxX    int  `yaml:"max_x"`
	MaxZ    int  `yaml:"max_z"`
}

type StreamingConfig struct {
	ViewDistance int           `yaml:"view_distance"`
	Parallelism  int           `yaml:"parallelism"`
	MaxRetries   int           `yaml:"max_retries"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffMax   time.Duration `yaml:"backoff_max"`
	FadeDuration time.Duration `yaml:"fade_duration"`
	// BaseURL selects the HTTP fetcher; empty means procedural generation.
	BaseURL   string  `yaml:"base_url"`
	Extension string  `yaml:"extension"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	CacheDir  string  `yaml:"cache_dir"`
}

type MeshingConfig struct {
	Workers        int  `yaml:"workers"`
	QueueSize      int  `yaml:"queue_size"`
	LightAfterMesh bool `yaml:"light_after_mesh"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type MetricsConfig struct {
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration that runs offline on generated terrain.
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Chunk:      chunk.Dims{Width: 32, Height: 64, Depth: 32},
			BlockShift: 0,
			Seed:       1,
		},
		Streaming: StreamingConfig{
			ViewDistance: 4,
			Parallelism:  4,
			MaxRetries:   3,
			BackoffBase:  100 * time.Millisecond,
			BackoffMax:   2 * time.Second,
			FadeDuration: 500 * time.Millisecond,
			Extension:    "json.zst",
			RateLimit:    50,
			RateBurst:    8,
		},
		Meshing: MeshingConfig{
			Workers:        2,
			QueueSize:      64,
			LightAfterMesh: true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Namespace: "voxelcore",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path falls back to
// $VOXEL_CONFIG; when that is unset too the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPath)
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Streaming.ViewDistance = ClampViewDistance(cfg.Streaming.ViewDistance)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClampViewDistance keeps the view distance within reasonable values.
func ClampViewDistance(d int) int {
	return min(max(d, MinViewDistance), MaxViewDistance)
}

// Validate reports the first invalid setting, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if err := c.World.Chunk.Validate(); err != nil {
		return fmt.Errorf("%w: world.chunk: %v", ErrInvalid, err)
	}
	if c.World.BlockShift < 0 || c.World.BlockShift > 8 {
		return fmt.Errorf("%w: world.block_shift %d not in [0,8]", ErrInvalid, c.World.BlockShift)
	}
	if b := c.World.Bounds; b.Enabled && (b.MinX > b.MaxX || b.MinZ > b.MaxZ) {
		return fmt.Errorf("%w: world.bounds min exceeds max", ErrInvalid)
	}
	s := c.Streaming
	if s.ViewDistance < MinViewDistance || s.ViewDistance > MaxViewDistance {
		return fmt.Errorf("%w: streaming.view_distance %d", ErrInvalid, s.ViewDistance)
	}
	if s.Parallelism < 1 {
		return fmt.Errorf("%w: streaming.parallelism must be positive", ErrInvalid)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: streaming.max_retries is negative", ErrInvalid)
	}
	if s.BackoffBase <= 0 || s.BackoffMax < s.BackoffBase {
		return fmt.Errorf("%w: streaming backoff %v..%v", ErrInvalid, s.BackoffBase, s.BackoffMax)
	}
	if s.FadeDuration < 0 {
		return fmt.Errorf("%w: streaming.fade_duration is negative", ErrInvalid)
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("%w: streaming.rate_limit is negative", ErrInvalid)
	}
	if c.Meshing.Workers < 0 || c.Meshing.QueueSize < 0 {
		return fmt.Errorf("%w: meshing workers and queue_size must not be negative", ErrInvalid)
	}
	return nil
}
