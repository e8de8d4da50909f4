package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voxelcore/internal/chunk"
	"voxelcore/internal/world"
	"voxelcore/pkg/voxmodel"
)

// ErrNotFound means the source has no data for a chunk. It is not retried.
var ErrNotFound = errors.New("streaming: chunk not found")

// ErrBadPayload means a payload arrived but could not be turned into a chunk.
// Fetching it again yields the same bytes, so it is not retried either.
var ErrBadPayload = errors.New("streaming: bad chunk payload")

// defaultMaxPayload bounds a single chunk download.
const defaultMaxPayload = 64 << 20

// Fetcher produces the chunk at a coordinate.
type Fetcher interface {
	Fetch(ctx context.Context, coord chunk.Coord) (*chunk.Chunk, error)
}

// PayloadSource produces encoded chunk payloads.
type PayloadSource interface {
	FetchPayload(ctx context.Context, coord chunk.Coord) ([]byte, error)
}

// DecodeChunk turns a voxmodel payload into a map chunk.
func DecodeChunk(coord chunk.Coord, dims chunk.Dims, payload []byte) (*chunk.Chunk, error) {
	m, err := voxmodel.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrBadPayload, coord, err)
	}
	if err := voxmodel.Validate(m); err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrBadPayload, coord, err)
	}
	c, err := voxmodel.ToChunk(coord, chunk.KindMap, dims, m)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", ErrBadPayload, coord, err)
	}
	return c, nil
}

// HTTPFetcher downloads chunk payloads from <base>/chunk-<x>-<z>.<ext>.
type HTTPFetcher struct {
	client  *http.Client
	base    string
	ext     string
	dims    chunk.Dims
	limiter *rate.Limiter
	maxSize int64
	log     *zap.Logger
}

// HTTPOptions configure an HTTPFetcher. A zero RateLimit disables pacing.
type HTTPOptions struct {
	BaseURL   string
	Extension string
	RateLimit float64
	RateBurst int
	Timeout   time.Duration
	Client    *http.Client
	// MaxPayload caps a download in bytes; zero means 64 MiB.
	MaxPayload int64
}

func NewHTTPFetcher(dims chunk.Dims, opts HTTPOptions, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.RateBurst, 1))
	}
	ext := opts.Extension
	if ext == "" {
		ext = "json"
	}
	maxSize := opts.MaxPayload
	if maxSize <= 0 {
		maxSize = defaultMaxPayload
	}
	return &HTTPFetcher{
		client:  client,
		base:    strings.TrimRight(opts.BaseURL, "/"),
		ext:     ext,
		dims:    dims,
		limiter: limiter,
		maxSize: maxSize,
		log:     logger,
	}
}

// URL is where the payload for coord lives.
func (f *HTTPFetcher) URL(coord chunk.Coord) string {
	return f.base + "/" + coord.FileName(f.ext)
}

func (f *HTTPFetcher) FetchPayload(ctx context.Context, coord chunk.Coord) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(coord), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", coord, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, coord)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: unexpected status %s", coord, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", coord, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("%w: chunk %s: payload over %d bytes", ErrBadPayload, coord, f.maxSize)
	}
	f.log.Debug("payload fetched", zap.Stringer("chunk", coord), zap.Int("bytes", len(data)))
	return data, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, coord chunk.Coord) (*chunk.Chunk, error) {
	data, err := f.FetchPayload(ctx, coord)
	if err != nil {
		return nil, err
	}
	return DecodeChunk(coord, f.dims, data)
}

// GeneratorFetcher produces chunks procedurally.
type GeneratorFetcher struct {
	dims   chunk.Dims
	column world.ColumnFunc
}

func NewGeneratorFetcher(dims chunk.Dims, column world.ColumnFunc) *GeneratorFetcher {
	return &GeneratorFetcher{dims: dims, column: column}
}

func (g *GeneratorFetcher) Fetch(ctx context.Context, coord chunk.Coord) (*chunk.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return world.Generate(coord, g.dims, g.column), nil
}

// FetchPayload encodes a generated chunk, so generated terrain can be
// cached or served like downloaded terrain.
func (g *GeneratorFetcher) FetchPayload(ctx context.Context, coord chunk.Coord) ([]byte, error) {
	c, err := g.Fetch(ctx, coord)
	if err != nil {
		return nil, err
	}
	return voxmodel.Encode(voxmodel.FromChunk(c), true)
}

// CachedFetcher consults a PayloadCache before its source and stores what
// the source returns.
type CachedFetcher struct {
	src     PayloadSource
	cache   *PayloadCache
	dims    chunk.Dims
	metrics *Metrics
	log     *zap.Logger
}

func NewCachedFetcher(src PayloadSource, cache *PayloadCache, dims chunk.Dims, metrics *Metrics, logger *zap.Logger) *CachedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFetcher{src: src, cache: cache, dims: dims, metrics: metrics, log: logger}
}

func (f *CachedFetcher) Fetch(ctx context.Context, coord chunk.Coord) (*chunk.Chunk, error) {
	data, ok, err := f.cache.Get(coord)
	if err != nil {
		f.log.Warn("payload cache read failed", zap.Stringer("chunk", coord), zap.Error(err))
	}
	if ok {
		f.metrics.cacheHit()
		c, err := DecodeChunk(coord, f.dims, data)
		if err == nil {
			return c, nil
		}
		f.log.Warn("cached payload unreadable, refetching", zap.Stringer("chunk", coord), zap.Error(err))
	}
	f.metrics.cacheMiss()

	data, err = f.src.FetchPayload(ctx, coord)
	if err != nil {
		return nil, err
	}
	c, err := DecodeChunk(coord, f.dims, data)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Put(coord, data); err != nil {
		f.log.Warn("payload cache write failed", zap.Stringer("chunk", coord), zap.Error(err))
	}
	return c, nil
}
