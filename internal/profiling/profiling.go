package profiling

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Profiler is a lightweight per-tick CPU profiler owned by a session.
// A nil *Profiler is valid and records nothing.
type Profiler struct {
	mu          sync.Mutex
	frameTotals map[string]time.Duration
	hist        *prometheus.HistogramVec
}

// New creates a profiler with no metrics attached.
func New() *Profiler {
	return &Profiler{frameTotals: make(map[string]time.Duration)}
}

// Observe additionally records every tracked section into a prometheus
// histogram labelled by section name.
func (p *Profiler) Observe(reg prometheus.Registerer, namespace string) error {
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "section_duration_seconds",
		Help:      "Wall time spent in profiled sections.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
	}, []string{"section"})
	if err := reg.Register(hist); err != nil {
		return err
	}
	p.mu.Lock()
	p.hist = hist
	p.mu.Unlock()
	return nil
}

// Track returns a stop function that records the elapsed time under the given name.
// Usage: defer prof.Track("meshing.Build")()
func (p *Profiler) Track(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		p.mu.Lock()
		p.frameTotals[name] += d
		hist := p.hist
		p.mu.Unlock()
		if hist != nil {
			hist.WithLabelValues(name).Observe(d.Seconds())
		}
	}
}

// ResetFrame clears current per-tick totals. Call at the start of each tick.
func (p *Profiler) ResetFrame() {
	if p == nil {
		return
	}
	p.mu.Lock()
	clear(p.frameTotals)
	p.mu.Unlock()
}

// Snapshot returns a copy of current per-tick totals.
func (p *Profiler) Snapshot() map[string]time.Duration {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]time.Duration, len(p.frameTotals))
	for k, v := range p.frameTotals {
		out[k] = v
	}
	return out
}

// TopN formats the N most expensive sections of the current tick.
// Example: "meshing.Build:4.2ms, streaming.attach:2.1ms"
func (p *Profiler) TopN(n int) string {
	ss := p.Snapshot()
	type pair struct {
		name string
		dur  time.Duration
	}
	list := make([]pair, 0, len(ss))
	for k, v := range ss {
		list = append(list, pair{name: k, dur: v})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].dur == list[j].dur {
			return list[i].name < list[j].name
		}
		return list[i].dur > list[j].dur
	})
	n = min(n, len(list))
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ms := float64(list[i].dur.Microseconds()) / 1000.0
		parts = append(parts, list[i].name+":"+strconv.FormatFloat(ms, 'f', -1, 64)+"ms")
	}
	return strings.Join(parts, ", ")
}
