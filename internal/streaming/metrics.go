package streaming

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts streaming activity. A nil *Metrics records nothing.
type Metrics struct {
	requests      prometheus.Counter
	attaches      prometheus.Counter
	detaches      prometheus.Counter
	placeholders  prometheus.Counter
	retries       prometheus.Counter
	cancellations prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	inflight      prometheus.Gauge
	loaded        prometheus.Gauge
}

// NewMetrics creates the streaming metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "streaming",
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "streaming",
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		requests:      counter("requests_total", "Chunk fetches requested."),
		attaches:      counter("attaches_total", "Chunks attached to the world map."),
		detaches:      counter("detaches_total", "Chunks detached from the world map."),
		placeholders:  counter("placeholders_total", "Chunks replaced by a placeholder after fetch failure."),
		retries:       counter("retries_total", "Fetch attempts retried after an error."),
		cancellations: counter("cancellations_total", "Streaming operations canceled before completion."),
		cacheHits:     counter("cache_hits_total", "Payloads served from the local cache."),
		cacheMisses:   counter("cache_misses_total", "Payloads not found in the local cache."),
		inflight:      gauge("fetches_inflight", "Fetches currently running."),
		loaded:        gauge("chunks_loaded", "Chunks attached after the last streaming step."),
	}
	for _, c := range []prometheus.Collector{
		m.requests, m.attaches, m.detaches, m.placeholders, m.retries,
		m.cancellations, m.cacheHits, m.cacheMisses, m.inflight, m.loaded,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) request() {
	if m != nil {
		m.requests.Inc()
	}
}

func (m *Metrics) attach(loaded int) {
	if m != nil {
		m.attaches.Inc()
		m.loaded.Set(float64(loaded))
	}
}

func (m *Metrics) detach(loaded int) {
	if m != nil {
		m.detaches.Inc()
		m.loaded.Set(float64(loaded))
	}
}

func (m *Metrics) placeholder() {
	if m != nil {
		m.placeholders.Inc()
	}
}

func (m *Metrics) retry() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) canceled() {
	if m != nil {
		m.cancellations.Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) fetchStarted() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *Metrics) fetchDone() {
	if m != nil {
		m.inflight.Dec()
	}
}
