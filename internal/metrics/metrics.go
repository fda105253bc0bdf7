// Package metrics holds the Prometheus registry and every collector the
// server exports: HTTP request metrics with safe labels, index and
// negotiation metrics, and operational gauges.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/varserve/varserve/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	indexedAssets      *prometheus.GaugeVec
	indexFileErrors    prometheus.Gauge
	indexBuildDuration prometheus.Gauge

	negotiatedTotal *prometheus.CounterVec
	passedTotal     *prometheus.CounterVec

	assetSource        *prometheus.GaugeVec
	releaseInfo        *prometheus.GaugeVec
	bundleLoadDuration prometheus.Histogram

	profilingActive prometheus.Gauge
}

// New returns a fresh registry with standard collectors plus the
// server's own. HTTP labels stay on method, route, and status to avoid
// path cardinality explosions.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		indexedAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "asset_index_entries",
			Help: "Number of indexed logical paths carrying each encoding",
		}, []string{"encoding"}),
		indexFileErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asset_index_file_errors",
			Help: "Files skipped during the index build because their status probe failed",
		}),
		indexBuildDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "asset_index_build_duration_seconds",
			Help: "Wall time of the startup index build",
		}),
		negotiatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_negotiated_total",
			Help: "Variants served by encoding; fallback marks identity served only because nothing matched",
		}, []string{"encoding", "fallback"}),
		passedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asset_passed_total",
			Help: "Requests deferred to the next handler by reason",
		}, []string{"reason"}),
		assetSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "asset_source_info",
			Help: "Where the asset root came from (label carries value, gauge is always 1)",
		}, []string{"source"}),
		releaseInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "asset_release_info",
			Help: "Currently served asset release (labels carry identity, value is always 1)",
		}, []string{"release", "sha256"}),
		bundleLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "asset_bundle_load_duration_seconds",
			Help:    "Time to download, verify, and extract the asset bundle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.indexedAssets,
		m.indexFileErrors,
		m.indexBuildDuration,
		m.negotiatedTotal,
		m.passedTotal,
		m.assetSource,
		m.releaseInfo,
		m.bundleLoadDuration,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

// SetIndexStats records the outcome of the startup index build.
// encodingCounts maps encoding name to the number of entries carrying it.
func (m *ServerMetrics) SetIndexStats(encodingCounts map[string]int, fileErrors int, buildDuration time.Duration) {
	m.indexedAssets.Reset()
	for enc, n := range encodingCounts {
		m.indexedAssets.WithLabelValues(enc).Set(float64(n))
	}
	m.indexFileErrors.Set(float64(fileErrors))
	m.indexBuildDuration.Set(buildDuration.Seconds())
}

func (m *ServerMetrics) IncNegotiated(encoding string, fallback bool) {
	m.negotiatedTotal.WithLabelValues(encoding, strconv.FormatBool(fallback)).Inc()
}

func (m *ServerMetrics) IncPassed(reason string) {
	m.passedTotal.WithLabelValues(reason).Inc()
}

func (m *ServerMetrics) SetAssetSource(source string) {
	m.assetSource.Reset() // clear previous label value
	m.assetSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetRelease(release, sha256 string) {
	m.releaseInfo.Reset()
	m.releaseInfo.WithLabelValues(release, sha256).Set(1)
}

func (m *ServerMetrics) ObserveBundleLoadDuration(seconds float64) {
	m.bundleLoadDuration.Observe(seconds)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
