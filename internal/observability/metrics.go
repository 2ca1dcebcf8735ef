package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "click_requests_total",
			Help: "Total click requests by HTTP status",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "click_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "click_in_flight",
		Help: "In-flight HTTP requests",
	})

	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "click_resolutions_total",
			Help: "Click resolutions by terminal state",
		}, []string{"state"},
	)
	ResolutionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "click_resolution_duration_seconds",
		Help:    "End-to-end resolution latency seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
	GeoDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "click_geo_denials_total",
			Help: "Geo-gate denials by resolved country",
		}, []string{"country"},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "click_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		}, []string{"cache", "result"},
	)
	EmitterDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "click_emitter_dropped_total",
			Help: "Click records dropped because the emitter buffer was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, Latency, InFlight,
		Resolutions, ResolutionLatency, GeoDenials,
		CacheLookups, EmitterDropped,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
