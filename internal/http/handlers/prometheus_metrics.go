package handlers

import (
	"bytes"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
)

const metricsNamespace = "starlore"

var (
	visitsTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "visits_tracked_total",
			Help:      "Visits accepted by the track endpoint, by page category.",
		},
		[]string{"page"},
	)
	trackFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "track_failures_total",
			Help:      "Visits the store failed to record.",
		},
	)
	statsDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stats_duration_seconds",
			Help:      "Time spent assembling the stats payload.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

// BreakerReporter exposes the store's circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// breakerValue maps a breaker state to the gauge value.
func breakerValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	}
	return -1
}

// InitPrometheusMetrics registers the analytics collectors with reg.
func InitPrometheusMetrics(reg prometheus.Registerer, store BreakerReporter) {
	breaker := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "store_breaker_state",
			Help:      "Key-value store circuit breaker: 0 closed, 1 half-open, 2 open, -1 disabled.",
		},
		func() float64 { return breakerValue(store.BreakerState()) },
	)
	reg.MustRegister(visitsTracked, trackFailures, statsDuration, breaker)
}

// MetricsHandler exposes the starlore_ metric families from g in the text format.
func MetricsHandler(g prometheus.Gatherer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		metricFamilies, err := g.Gather()
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to gather metrics")
			return
		}

		filtered := make([]*dto.MetricFamily, 0, len(metricFamilies))
		for _, mf := range metricFamilies {
			if strings.HasPrefix(mf.GetName(), metricsNamespace+"_") {
				filtered = append(filtered, mf)
			}
		}

		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, format)
		for _, mf := range filtered {
			if err := encoder.Encode(mf); err != nil {
				errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode metrics")
				return
			}
		}

		ctx.SetContentType(string(format))
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}
