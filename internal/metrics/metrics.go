package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metric collectors for the tally CLI.
type Metrics struct {
	registry *prometheus.Registry

	// Upstream API metrics.
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Token refresh metrics.
	TokenRefreshesTotal *prometheus.CounterVec

	// Upstream error metrics.
	UpstreamErrorsTotal *prometheus.CounterVec

	// Rate resolution metrics.
	RateResolutionsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_api_requests_total",
			Help: "Total number of upstream API requests.",
		}, []string{"service", "method", "status_code"}),

		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tally_api_request_duration_seconds",
			Help:    "Upstream API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),

		TokenRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_token_refreshes_total",
			Help: "Total number of OAuth token refresh attempts.",
		}, []string{"result"}),

		UpstreamErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_upstream_errors_total",
			Help: "Total number of upstream request errors by error type.",
		}, []string{"error_type"}),

		RateResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_rate_resolutions_total",
			Help: "Total number of rate resolutions by source.",
		}, []string{"billable_source", "cost_source"}),
	}

	// Register all metrics.
	reg.MustRegister(
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.TokenRefreshesTotal,
		m.UpstreamErrorsTotal,
		m.RateResolutionsTotal,
	)

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncAPIRequest increments the API request counter.
func (m *Metrics) IncAPIRequest(service, method string, statusCode int) {
	m.APIRequestsTotal.WithLabelValues(service, method, fmt.Sprintf("%d", statusCode)).Inc()
}

// ObserveAPIDuration records an upstream request duration.
func (m *Metrics) ObserveAPIDuration(service string, seconds float64) {
	m.APIRequestDuration.WithLabelValues(service).Observe(seconds)
}

// IncTokenRefresh increments the token refresh counter for the given result.
func (m *Metrics) IncTokenRefresh(result string) {
	m.TokenRefreshesTotal.WithLabelValues(result).Inc()
}

// IncUpstreamError increments the upstream error counter with error type classification.
func (m *Metrics) IncUpstreamError(errorType string) {
	m.UpstreamErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncRateResolution increments the rate resolution counter by source pair.
func (m *Metrics) IncRateResolution(billableSource, costSource string) {
	m.RateResolutionsTotal.WithLabelValues(billableSource, costSource).Inc()
}

// Dump writes a plain-text summary of every non-zero counter and histogram
// count to w. Used by the --stats flag at the end of a run.
func (m *Metrics) Dump(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	var lines []string
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%s", lp.GetName(), lp.GetValue()))
			}
			suffix := ""
			if len(labels) > 0 {
				suffix = "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				if v := metric.GetCounter().GetValue(); v > 0 {
					lines = append(lines, fmt.Sprintf("%s%s %g", fam.GetName(), suffix, v))
				}
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				if h.GetSampleCount() > 0 {
					lines = append(lines, fmt.Sprintf("%s%s count=%d sum=%.3fs",
						fam.GetName(), suffix, h.GetSampleCount(), h.GetSampleSum()))
				}
			}
		}
	}
	sort.Strings(lines)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
