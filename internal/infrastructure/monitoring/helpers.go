package monitoring

import "strings"

// GetMetricsPrometheus returns a short banner ahead of the Prometheus
// exposition format served by promhttp.Handler at /metrics.
func (m *Metrics) GetMetricsPrometheus() string {
	var sb strings.Builder
	sb.WriteString("# supervisor metrics\n")
	sb.WriteString("# scrape /metrics with promhttp.Handler for the full exposition\n")
	return sb.String()
}
