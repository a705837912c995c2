/*
Package monitoring provides Prometheus-based metrics collection for the
supervisor process: bridge verb throughput and latency, reducer intent
outcomes, the current revision counter, per-profile warm/active tab
counts, and engine resource manager call health.

# Usage

	metrics := monitoring.New()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	timer := monitoring.NewTimer(metrics, "create_content_view")
	// ... call the engine ...
	timer.Stop("ok")
*/
package monitoring
