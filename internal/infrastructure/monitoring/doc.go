/*
Package monitoring provides Prometheus metrics for the bridge.

# Overview

Metrics live on a private registry so several bridges (and tests) can run in
one process. The registry also carries the Go runtime and process collectors.

# Features

- HTTP request metrics (latency, status, response size)
- Window and binding gauges
- Client and connection counts
- Event dispatch counts and callback latency
- Script eval outcomes and round-trip latency
- Raw channel byte counts

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics)
	// ... eval ...
	timer.Stop("success")
*/
package monitoring
