// Package metrics exposes Prometheus counters for analysis, review, and
// enrichment activity, plus HTTP request instrumentation for the chi router.
// Collectors register with the default registry at init.
package metrics
