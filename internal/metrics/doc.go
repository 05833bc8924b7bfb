// Package metrics exposes lab activity to Prometheus.
package metrics
