// Package metrics defines the Prometheus collectors for uploads, conversions,
// provider calls and the HTTP API.
package metrics
