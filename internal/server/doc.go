// Package server implements the HTTP API: the POST /upload entry point of the
// upload pipeline, static serving of stored files under /uploads/, and the
// health, statistics and Prometheus monitoring endpoints.
package server
