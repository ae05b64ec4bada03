// Package server provides the HTTP API for monitoring the segmentation
// engine: health, statistics, configuration, and Prometheus metrics.
package server
