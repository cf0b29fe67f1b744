// Package routes registers the /-/ diagnostics endpoints (cache inspection and
// invalidation, Prometheus metrics) on the Fiber app built by package server.
package routes
