// Package server implements the local status HTTP API of the storyreel client.
// It reports the current generation run, recent run history, client statistics
// and Prometheus metrics so long-running generations can be watched from a browser
// or a monitoring stack.
package server
