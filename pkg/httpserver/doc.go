// Package httpserver provides a net/http server wrapper with
// environment-driven configuration and graceful shutdown.
package httpserver
