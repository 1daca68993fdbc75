// Package api provides an HTTP API server for running and inspecting a
// chronicle project.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// MaxTicks caps the ticks a single POST /v1/ticks may request.
	MaxTicks int
}

const defaultMaxTicks = 20
