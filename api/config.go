// Package api provides the tenant-facing HTTP API for ingesting, searching,
// and managing documents.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string
}

// ErrorResponse is the JSON error body returned by every handler.
type ErrorResponse struct {
	Error string `json:"error"`
}
