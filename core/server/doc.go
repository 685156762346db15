// Package server holds the HTTP server configuration.
//
// The main application entry point (cmd start) builds the Fiber app; this package
// only defines the port, API key, environment and body limit settings consumed there.
package server
