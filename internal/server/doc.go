// Package server implements the WebSocket endpoint for streaming sessions and
// the HTTP API for monitoring and management.
package server
