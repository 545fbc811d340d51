// Package server implements the UDP receive loop that feeds datagrams through
// the frame parser and router, and the HTTP API used for monitoring.
package server
