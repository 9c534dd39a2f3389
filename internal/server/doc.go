// Package server implements a small concurrent TCP server that answers raw
// HTTP/1.1 request lines from a fixed route table.
//
// The implementation is split into the connection acceptor (server.go), the
// fixed-size worker pool (pool.go), and the per-connection request handler
// (handlers.go), with configuration, routing, and response serialization
// kept in their own files.
package server
