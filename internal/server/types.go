// Package server defines shared error values and utility helpers that are
// reused across the pool, acceptor, and handler.
package server

import (
	"errors"
	"net"
	"strings"
)

var (
	// ErrInvalidPoolSize is returned when a pool is asked for fewer than one worker.
	ErrInvalidPoolSize = errors.New("pool size must be at least 1")
	// ErrPoolClosed is returned by Submit once the pool has been shut down.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrQueueFull is returned by Submit when a queue limit is set and reached.
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("server closed")
	// ErrEmptyRequest means the peer closed the connection before sending a byte.
	ErrEmptyRequest = errors.New("empty request")
	// ErrLineTooLong means the request line did not fit in the configured limit.
	ErrLineTooLong = errors.New("request line too long")
)

// Task is a unit of work executed by exactly one pool worker.
type Task func()

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe")
}
