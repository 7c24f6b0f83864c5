// Package transport defines the byte-stream capability the secure channel
// negotiates over, together with in-memory and net.Conn implementations.
//
// A Stream never blocks: when no data or capacity is currently available it
// returns ErrWouldBlock instead. Callers are expected to retry when an
// external readiness source (a poller, a reactor, a timer) indicates that
// the stream may have made progress.
package transport

import (
	"errors"
	"io"
)

// ErrWouldBlock indicates that the stream has no data or capacity available
// right now. It is a readiness condition, not a failure; the operation may
// be retried later. Match it with errors.Is.
var ErrWouldBlock = errors.New("transport would block")

// Stream is the minimal capability a handshake negotiates over: a byte
// stream with non-blocking reads and writes. Implementations report the
// not-ready condition by returning ErrWouldBlock.
type Stream interface {
	io.Reader
	io.Writer

	// Flush pushes any implementation-level buffered bytes toward the peer.
	// Unbuffered streams return nil.
	Flush() error
}
