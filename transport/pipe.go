package transport

import (
	"io"
	"sync"
)

// DefaultPipeCapacity is the per-direction buffer capacity used by Pipe.
const DefaultPipeCapacity = 64 * 1024

// pipeHalf is one direction of an in-memory pipe.
type pipeHalf struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	closed   bool
}

func (h *pipeHalf) write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}

	free := h.capacity - len(h.data)
	if free <= 0 {
		return 0, ErrWouldBlock
	}
	if len(p) > free {
		p = p[:free]
	}
	h.data = append(h.data, p...)
	return len(p), nil
}

func (h *pipeHalf) read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.data) == 0 {
		if h.closed {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, h.data)
	h.data = h.data[n:]
	if len(h.data) == 0 {
		h.data = nil
	}
	return n, nil
}

func (h *pipeHalf) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *pipeHalf) buffered() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.data)
}

// PipeConn is one end of a connected in-memory duplex pipe. Both ends
// implement Stream; reads and writes never block.
type PipeConn struct {
	rd *pipeHalf
	wr *pipeHalf
}

// Pipe creates a connected in-memory duplex pipe with DefaultPipeCapacity
// of buffer space in each direction.
func Pipe() (*PipeConn, *PipeConn) {
	return BufferedPipe(DefaultPipeCapacity)
}

// BufferedPipe creates a connected in-memory duplex pipe with the given
// buffer capacity in each direction. Writes past capacity and reads from an
// empty buffer return ErrWouldBlock.
func BufferedPipe(capacity int) (*PipeConn, *PipeConn) {
	if capacity <= 0 {
		capacity = DefaultPipeCapacity
	}
	ab := &pipeHalf{capacity: capacity}
	ba := &pipeHalf{capacity: capacity}
	a := &PipeConn{rd: ba, wr: ab}
	b := &PipeConn{rd: ab, wr: ba}
	return a, b
}

// Read copies buffered bytes from the peer into p. It returns ErrWouldBlock
// when nothing is buffered, or io.EOF once the pipe is closed and drained.
func (c *PipeConn) Read(p []byte) (int, error) {
	return c.rd.read(p)
}

// Write buffers p toward the peer. Short writes occur when the remaining
// capacity is smaller than p; a full buffer returns ErrWouldBlock.
func (c *PipeConn) Write(p []byte) (int, error) {
	return c.wr.write(p)
}

// Flush is a no-op: pipe writes are visible to the peer immediately.
func (c *PipeConn) Flush() error {
	return nil
}

// Close closes both directions. The peer reads any remaining buffered bytes
// followed by io.EOF; further writes on either end fail.
func (c *PipeConn) Close() error {
	c.rd.close()
	c.wr.close()
	return nil
}

// Buffered returns the number of bytes waiting to be read from this end.
func (c *PipeConn) Buffered() int {
	return c.rd.buffered()
}
