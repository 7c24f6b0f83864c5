package transport

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// netConnPollWindow bounds how long a single Read or Write on a wrapped
// net.Conn may wait before reporting ErrWouldBlock.
const netConnPollWindow = time.Millisecond

// netConnStream adapts a net.Conn to the non-blocking Stream vocabulary by
// issuing near-immediate deadlines and translating timeouts to ErrWouldBlock.
type netConnStream struct {
	conn net.Conn
}

// NetConn wraps a net.Conn as a Stream. Each Read and Write is bounded by a
// short deadline; an operation that times out without transferring any bytes
// is reported as ErrWouldBlock rather than an error.
func NetConn(conn net.Conn) Stream {
	logrus.WithFields(logrus.Fields{
		"function":    "NetConn",
		"remote_addr": conn.RemoteAddr(),
	}).Debug("Wrapping net.Conn as non-blocking stream")

	return &netConnStream{conn: conn}
}

func (s *netConnStream) Read(p []byte) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(netConnPollWindow)); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(p)
	return n, translateTimeout(n, err)
}

func (s *netConnStream) Write(p []byte) (int, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(netConnPollWindow)); err != nil {
		return 0, err
	}
	n, err := s.conn.Write(p)
	return n, translateTimeout(n, err)
}

func (s *netConnStream) Flush() error {
	return nil
}

func (s *netConnStream) Close() error {
	return s.conn.Close()
}

// translateTimeout maps a deadline expiry to the not-ready condition. A
// partial transfer before the deadline is reported as success; the caller
// retries for the remainder.
func translateTimeout(n int, err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if n > 0 {
			return nil
		}
		return ErrWouldBlock
	}
	return err
}
