package noisestream

import (
	"github.com/opd-ai/noisestream/negotiate"
)

// SecureStream is a negotiated secure channel. Reads and writes are
// transparently decrypted and encrypted; the not-ready and error signalling
// of the underlying transport passes through verbatim, including
// transport.ErrWouldBlock.
type SecureStream struct {
	session *negotiate.Session
}

func newSecureStream(session *negotiate.Session) *SecureStream {
	return &SecureStream{session: session}
}

// Read decrypts available channel data into p.
func (s *SecureStream) Read(p []byte) (int, error) {
	return s.session.Read(p)
}

// Write encrypts p and writes it to the transport.
func (s *SecureStream) Write(p []byte) (int, error) {
	return s.session.Write(p)
}

// Flush pushes any pending encrypted bytes and forwards to the transport.
func (s *SecureStream) Flush() error {
	return s.session.Flush()
}

// Close releases the underlying transport without a protocol-level
// shutdown.
func (s *SecureStream) Close() error {
	return s.session.Close()
}

// PeerIdentity returns the authenticated identity of the remote endpoint in
// its hexadecimal string form.
func (s *SecureStream) PeerIdentity() string {
	return s.session.PeerIdentity().String()
}
