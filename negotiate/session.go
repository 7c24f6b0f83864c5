package negotiate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"github.com/opd-ai/noisestream/crypto"
	"github.com/opd-ai/noisestream/transport"
)

// maxRecordPlaintext is the largest plaintext carried by one record: the
// Noise message ceiling minus the AEAD tag.
const maxRecordPlaintext = noise.MaxMsgLen - 16

// Session is a negotiated channel. Application bytes are carried in 2-byte
// big-endian length-prefixed records, each one a Noise transport message.
//
// The only buffering is what the record abstraction requires: a pending
// outbound record whose nonce is already consumed, a partially received
// inbound frame, and decrypted plaintext that did not fit the caller's
// buffer. Not-ready and error conditions from the transport pass through
// verbatim.
type Session struct {
	stream transport.Stream
	send   *noise.CipherState
	recv   *noise.CipherState
	peer   crypto.Identity

	out   []byte // encrypted record bytes not yet accepted by the transport
	in    []byte // raw inbound bytes, possibly a partial record
	plain []byte // decrypted bytes not yet delivered
}

func newSession(stream transport.Stream, send, recv *noise.CipherState, peer crypto.Identity, leftover []byte) *Session {
	return &Session{
		stream: stream,
		send:   send,
		recv:   recv,
		peer:   peer,
		in:     leftover,
	}
}

// PeerIdentity returns the authenticated identity of the remote endpoint.
func (s *Session) PeerIdentity() crypto.Identity {
	return s.peer
}

// Read decrypts channel data into p. It returns transport.ErrWouldBlock
// when no complete record is available yet, and forwards transport errors
// unchanged.
func (s *Session) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(s.plain) == 0 {
		if ok, err := s.decryptRecord(); err != nil {
			return 0, err
		} else if ok {
			continue
		}

		buf := make([]byte, readChunkSize)
		n, err := s.stream.Read(buf)
		if n > 0 {
			s.in = append(s.in, buf[:n]...)
			continue
		}
		if err == nil {
			return 0, transport.ErrWouldBlock
		}
		return 0, err
	}

	n := copy(p, s.plain)
	s.plain = s.plain[n:]
	if len(s.plain) == 0 {
		s.plain = nil
	}
	return n, nil
}

// decryptRecord extracts and decrypts one complete record from the inbound
// buffer, if present.
func (s *Session) decryptRecord() (bool, error) {
	if len(s.in) < 2 {
		return false, nil
	}
	need := 2 + int(binary.BigEndian.Uint16(s.in))
	if len(s.in) < need {
		return false, nil
	}

	plain, err := s.recv.Decrypt(nil, nil, s.in[2:need])
	if err != nil {
		return false, fmt.Errorf("record decryption failed: %w", err)
	}

	if rest := s.in[need:]; len(rest) > 0 {
		s.in = append([]byte(nil), rest...)
	} else {
		s.in = nil
	}
	if len(plain) > 0 {
		s.plain = plain
	}
	return true, nil
}

// Write encrypts p and writes it to the transport, chunking across records
// as needed. Plaintext counts as written once its record is encrypted; a
// record only partially accepted by the transport is completed by later
// calls. If the transport accepts nothing, (0, transport.ErrWouldBlock) is
// returned.
func (s *Session) Write(p []byte) (int, error) {
	var written int
	for {
		if err := s.drain(); err != nil {
			if errors.Is(err, transport.ErrWouldBlock) && written > 0 {
				return written, nil
			}
			return written, err
		}
		if len(p) == 0 {
			return written, nil
		}

		chunk := p
		if len(chunk) > maxRecordPlaintext {
			chunk = chunk[:maxRecordPlaintext]
		}
		record, err := s.seal(chunk)
		if err != nil {
			return written, err
		}
		s.out = record
		p = p[len(chunk):]
		written += len(chunk)
	}
}

// seal encrypts one chunk into a framed record.
func (s *Session) seal(chunk []byte) ([]byte, error) {
	record, err := s.send.Encrypt(make([]byte, 2, 2+len(chunk)+16), nil, chunk)
	if err != nil {
		return nil, fmt.Errorf("record encryption failed: %w", err)
	}
	binary.BigEndian.PutUint16(record, uint16(len(record)-2))
	return record, nil
}

// drain pushes the pending record toward the transport.
func (s *Session) drain() error {
	for len(s.out) > 0 {
		n, err := s.stream.Write(s.out)
		s.out = s.out[n:]
		if err != nil {
			return err
		}
	}
	s.out = nil
	return nil
}

// Flush completes any pending record and forwards to the transport.
func (s *Session) Flush() error {
	if err := s.drain(); err != nil {
		return err
	}
	return s.stream.Flush()
}

// Close releases the transport if it is closeable. No protocol-level
// shutdown message is sent.
func (s *Session) Close() error {
	if c, ok := s.stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
