package negotiate

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"github.com/opd-ai/noisestream/crypto"
	"github.com/opd-ai/noisestream/transport"
	"github.com/sirupsen/logrus"
)

// cipherSuite is the Noise cipher suite every channel negotiates with.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// readChunkSize is the granularity of transport reads during the handshake.
const readChunkSize = 4096

// Continuation owns a suspended handshake: the transport, the in-progress
// Noise state, pending outbound bytes and any partially received frame.
// Step resumes it; ownership of all of these moves into Step's result.
type Continuation struct {
	role     Role
	stream   transport.Stream
	hs       *noise.HandshakeState
	expect   crypto.Identity
	verify   bool
	verified bool

	out       []byte // framed bytes not yet accepted by the transport
	in        []byte // raw inbound bytes, possibly a partial frame
	writeTurn bool
	send      *noise.CipherState
	recv      *noise.CipherState
	done      bool
}

// Begin starts a handshake for the given role over stream and immediately
// runs the first negotiation step. The initiator validates the remote
// endpoint against peerIdentity; the acceptor ignores it.
//
// Exactly one of the three results is meaningful: a completed Session, a
// Continuation to resume once the transport is ready again, or an error.
func Begin(cred *Credential, stream transport.Stream, peerIdentity string, role Role) (*Session, *Continuation, error) {
	c := &Continuation{
		role:      role,
		stream:    stream,
		writeTurn: role == Initiator,
	}

	if role == Initiator {
		expect, err := crypto.ParseIdentity(peerIdentity)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid peer identity: %w", err)
		}
		c.expect = expect
		c.verify = true
	}

	static := noise.DHKey{
		Private: append([]byte(nil), cred.keys.Private[:]...),
		Public:  append([]byte(nil), cred.keys.Public[:]...),
	}
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     role == Initiator,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create handshake state: %w", err)
	}
	c.hs = hs

	logrus.WithFields(logrus.Fields{
		"function": "Begin",
		"role":     role.String(),
		"identity": cred.Identity().String()[:8],
	}).Debug("Starting channel negotiation")

	return c.Step()
}

// Step advances the handshake as far as the transport currently allows and
// returns one of three outcomes: a finished Session, the Continuation to
// resume later, or a terminal error. After a Session or error is returned
// the Continuation must not be stepped again.
func (c *Continuation) Step() (*Session, *Continuation, error) {
	for {
		suspended, err := c.flush()
		if err != nil {
			return nil, nil, err
		}
		if suspended {
			return nil, c, nil
		}
		if c.done {
			return c.finish()
		}

		if c.writeTurn {
			if err := c.writeMessage(); err != nil {
				return nil, nil, err
			}
			continue
		}

		frame, suspended, err := c.readFrame()
		if err != nil {
			return nil, nil, err
		}
		if suspended {
			return nil, c, nil
		}
		if err := c.readMessage(frame); err != nil {
			return nil, nil, err
		}
	}
}

// flush pushes pending outbound bytes. It reports suspended when the
// transport accepts no more for now.
func (c *Continuation) flush() (bool, error) {
	for len(c.out) > 0 {
		n, err := c.stream.Write(c.out)
		c.out = c.out[n:]
		if err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				return true, nil
			}
			return false, fmt.Errorf("handshake write failed: %w", err)
		}
	}
	c.out = nil
	return false, nil
}

// writeMessage constructs the next outbound handshake message and queues it
// as a length-prefixed frame.
func (c *Continuation) writeMessage() error {
	msg, cs1, cs2, err := c.hs.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("handshake message construction failed: %w", err)
	}

	frame := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(frame, uint16(len(msg)))
	copy(frame[2:], msg)
	c.out = frame
	c.writeTurn = false

	if cs1 != nil {
		c.installCiphers(cs1, cs2)
		c.done = true
	}
	return nil
}

// readFrame accumulates inbound bytes until a complete length-prefixed
// frame is available, or reports suspended once the transport runs dry.
func (c *Continuation) readFrame() ([]byte, bool, error) {
	buf := make([]byte, readChunkSize)
	for {
		if frame, ok := c.takeFrame(); ok {
			return frame, false, nil
		}

		n, err := c.stream.Read(buf)
		if n > 0 {
			c.in = append(c.in, buf[:n]...)
			continue
		}
		switch {
		case err == nil, errors.Is(err, transport.ErrWouldBlock):
			return nil, true, nil
		case errors.Is(err, io.EOF):
			return nil, false, fmt.Errorf("handshake interrupted: %w", io.ErrUnexpectedEOF)
		default:
			return nil, false, fmt.Errorf("handshake read failed: %w", err)
		}
	}
}

// takeFrame extracts one complete frame from the inbound buffer. Bytes past
// the frame are retained; after the final handshake message they belong to
// the record layer.
func (c *Continuation) takeFrame() ([]byte, bool) {
	if len(c.in) < 2 {
		return nil, false
	}
	need := 2 + int(binary.BigEndian.Uint16(c.in))
	if len(c.in) < need {
		return nil, false
	}

	frame := c.in[2:need]
	if rest := c.in[need:]; len(rest) > 0 {
		c.in = append([]byte(nil), rest...)
	} else {
		c.in = nil
	}
	return frame, true
}

// readMessage feeds a received frame to the Noise state machine and, once
// the remote static key is known, validates it for the initiator.
func (c *Continuation) readMessage(frame []byte) error {
	_, cs1, cs2, err := c.hs.ReadMessage(nil, frame)
	if err != nil {
		return fmt.Errorf("handshake rejected: %w", err)
	}
	c.writeTurn = true

	if c.verify && !c.verified {
		if peer := c.hs.PeerStatic(); len(peer) == len(c.expect) {
			var got crypto.Identity
			copy(got[:], peer)
			if !got.Equal(c.expect) {
				logrus.WithFields(logrus.Fields{
					"function": "readMessage",
					"expected": c.expect.String()[:8],
					"got":      got.String()[:8],
				}).Warn("Peer presented unexpected static key")
				return fmt.Errorf("%w: expected %s", ErrIdentityMismatch, c.expect)
			}
			c.verified = true
		}
	}

	if cs1 != nil {
		c.installCiphers(cs1, cs2)
		c.done = true
	}
	return nil
}

// installCiphers orients the split cipher states. Noise returns the
// initiator-to-acceptor state first.
func (c *Continuation) installCiphers(cs1, cs2 *noise.CipherState) {
	if c.role == Initiator {
		c.send, c.recv = cs1, cs2
	} else {
		c.send, c.recv = cs2, cs1
	}
}

// finish hands the negotiated session over, carrying any inbound bytes that
// arrived past the final handshake frame into the record layer.
func (c *Continuation) finish() (*Session, *Continuation, error) {
	var peer crypto.Identity
	copy(peer[:], c.hs.PeerStatic())

	logrus.WithFields(logrus.Fields{
		"function": "finish",
		"role":     c.role.String(),
		"peer":     peer.String()[:8],
	}).Info("Channel negotiation complete")

	return newSession(c.stream, c.send, c.recv, peer, c.in), nil, nil
}
