// Package noisestream provides a poll-driven secure channel over any
// non-blocking byte stream.
//
// A ClientContext or ServerContext originates a Handshake, which owns the
// transport and advances the negotiation one bounded step per Poll call
// without ever blocking. Once a Poll reports completion the caller receives
// a SecureStream that transparently encrypts and decrypts application bytes.
//
// Example:
//
//	ctx := noisestream.NewClientContext()
//	hs := ctx.Handshake(serverIdentity, transport.NetConn(conn))
//	for {
//	    stream, done, err := hs.Poll()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if done {
//	        stream.Write([]byte("hello"))
//	        break
//	    }
//	    // wait for transport readiness, then poll again
//	}
package noisestream

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/noisestream/crypto"
	"github.com/opd-ai/noisestream/negotiate"
	"github.com/opd-ai/noisestream/transport"
)

// ClientContext holds initiator-side configuration. Setters may be called
// until Handshake is invoked; each Handshake call snapshots the current
// configuration.
type ClientContext struct {
	credential negotiate.CredentialParams
}

// NewClientContext creates a client context. Without a configured static
// key, each handshake generates a fresh credential.
func NewClientContext() *ClientContext {
	return &ClientContext{}
}

// SetStaticKey configures the static credential presented to servers.
func (c *ClientContext) SetStaticKey(keys *crypto.KeyPair) {
	c.credential.StaticKey = keys
}

// Handshake starts negotiating a secure channel over stream, taking
// ownership of it. The remote endpoint must prove it holds the static key
// named by peerIdentity (64 hex characters).
//
// Credential acquisition and the first negotiation step run synchronously;
// their failures are reported by the first Poll, never here.
func (c *ClientContext) Handshake(peerIdentity string, stream transport.Stream) *Handshake {
	logrus.WithFields(logrus.Fields{
		"function": "ClientContext.Handshake",
		"peer":     truncateIdentity(peerIdentity),
	}).Debug("Starting client handshake")

	cred, err := negotiate.AcquireCredential(c.credential, negotiate.Initiator)
	if err != nil {
		return failedHandshake(err)
	}
	return newHandshake(negotiate.Begin(cred, stream, peerIdentity, negotiate.Initiator))
}

// ServerContext holds acceptor-side configuration. A static key must be
// configured before Handshake; its absence surfaces as a terminal error on
// the first Poll.
type ServerContext struct {
	credential negotiate.CredentialParams
}

// NewServerContext creates a server context with no credential configured.
func NewServerContext() *ServerContext {
	return &ServerContext{}
}

// SetStaticKey configures the static credential clients validate this
// server against.
func (s *ServerContext) SetStaticKey(keys *crypto.KeyPair) {
	s.credential.StaticKey = keys
}

// Identity returns the identity string clients should pass to their
// Handshake call, or "" when no credential is configured.
func (s *ServerContext) Identity() string {
	if s.credential.StaticKey == nil {
		return ""
	}
	return crypto.Identity(s.credential.StaticKey.Public).String()
}

// Handshake starts accepting a secure channel over stream, taking ownership
// of it. Failures, including a missing credential, are reported by the
// first Poll.
func (s *ServerContext) Handshake(stream transport.Stream) *Handshake {
	logrus.WithFields(logrus.Fields{
		"function": "ServerContext.Handshake",
		"identity": truncateIdentity(s.Identity()),
	}).Debug("Starting server handshake")

	cred, err := negotiate.AcquireCredential(s.credential, negotiate.Acceptor)
	if err != nil {
		return failedHandshake(err)
	}
	return newHandshake(negotiate.Begin(cred, stream, "", negotiate.Acceptor))
}

func truncateIdentity(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
