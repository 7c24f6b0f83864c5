// Package negotiate wraps the Noise Protocol Framework behind the
// three-outcome contract the secure channel is built on: a negotiation step
// either completes with a Session, fails with an error, or hands back a
// Continuation because the transport has no more data or capacity right now.
//
// The package uses the Noise XX pattern over Curve25519, ChaCha20-Poly1305
// and SHA-256. Handshake messages and post-handshake records travel as
// 2-byte big-endian length-prefixed frames.
package negotiate

import (
	"errors"
	"fmt"

	"github.com/opd-ai/noisestream/crypto"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoCredential indicates the acceptor role was asked to handshake
	// without a configured static credential.
	ErrNoCredential = errors.New("no static credential configured")
	// ErrIdentityMismatch indicates the remote endpoint presented a static
	// key that does not match the expected peer identity.
	ErrIdentityMismatch = errors.New("peer identity mismatch")
)

// Role identifies which side of the handshake a credential serves.
type Role uint8

const (
	// Initiator starts the handshake and validates the remote identity.
	Initiator Role = iota
	// Acceptor presents a local credential and waits for an initiator.
	Acceptor
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Acceptor:
		return "acceptor"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// CredentialParams carries the configurable credential inputs. A nil
// StaticKey means no credential was configured.
type CredentialParams struct {
	StaticKey *crypto.KeyPair
}

// Credential is an acquired, role-ready static key pair.
type Credential struct {
	keys crypto.KeyPair
}

// AcquireCredential resolves the credential for a role. The acceptor must
// have a configured static key; the initiator generates a fresh one when
// none is configured.
func AcquireCredential(params CredentialParams, role Role) (*Credential, error) {
	if params.StaticKey != nil {
		return &Credential{keys: *params.StaticKey}, nil
	}

	if role == Acceptor {
		return nil, ErrNoCredential
	}

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s credential: %w", role, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "AcquireCredential",
		"role":     role.String(),
		"identity": crypto.Identity(keys.Public).String()[:8],
	}).Debug("Generated ephemeral static credential")

	return &Credential{keys: *keys}, nil
}

// Identity returns the identity string other endpoints validate this
// credential against.
func (c *Credential) Identity() crypto.Identity {
	return crypto.Identity(c.keys.Public)
}
