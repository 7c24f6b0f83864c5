package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// IdentityLength is the length of an identity string in hex characters.
const IdentityLength = 64

// Identity is a peer identity: the hex-encoded static public key an
// initiator validates the remote endpoint against.
type Identity [32]byte

// ParseIdentity parses an identity from its hexadecimal string form.
func ParseIdentity(s string) (Identity, error) {
	if len(s) != IdentityLength {
		return Identity{}, fmt.Errorf("invalid identity length: got %d, want %d", len(s), IdentityLength)
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid identity encoding: %w", err)
	}

	var id Identity
	copy(id[:], data)
	if isZeroKey(id) {
		return Identity{}, errors.New("invalid identity: all zeros")
	}
	return id, nil
}

// String returns the hexadecimal form of the identity.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// Equal reports whether two identities match, in constant time.
func (id Identity) Equal(other Identity) bool {
	return subtle.ConstantTimeCompare(id[:], other[:]) == 1
}
