package crypto

import (
	"strings"
	"testing"
)

func TestIdentityRoundTrip(t *testing.T) {
	keys, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	id := Identity(keys.Public)
	s := id.String()
	if len(s) != IdentityLength {
		t.Fatalf("Identity string length %d, want %d", len(s), IdentityLength)
	}

	parsed, err := ParseIdentity(s)
	if err != nil {
		t.Fatalf("Failed to parse identity: %v", err)
	}
	if !parsed.Equal(id) {
		t.Error("Parsed identity does not match original")
	}
}

func TestParseIdentityValidation(t *testing.T) {
	// Too short
	if _, err := ParseIdentity("abcd"); err == nil {
		t.Error("Expected error for short identity")
	}

	// Right length, not hex
	bad := strings.Repeat("zz", 32)
	if _, err := ParseIdentity(bad); err == nil {
		t.Error("Expected error for non-hex identity")
	}

	// All zeros
	zeros := strings.Repeat("00", 32)
	if _, err := ParseIdentity(zeros); err == nil {
		t.Error("Expected error for all-zero identity")
	}
}

func TestIdentityEqual(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	if !Identity(a.Public).Equal(Identity(a.Public)) {
		t.Error("Identity does not equal itself")
	}
	if Identity(a.Public).Equal(Identity(b.Public)) {
		t.Error("Distinct identities compare equal")
	}
}
