package identity_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"homebid/internal/identity"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token, err := identity.MintToken("secret", "user-1", "contractor", time.Hour, now)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	c, err := identity.VerifyToken(token, "secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.UserID != "user-1" || c.Role != "contractor" || c.Source != "jwt" {
		t.Fatalf("unexpected caller %+v", c)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := identity.MintToken("secret", "user-1", "homeowner", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := identity.VerifyToken(token, "other"); !errors.Is(err, identity.ErrInvalidAssertion) {
		t.Fatalf("expected invalid assertion, got %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	token, err := identity.MintToken("secret", "user-1", "homeowner", time.Hour, past)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := identity.VerifyToken(token, "secret"); !errors.Is(err, identity.ErrInvalidAssertion) {
		t.Fatalf("expected invalid assertion, got %v", err)
	}
}

func TestTokenGarbage(t *testing.T) {
	if _, err := identity.VerifyToken("not.a.jwt", "secret"); !errors.Is(err, identity.ErrInvalidAssertion) {
		t.Fatalf("expected invalid assertion, got %v", err)
	}
}

func TestMintRequiresSecret(t *testing.T) {
	if _, err := identity.MintToken("  ", "user-1", "homeowner", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := identity.HashPassword("hunter2hunter2", 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !identity.CheckPassword(hash, "hunter2hunter2") {
		t.Fatalf("expected match")
	}
	if identity.CheckPassword(hash, "wrong") {
		t.Fatalf("expected mismatch")
	}
}

func TestAPIKeys(t *testing.T) {
	key, err := identity.NewAPIKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	if !strings.HasPrefix(key, "hb_") || len(key) != 3+64 {
		t.Fatalf("unexpected key shape %q", key)
	}
	other, err := identity.NewAPIKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	if key == other {
		t.Fatalf("expected distinct keys")
	}
	if identity.HashAPIKey(key) != identity.HashAPIKey(key) {
		t.Fatalf("expected deterministic hash")
	}
	if identity.HashAPIKey(key) == identity.HashAPIKey(other) {
		t.Fatalf("expected distinct hashes")
	}
	if identity.HashAPIKey(key) == key {
		t.Fatalf("hash must not equal plaintext")
	}
}
