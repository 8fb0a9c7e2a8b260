package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := New(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h := testHasher(t)

	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ok, err := h.Verify("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected matching password to verify")
	}
}

func TestVerifyMismatchIsNotError(t *testing.T) {
	h := testHasher(t)

	encoded, err := h.Hash("right")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ok, err := h.Verify("wrong", encoded)
	if err != nil {
		t.Fatalf("mismatch must not be an error: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch")
	}
}

func TestVerifyMalformedHashFailsClosed(t *testing.T) {
	h := testHasher(t)

	ok, err := h.Verify("anything", "not-a-bcrypt-hash")
	if err == nil {
		t.Fatal("expected error for malformed hash")
	}
	if ok {
		t.Fatal("malformed hash must never verify")
	}
}

func TestNewRejectsCostOutOfRange(t *testing.T) {
	if _, err := New(bcrypt.MinCost - 1); err == nil {
		t.Fatal("expected error for cost below minimum")
	}
	if _, err := New(bcrypt.MaxCost + 1); err == nil {
		t.Fatal("expected error for cost above maximum")
	}
}
