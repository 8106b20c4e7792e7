package security

import (
	"testing"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(4)
	password := []byte("pw123")
	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" {
		t.Fatal("Hash returned empty")
	}
	if err := h.Compare(hash, password); err != nil {
		t.Fatalf("Compare: %v", err)
	}
}

func TestHasher_CompareWrongPassword(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash([]byte("pw123"))
	if err := h.Compare(hash, []byte("different")); err == nil {
		t.Fatal("Compare with wrong password should fail")
	}
}

func TestHasher_HashesAreSalted(t *testing.T) {
	h := NewHasher(4)
	h1, _ := h.Hash([]byte("pw123"))
	h2, _ := h.Hash([]byte("pw123"))
	if h1 == h2 {
		t.Error("two hashes of the same password should differ (random salt)")
	}
}

func TestHasher_CostClamped(t *testing.T) {
	if h := NewHasher(12); h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h := NewHasher(0); h.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h.Cost)
	}
	if h := NewHasher(99); h.Cost > 31 {
		t.Errorf("excess cost should be clamped to MaxCost, got %d", h.Cost)
	}
}
