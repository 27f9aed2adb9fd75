package auth

import (
	"errors"
	"strings"
	"testing"
)

// cheapParams keep the tests fast; production uses DefaultParams.
var cheapParams = Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestHashPassword_Format(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	// Verify PHC format: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
	if !strings.HasPrefix(hash, "$argon2id$v=") {
		t.Errorf("Hash should be in PHC format, got: %s", hash)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("Hash should have 6 parts, got: %d", len(parts))
	}
	if parts[2] != "v=19" {
		t.Errorf("Expected v=19, got: %s", parts[2])
	}
	if parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("Expected m=65536,t=3,p=4, got: %s", parts[3])
	}
}

func TestHasher_Uniqueness(t *testing.T) {
	t.Parallel()

	h := NewHasher(cheapParams)
	password := "the_same_password_12345"

	hash1, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	hash2, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	// Same password should produce different hashes (different salts)
	if hash1 == hash2 {
		t.Error("Same password should produce different hashes due to random salt")
	}

	match1, _ := h.Verify(password, hash1)
	match2, _ := h.Verify(password, hash2)
	if !match1 || !match2 {
		t.Error("Both hashes should verify correctly")
	}
}

func TestHasher_Verify(t *testing.T) {
	t.Parallel()

	h := NewHasher(cheapParams)
	hash, err := h.Hash("s3cret-pass")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct", "s3cret-pass", true},
		{"altered last char", "s3cret-pasS", false},
		{"appended char", "s3cret-pass!", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, err := h.Verify(tt.password, hash)
			if err != nil {
				t.Fatalf("Verify should not error for a well-formed hash: %v", err)
			}
			if match != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.password, match, tt.want)
			}
		})
	}
}

func TestHasher_VerifyUsesEncodedParams(t *testing.T) {
	t.Parallel()

	// A hash made with cheap params must verify with a hasher configured differently.
	hash, err := NewHasher(cheapParams).Hash("portable")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	match, err := VerifyPassword("portable", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !match {
		t.Error("hash should verify with the parameters it encodes")
	}
}

func TestVerifyPassword_InvalidHashFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong format", "not-a-hash"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$salt$hash"},
		{"missing parts", "$argon2id$v=19$m=65536"},
		{"zero memory", "$argon2id$v=19$m=0,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl"},
		{"bad salt encoding", "$argon2id$v=19$m=1024,t=1,p=1$!!!$c29tZWhhc2hoZXJl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := VerifyPassword("password", tt.hash)
			if !errors.Is(err, ErrInvalidHash) {
				t.Errorf("VerifyPassword(%q) error = %v, want %v", tt.hash, err, ErrInvalidHash)
			}
		})
	}
}

func TestVerifyPassword_WrongVersion(t *testing.T) {
	t.Parallel()

	invalidVersionHash := "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl"

	match, err := VerifyPassword("password", invalidVersionHash)
	if !errors.Is(err, ErrIncompatibleVersion) {
		t.Errorf("Expected ErrIncompatibleVersion, got: %v", err)
	}
	if match {
		t.Error("Should not match with incompatible version")
	}
}
