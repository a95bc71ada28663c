package hash

import (
	"strings"
	"testing"
)

func TestHashAndCompare(t *testing.T) {
	const password = "connector-admin-pw-1"

	hashed, err := Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hashed == password {
		t.Fatal("Hash() returned the plaintext password")
	}
	if !strings.HasPrefix(hashed, "$2a$12$") {
		t.Errorf("Hash() produced unexpected format: %s", hashed[:7])
	}

	if err := Compare(hashed, password); err != nil {
		t.Errorf("Compare() rejected the correct password: %v", err)
	}
	if err := Compare(hashed, "connector-admin-pw-2"); err == nil {
		t.Error("Compare() accepted the wrong password")
	}
	if err := Compare(hashed, strings.ToUpper(password)); err == nil {
		t.Error("Compare() ignored case")
	}
}

func TestHashRejectsShortPasswords(t *testing.T) {
	for _, password := range []string{"", "short", "1234567"} {
		if _, err := Hash(password); err == nil {
			t.Errorf("Hash(%q) expected error for short password", password)
		}
	}
}

func TestHashIsSalted(t *testing.T) {
	const password = "repeatable-password"

	first, err := Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	second, err := Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if first == second {
		t.Error("two hashes of the same password are identical")
	}
	if err := Compare(second, password); err != nil {
		t.Errorf("Compare() rejected a fresh hash: %v", err)
	}
}
