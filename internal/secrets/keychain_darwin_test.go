//go:build darwin

package secrets

import (
	"errors"
	"testing"
)

const testService = "inferstream-test"

func TestKeychainStore_RoundTrip(t *testing.T) {
	s := &KeychainStore{}
	account := "round-trip"
	_ = s.Delete(testService, account)
	t.Cleanup(func() { _ = s.Delete(testService, account) })

	for _, secret := range []string{"sk-first", "sk-second"} {
		if err := s.Set(testService, account, secret); err != nil {
			t.Fatalf("Set(%q) error = %v", secret, err)
		}
		got, err := s.Get(testService, account)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != secret {
			t.Errorf("Get() = %q, want %q", got, secret)
		}
	}

	if err := s.Delete(testService, account); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := s.Get(testService, account); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want %v", err, ErrNotFound)
	}
}

func TestKeychainStore_Missing(t *testing.T) {
	s := &KeychainStore{}
	if _, err := s.Get(testService, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want %v", err, ErrNotFound)
	}
	if err := s.Delete(testService, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want %v", err, ErrNotFound)
	}
}

func TestDefault_IsKeychain(t *testing.T) {
	if _, ok := Default().(*KeychainStore); !ok {
		t.Errorf("Default() = %T, want *KeychainStore", Default())
	}
}
