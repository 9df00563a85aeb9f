// Package secrets keeps the inference API key out of the configuration file.
// On macOS it lives in the system Keychain; elsewhere the store reports
// ErrNotSupported and the key must come from the environment or the config
// file.
package secrets

import (
	"errors"
	"sync"
)

// ServiceName identifies inferstream credentials in the system keychain.
const ServiceName = "inferstream"

// AccountAPIKey is the account under which the API key is stored.
const AccountAPIKey = "api-key"

var (
	// ErrNotFound is returned when a credential is not in the store.
	ErrNotFound = errors.New("credential not found")

	// ErrNotSupported is returned by stores that do not work on this platform.
	ErrNotSupported = errors.New("secret store not supported on this platform")
)

// SecretStore stores credentials by service and account.
// Implementations must be safe for concurrent use.
type SecretStore interface {
	// Get returns ErrNotFound if the credential does not exist.
	Get(service, account string) (string, error)
	// Set creates or replaces a credential.
	Set(service, account, secret string) error
	// Delete returns ErrNotFound if the credential does not exist.
	Delete(service, account string) error
	IsSupported() bool
}

var (
	mu sync.RWMutex
	// store is set by the platform init.
	store SecretStore
)

// Default returns the store for the current platform. It never returns nil.
func Default() SecretStore {
	mu.RLock()
	defer mu.RUnlock()
	if store == nil {
		return &NoopStore{}
	}
	return store
}

// SetDefault replaces the default store and returns the previous one.
func SetDefault(s SecretStore) SecretStore {
	mu.Lock()
	defer mu.Unlock()
	prev := store
	store = s
	return prev
}

// APIKey reads the API key from the default store.
func APIKey() (string, error) {
	return Default().Get(ServiceName, AccountAPIKey)
}

// SetAPIKey saves the API key in the default store.
func SetAPIKey(key string) error {
	if key == "" {
		return errors.New("empty API key")
	}
	return Default().Set(ServiceName, AccountAPIKey, key)
}

// DeleteAPIKey removes the API key from the default store.
func DeleteAPIKey() error {
	return Default().Delete(ServiceName, AccountAPIKey)
}
