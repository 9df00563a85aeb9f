package secrets

import "sync"

// NoopStore is the store of platforms without a keychain. Every operation
// returns ErrNotSupported.
type NoopStore struct{}

func (*NoopStore) Get(service, account string) (string, error) { return "", ErrNotSupported }
func (*NoopStore) Set(service, account, secret string) error   { return ErrNotSupported }
func (*NoopStore) Delete(service, account string) error        { return ErrNotSupported }
func (*NoopStore) IsSupported() bool                           { return false }

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]string
}

func memoryKey(service, account string) string {
	return service + "\x00" + account
}

func (m *MemoryStore) Get(service, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.secrets[memoryKey(service, account)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secrets == nil {
		m.secrets = make(map[string]string)
	}
	m.secrets[memoryKey(service, account)] = secret
	return nil
}

func (m *MemoryStore) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(service, account)
	if _, ok := m.secrets[k]; !ok {
		return ErrNotFound
	}
	delete(m.secrets, k)
	return nil
}

func (m *MemoryStore) IsSupported() bool { return true }
