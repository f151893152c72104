// Package identity reads the signed-in user from on-device key/value storage.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// CurrentUserKey is the key under which the host app stores the signed-in user id.
const CurrentUserKey = "current_user_id"

// Store is a simple key/value read.
type Store interface {
	Get(key string) (string, bool, error)
}

// KeyResolver adapts a Store to registration.IdentityResolver.
type KeyResolver struct {
	Store Store
	Key   string
}

// NewKeyResolver resolves identity from key, defaulting to CurrentUserKey.
func NewKeyResolver(store Store, key string) *KeyResolver {
	if key == "" {
		key = CurrentUserKey
	}
	return &KeyResolver{Store: store, Key: key}
}

// CurrentUserID implements registration.IdentityResolver.
func (r *KeyResolver) CurrentUserID(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return r.Store.Get(r.Key)
}

// --- Preferences (file backed) ---

// Preferences is a JSON object file of string values, the on-device
// equivalent of a shared-preferences bucket. Writes are for the host app.
type Preferences struct {
	fs   afero.Fs
	path string
	mu   sync.RWMutex
}

// NewPreferences opens (lazily) the preferences file at path on fs.
func NewPreferences(fs afero.Fs, path string) *Preferences {
	return &Preferences{fs: fs, path: path}
}

// Get returns the value for key. A missing file or key is not an error.
func (p *Preferences) Get(key string) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	values, err := p.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set stores value under key.
func (p *Preferences) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.load()
	if err != nil {
		return err
	}
	values[key] = value
	return p.save(values)
}

// Remove deletes key. Removing a missing key is a no-op.
func (p *Preferences) Remove(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return p.save(values)
}

func (p *Preferences) load() (map[string]string, error) {
	data, err := afero.ReadFile(p.fs, p.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences %s: %w", p.path, err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("malformed preferences %s: %w", p.path, err)
	}
	return values, nil
}

func (p *Preferences) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := p.fs.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create preferences dir: %w", err)
		}
	}
	return afero.WriteFile(p.fs, p.path, data, 0o600)
}

// --- Memory ---

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the value for key; a missing key is not an error.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Remove deletes key. Removing a missing key is a no-op.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
