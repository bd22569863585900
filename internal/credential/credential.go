// Package credential caches the member's session token between runs.
package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"community-portal/internal/localstore"
)

const (
	serviceName = "community-portal"
	sessionKey  = "session"
)

// ErrNoToken is returned when no token has been cached.
var ErrNoToken = errors.New("no cached session token")

// TokenCache stores one session token.
type TokenCache interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// KeyringCache keeps the token in the system keyring.
type KeyringCache struct {
	ring keyring.Keyring
}

// OpenKeyring opens the system keyring. fileDir is used by the encrypted
// file backend when no desktop keyring is available.
func OpenKeyring(fileDir string) (*KeyringCache, error) {
	if fileDir == "" {
		fileDir = "~/.config/community-portal/credentials"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringCache(ring), nil
}

// NewKeyringCache wraps an opened keyring.
func NewKeyringCache(ring keyring.Keyring) *KeyringCache {
	return &KeyringCache{ring: ring}
}

func (k *KeyringCache) Load(_ context.Context) (string, error) {
	item, err := k.ring.Get(sessionKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", sessionKey, err)
	}
	return string(item.Data), nil
}

func (k *KeyringCache) Save(_ context.Context, token string) error {
	err := k.ring.Set(keyring.Item{
		Key:   sessionKey,
		Data:  []byte(token),
		Label: "Community Portal session",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", sessionKey, err)
	}
	return nil
}

func (k *KeyringCache) Clear(_ context.Context) error {
	err := k.ring.Remove(sessionKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", sessionKey, err)
	}
	return nil
}

// StoreCache keeps the token in the profile's local storage.
type StoreCache struct {
	store localstore.Store
}

// NewStoreCache creates a cache over s.
func NewStoreCache(s localstore.Store) *StoreCache {
	return &StoreCache{store: s}
}

func (c *StoreCache) Load(ctx context.Context) (string, error) {
	v, ok, err := c.store.Get(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	if !ok || len(v) == 0 {
		return "", ErrNoToken
	}
	return string(v), nil
}

func (c *StoreCache) Save(ctx context.Context, token string) error {
	return c.store.Set(ctx, sessionKey, []byte(token))
}

func (c *StoreCache) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, sessionKey)
}
