// Package auth authenticates API callers with key/secret pairs sent as HTTP
// basic auth. Secrets are stored as bcrypt hashes in the runtime config.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"grimm.is/rnsgate/internal/config"
)

// ErrInvalidCredentials is returned for an unknown key or a wrong secret.
var ErrInvalidCredentials = errors.New("invalid API key or secret")

// KeyStore holds the configured API keys.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewKeyStore builds a store from the api.key blocks of the runtime config.
func NewKeyStore(keys []config.APIKey) *KeyStore {
	s := &KeyStore{keys: make(map[string][]byte, len(keys))}
	for _, k := range keys {
		s.keys[k.Name] = []byte(k.SecretHash)
	}
	return s
}

// Len returns the number of configured keys.
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Verify checks secret against the hash stored for key.
func (s *KeyStore) Verify(key, secret string) error {
	s.mu.RLock()
	hash, ok := s.keys[key]
	s.mu.RUnlock()

	if !ok {
		// Unknown keys cost as much as wrong secrets.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("rnsgate"), bcrypt.DefaultCost)

// HashSecret returns the bcrypt hash to put in an api.key block.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateSecret returns a random 32 byte secret, hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
