package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrKeyTooShort = errors.New("api key must be at least 16 characters")

const (
	bcryptCost   = 12
	minKeyLength = 16
)

// APIKeyResolver resolves service API keys into principals. Keys are held
// only as bcrypt hashes; intended for headless collaborators (relay
// workers, ops tooling) that cannot hold a user token.
type APIKeyResolver struct {
	keys map[string]Principal // bcrypt hash -> principal
}

func NewAPIKeyResolver() *APIKeyResolver {
	return &APIKeyResolver{keys: make(map[string]Principal)}
}

// Register associates a hashed key with a principal
func (r *APIKeyResolver) Register(keyHash string, p Principal) {
	r.keys[keyHash] = p
}

// Resolve matches a raw key against the registered hashes
func (r *APIKeyResolver) Resolve(key string) (Principal, error) {
	for hash, p := range r.keys {
		if CheckAPIKey(key, hash) {
			return p, nil
		}
	}
	return Principal{}, ErrAccessDenied
}

// HashAPIKey hashes a raw API key using bcrypt
func HashAPIKey(key string) (string, error) {
	if len(key) < minKeyLength {
		return "", ErrKeyTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckAPIKey compares a raw key with its hash
func CheckAPIKey(key, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}
