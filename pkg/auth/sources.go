package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "commentharvest"
	keyringPrefix  = "instagram_"
)

// Source supplies a session for the authenticated platform
type Source interface {
	Retrieve() (*Session, error)
}

// StaticSource returns a fixed session, typically assembled from
// configuration (file, .env or environment).
type StaticSource struct {
	Session Session
}

// Retrieve returns the configured session if any value is set
func (s StaticSource) Retrieve() (*Session, error) {
	if s.Session.IsEmpty() {
		return nil, ErrCredentialsNotFound
	}
	session := s.Session
	return &session, nil
}

// KeyringSource reads a session stored as JSON in the system keychain
type KeyringSource struct {
	Account string
}

// Retrieve gets the session for Account from the keychain
func (k KeyringSource) Retrieve() (*Session, error) {
	if k.Account == "" {
		return nil, ErrCredentialsNotFound
	}

	data, err := keyring.Get(keyringService, keyringPrefix+k.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Resolve returns the first session a source yields. Sources that have
// nothing report ErrCredentialsNotFound and are skipped; any other error
// stops the search.
func Resolve(sources ...Source) (*Session, error) {
	for _, src := range sources {
		session, err := src.Retrieve()
		if err == nil && session != nil {
			return session, nil
		}
		if err != nil && !errors.Is(err, ErrCredentialsNotFound) {
			return nil, err
		}
	}
	return nil, ErrCredentialsNotFound
}
