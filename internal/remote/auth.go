package remote

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
)

// Authenticator provides credentials for a registry or object store.
type Authenticator interface {
	// Authenticate returns credentials for the given registry. Empty
	// credentials mean anonymous access.
	Authenticate(registry string) (username, password string, err error)
}

// KeychainAuthenticator resolves credentials from a docker-style keychain.
type KeychainAuthenticator struct {
	Keychain authn.Keychain
}

// NewDefaultAuthenticator uses authn.DefaultKeychain (docker config and
// credential helpers).
func NewDefaultAuthenticator() *KeychainAuthenticator {
	return &KeychainAuthenticator{Keychain: authn.DefaultKeychain}
}

func (a *KeychainAuthenticator) Authenticate(registry string) (string, string, error) {
	reg, err := name.NewRegistry(registry)
	if err != nil {
		return "", "", fmt.Errorf("invalid registry %q: %w", registry, err)
	}
	auth, err := a.Keychain.Resolve(reg)
	if err != nil {
		return "", "", err
	}
	cfg, err := auth.Authorization()
	if err != nil {
		return "", "", err
	}
	return cfg.Username, cfg.Password, nil
}

// StaticAuthenticator returns the same credentials for every registry.
type StaticAuthenticator struct {
	Username string
	Password string
}

func (a StaticAuthenticator) Authenticate(string) (string, string, error) {
	return a.Username, a.Password, nil
}
