package credential

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

const serviceName = "llm-mail-pipeline"

const (
	envPrefix     = "env:"
	keyringPrefix = "keyring:"
)

// Opener opens the keyring backing "keyring:" references
type Opener func() (keyring.Keyring, error)

// Resolver turns credential references from the config file into secrets.
// A reference is a literal value, "env:NAME" or "keyring:KEY".
type Resolver struct {
	open Opener

	once sync.Once
	ring keyring.Keyring
	err  error
}

// NewResolver creates a resolver backed by the system keyring
func NewResolver() *Resolver {
	return NewResolverWithOpener(openKeyring)
}

// NewResolverWithOpener creates a resolver with a custom keyring opener
func NewResolverWithOpener(open Opener) *Resolver {
	return &Resolver{open: open}
}

// Resolve returns the secret a reference points at
func (r *Resolver) Resolve(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envPrefix):
		name := strings.TrimPrefix(ref, envPrefix)
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return value, nil
	case strings.HasPrefix(ref, keyringPrefix):
		key := strings.TrimPrefix(ref, keyringPrefix)
		ring, err := r.keyring()
		if err != nil {
			return "", err
		}
		item, err := ring.Get(key)
		if err != nil {
			return "", fmt.Errorf("getting credential %q: %w", key, err)
		}
		return string(item.Data), nil
	default:
		return ref, nil
	}
}

// Set stores a secret in the keyring under key
func (r *Resolver) Set(key, value string) error {
	ring, err := r.keyring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: serviceName + " " + key}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

func (r *Resolver) keyring() (keyring.Keyring, error) {
	r.once.Do(func() {
		r.ring, r.err = r.open()
	})
	return r.ring, r.err
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/llm-mail-pipeline/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("llm-mail-pipeline-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}
