// Package credential supplies the bearer token that authenticates the live
// channel and the history API.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/99designs/keyring"

	"github.com/webitel/im-live-notify/config"
)

// Store is a TokenSource that can also persist the token.
type Store interface {
	Token(ctx context.Context) (string, error)
	Save(token string) error
	Clear() error
}

// Interface guards
var (
	_ Store = (*Keyring)(nil)
	_ Store = (*Static)(nil)
)

// Keyring keeps the token in the OS keyring under a single key.
type Keyring struct {
	ring keyring.Keyring
	key  string
}

func NewKeyring(ring keyring.Keyring, key string) *Keyring {
	return &Keyring{ring: ring, key: key}
}

// OpenKeyring opens the system keyring, falling back to an encrypted file store
// under fileDir where no desktop backend exists.
func OpenKeyring(service, key, fileDir string) (*Keyring, error) {
	if fileDir == "" {
		fileDir = "~/.config/" + service + "/credentials"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyring(ring, key), nil
}

// Token returns the stored token. A missing entry is not an error: the
// caller decides whether a token is required.
func (k *Keyring) Token(context.Context) (string, error) {
	item, err := k.ring.Get(k.key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", k.key, err)
	}
	return strings.TrimSpace(string(item.Data)), nil
}

func (k *Keyring) Save(token string) error {
	err := k.ring.Set(keyring.Item{
		Key:   k.key,
		Data:  []byte(token),
		Label: "im-live-notify access token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", k.key, err)
	}
	return nil
}

func (k *Keyring) Clear() error {
	err := k.ring.Remove(k.key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", k.key, err)
	}
	return nil
}

// Static serves a token fixed by configuration.
type Static struct {
	token string
}

func NewStatic(token string) *Static { return &Static{token: strings.TrimSpace(token)} }

func (s *Static) Token(context.Context) (string, error) { return s.token, nil }
func (s *Static) Save(token string) error               { s.token = token; return nil }
func (s *Static) Clear() error                          { s.token = ""; return nil }

// New selects the backend named by cfg.
func New(cfg *config.Config, logger *slog.Logger) (Store, error) {
	c := cfg.Credential
	switch c.Backend {
	case "static":
		if c.Token == "" {
			logger.Warn("[CREDENTIALS] static backend without token")
		}
		return NewStatic(c.Token), nil
	case "keyring":
		return OpenKeyring(c.Service, c.Key, c.FileDir)
	}
	return nil, fmt.Errorf("credential: unknown backend %q", c.Backend)
}
