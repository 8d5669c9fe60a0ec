package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrSecretNotFound is returned when a secret is not stored.
var ErrSecretNotFound = errors.New("secret not found")

const apiTokenAccount = "api_token"

// SecretStore reads and writes secrets in a 0600 JSON file under the data
// directory, keyed by account name.
type SecretStore struct {
	path string
	mu   sync.Mutex
}

// NewSecretStore returns the store at $XDG_DATA_HOME/nova/secrets.json.
func NewSecretStore() *SecretStore {
	return &SecretStore{path: secretsFilePath()}
}

func newSecretStoreAt(path string) *SecretStore {
	return &SecretStore{path: path}
}

func (s *SecretStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

// Get returns the secret stored for account.
func (s *SecretStore) Get(account string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := secrets[account]
	if !ok || v == "" {
		return "", fmt.Errorf("%s: %w", account, ErrSecretNotFound)
	}
	return v, nil
}

// Set stores value for account.
func (s *SecretStore) Set(account, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.read()
	if err != nil {
		return err
	}
	secrets[account] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, out, 0o600)
}

// GetAPIToken returns the bearer token protecting the HTTP API, generating
// and storing a random 32-byte hex token on first use.
func GetAPIToken(s *SecretStore) (string, error) {
	token, err := s.Get(apiTokenAccount)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	token = hex.EncodeToString(buf)
	if err := s.Set(apiTokenAccount, token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}
