package secrets

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

// Store holds credentials decrypted from an age-encrypted YAML file.
// The file is a flat map of environment variable names to values, so a
// config that says access_key_env: AWS_ACCESS_KEY_ID can be satisfied
// either by the environment or by the file.
type Store struct {
	values map[string]string
}

// Open decrypts the secrets file with the identities found at identityPath.
func Open(path, identityPath string) (*Store, error) {
	keyData, err := os.ReadFile(identityPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read age identity from %s: %w", identityPath, err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no age identities found in %s", identityPath)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets file %s: %w", path, err)
	}
	defer f.Close()

	return Decrypt(f, identities...)
}

// Decrypt reads an age-encrypted secrets document.
func Decrypt(r io.Reader, identities ...age.Identity) (*Store, error) {
	decrypted, err := age.Decrypt(r, identities...)
	if err != nil {
		return nil, fmt.Errorf("age decryption failed: %w", err)
	}

	data, err := io.ReadAll(decrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to read decrypted secrets: %w", err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return &Store{values: values}, nil
}

// Lookup resolves a credential by name: the environment wins, then the store.
// A nil Store only consults the environment.
func (s *Store) Lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, true
	}
	if s == nil {
		return "", false
	}
	v, ok := s.values[name]
	return v, ok && v != ""
}
