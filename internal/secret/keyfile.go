package secret

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoadOrCreateKeyFile reads the blob-at-rest key from path, generating and
// persisting a fresh one if the file does not yet exist. The returned bytes
// are the raw password passed to New — callers must not log them.
func LoadOrCreateKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("secret: read key file %s: %w", path, err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("secret: create key file directory: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("secret: write key file %s: %w", path, err)
	}
	return key, nil
}
