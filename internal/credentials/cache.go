package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// cacheFileName is used under the user config directory when no path is configured.
const cacheFileName = "session_token"

// Cache stores a single session token.
type Cache interface {
	Save(creds Credentials) error
	Load() (Credentials, error)
	Clear() error
}

// FileCache keeps the token in one file.
type FileCache struct {
	path string
}

// NewFileCache returns a cache at path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// DefaultCachePath returns <user config dir>/gpioremote/session_token.
func DefaultCachePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config dir: %w", err)
	}
	return filepath.Join(dir, "gpioremote", cacheFileName), nil
}

// Path returns the cache file location.
func (c *FileCache) Path() string {
	return c.path
}

// Save validates creds and overwrites the cache entry.
func (c *FileCache) Save(creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating credential cache dir: %w", err)
	}
	if err := os.WriteFile(c.path, []byte(creds.Token()+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing credential cache: %w", err)
	}
	return nil
}

// Load reads and decodes the cache entry. A missing or empty file is ErrNotLoggedIn.
func (c *FileCache) Load() (Credentials, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, ErrNotLoggedIn
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("reading credential cache: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return Credentials{}, ErrNotLoggedIn
	}
	return Decode(token)
}

// Clear removes the cache entry. Clearing an empty cache is not an error.
func (c *FileCache) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing credential cache: %w", err)
	}
	return nil
}
