package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	pepperMu sync.RWMutex
	pepper   string
)

// Pepper returns the process-wide secret appended to passwords before hashing.
// It is empty until SetPepper or LoadPepper is called.
func Pepper() string {
	pepperMu.RLock()
	defer pepperMu.RUnlock()
	return pepper
}

// SetPepper replaces the pepper. Changing it invalidates every stored hash.
func SetPepper(p string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepper = p
}

// LoadPepper reads the pepper from path, generating and writing a new one
// (0600) if the file does not exist yet.
func LoadPepper(path string) error {
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		SetPepper(strings.TrimSpace(string(data)))
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	generated := base64.RawURLEncoding.EncodeToString(buf)

	if err := os.WriteFile(path, []byte(generated), 0o600); err != nil {
		return err
	}

	SetPepper(generated)
	return nil
}
