package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	keyFileName = ".ledger.key"
	keySize     = 32 // raw SQLCipher key, passed as x'..'
)

// FileKeyProvider owns the ledger's SQLCipher key. The key lives hex-encoded
// in a 0600 file beside ledger.db; losing it makes the ledger unreadable, and
// OpenLedger then starts a fresh one.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider returns a provider for the key file in dataDir.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, keyFileName)}
}

// GetKey loads the ledger key.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	raw, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ledger key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode ledger key %s: %w", p.keyPath, err)
	}
	if err := checkKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

// StoreKey writes key via a temp file and rename so a crash never leaves a
// truncated key behind.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if err := checkKeySize(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("create ledger key dir: %w", err)
	}

	tmp := p.keyPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return fmt.Errorf("write ledger key: %w", err)
	}
	if err := os.Rename(tmp, p.keyPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write ledger key: %w", err)
	}
	return nil
}

// KeyExists reports whether a key file is present.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnsureKey returns the stored key, creating one on first use.
// A present but unreadable key is an error, never silently replaced.
func (p *FileKeyProvider) EnsureKey() ([]byte, error) {
	key, err := p.GetKey()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := p.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKey returns a fresh random ledger key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate ledger key: %w", err)
	}
	return key, nil
}

func checkKeySize(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid ledger key size: got %d, want %d", len(key), keySize)
	}
	return nil
}
