package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"stryd.mini/ledger/internal/types"
)

// Key files hold one PKCS8 "PRIVATE KEY" PEM block and are only readable
// by their owner.
const (
	pemType     = "PRIVATE KEY"
	keyFileMode = 0o600
)

var (
	ErrNoKeyFile  = errors.New("no key file")
	ErrBadKeyFile = errors.New("malformed key file")
)

// LoadOrCreateIdentity returns the identity stored at keyPath. A missing
// or empty file is replaced by a freshly generated key.
func LoadOrCreateIdentity(keyPath string) (*Identity, error) {
	id, err := Load(keyPath)
	if !errors.Is(err, ErrNoKeyFile) {
		return id, err
	}
	if id, err = Generate(); err != nil {
		return nil, err
	}
	if err := id.Save(keyPath); err != nil {
		return nil, err
	}
	return id, nil
}

// Load reads the identity at keyPath. It never creates a key; a missing or
// empty file is ErrNoKeyFile.
func Load(keyPath string) (*Identity, error) {
	data, err := os.ReadFile(keyPath)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		return nil, fmt.Errorf("%w: %s", ErrNoKeyFile, keyPath)
	}
	if err != nil {
		return nil, err
	}
	priv, err := decodeKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadKeyFile, keyPath, err)
	}
	return NewIdentity(priv), nil
}

// PubkeyFromFile returns the ledger key of the identity at keyPath.
func PubkeyFromFile(keyPath string) (types.Pubkey, error) {
	id, err := Load(keyPath)
	if err != nil {
		return types.Pubkey{}, err
	}
	return id.Pubkey(), nil
}

// Generate returns a fresh identity that is not persisted anywhere.
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewIdentity(priv), nil
}

// FromSeed derives an identity from a 32-byte ed25519 seed.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return NewIdentity(ed25519.NewKeyFromSeed(seed)), nil
}

// Save writes the private key to keyPath, replacing any file there. The
// key is written to a temporary file in the same directory first so a
// crash never leaves a truncated key behind.
func (i *Identity) Save(keyPath string) error {
	der, err := x509.MarshalPKCS8PrivateKey(i.privateKey)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der})

	tmp, err := os.CreateTemp(filepath.Dir(keyPath), ".stryd-key-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(keyFileMode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), keyPath)
}

func decodeKey(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	if block.Type != pemType {
		return nil, fmt.Errorf("PEM block is %q, want %q", block.Type, pemType)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS8 key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, not ed25519", key)
	}
	return priv, nil
}
