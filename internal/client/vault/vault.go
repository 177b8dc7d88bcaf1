package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KeyLength defines AES-256 key size.
const KeyLength = 32

const keyFile = "vault_key"

var (
	ErrNoKey     = errors.New("vault key not initialized")
	ErrKeyExists = errors.New("vault key already exists")
)

// Vault seals local secrets (the stored session) with a key kept beside them.
type Vault struct {
	dir string
}

func New(dir string) *Vault { return &Vault{dir: dir} }

// Path returns the key file location.
func (v *Vault) Path() string { return filepath.Join(v.dir, keyFile) }

func (v *Vault) Exists() bool {
	_, err := os.Stat(v.Path())
	return err == nil
}

// Generate creates and stores a new random key.
func (v *Vault) Generate() ([]byte, error) {
	if v.Exists() {
		return nil, ErrKeyExists
	}
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(v.dir, 0o700); err != nil {
		return nil, err
	}
	b64 := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(v.Path(), []byte(b64), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func (v *Vault) Load() ([]byte, error) {
	b, err := os.ReadFile(v.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("decode vault key: %w", err)
	}
	if len(key) != KeyLength {
		return nil, errors.New("invalid key length")
	}
	return key, nil
}

// LoadOrCreate returns the existing key or generates one.
func (v *Vault) LoadOrCreate() ([]byte, error) {
	key, err := v.Load()
	if errors.Is(err, ErrNoKey) {
		return v.Generate()
	}
	return key, err
}

// Seal encrypts plaintext with AES-256-GCM; the result is nonce||ciphertext.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal using the same key and aad.
func Open(key, sealed, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ct, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blk, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blk)
}
