// Package credstore persists the session token and cached profile blob
// across restarts. Secret entries are sealed with AES-GCM under a key
// derived from a per-install master secret, so a copied credential file
// is useless without the secret that lives next to it.
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// Entry names used by the session manager.
const (
	KeyToken   = "auth_token"
	KeyProfile = "user_profile"
)

var ErrNotFound = errors.New("credstore: entry not found")

const secretFile = "master.secret"

type Store struct {
	dir string
	key []byte
}

// Open prepares the credential directory and loads or creates the master
// secret. The directory is created with owner-only permissions.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	secret, err := loadOrCreateSecret(filepath.Join(dir, secretFile))
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, key: key}, nil
}

// Put seals value and writes it as the entry for key, replacing any
// previous entry.
func (s *Store) Put(key string, value []byte) error {
	sealed, err := encrypt(s.key, value)
	if err != nil {
		return err
	}
	return os.WriteFile(s.entryPath(key), sealed, 0o600)
}

// Get returns the plaintext for key, or ErrNotFound if no entry exists.
func (s *Store) Get(key string) ([]byte, error) {
	sealed, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decrypt(s.key, sealed)
}

// Delete removes the entry for key. Deleting a missing entry is not an
// error.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.entryPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PutPreference stores a non-secret preference value in plaintext.
func (s *Store) PutPreference(key, value string) error {
	return os.WriteFile(s.prefPath(key), []byte(value), 0o600)
}

// GetPreference returns a stored preference, or ErrNotFound.
func (s *Store) GetPreference(key string) (string, error) {
	data, err := os.ReadFile(s.prefPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

func (s *Store) entryPath(key string) string {
	return filepath.Join(s.dir, key+".cred")
}

func (s *Store) prefPath(key string) string {
	return filepath.Join(s.dir, key+".pref")
}

func loadOrCreateSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil && len(secret) == 32 {
		return secret, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	secret = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, err
	}
	return secret, nil
}

func deriveKey(secret []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, nil, []byte("credstore-seal"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	return key, nil
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

func decrypt(key, blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(blob) < ns {
		return nil, errors.New("credstore: ciphertext too short")
	}
	return gcm.Open(nil, blob[:ns], blob[ns:], nil)
}
