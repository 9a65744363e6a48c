package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
)

// hkdfInfo binds derived keys to their use so one passphrase never yields
// the same key for two purposes.
const hkdfInfo = "fleet-agent credential cache v1"

// EncryptionManagerInterface defines encryption and decryption methods.
type EncryptionManagerInterface interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// EncryptionManager implements AES-256-GCM. The nonce is prepended to every
// ciphertext.
type EncryptionManager struct {
	aesgcm cipher.AEAD
}

// NewEncryptionManager derives the AES key from passphrase with HKDF-SHA256.
// salt may be empty, in which case HKDF uses a zero salt.
func NewEncryptionManager(passphrase string, salt []byte) (*EncryptionManager, error) {
	if passphrase == "" {
		return nil, errors.New("encryption passphrase is empty")
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), salt, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive AES key: %w", err)
	}
	return newWithKey(key)
}

func newWithKey(key []byte) (*EncryptionManager, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher block: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES-GCM: %w", err)
	}
	return &EncryptionManager{aesgcm: aesgcm}, nil
}

func (a *EncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return a.aesgcm.Seal(nonce[:], nonce[:], plaintext, nil), nil
}

func (a *EncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short: must include nonce and encrypted data")
	}

	plaintext, err := a.aesgcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
