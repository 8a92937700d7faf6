package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// FormatGCM is the 8-byte magic prefix of an encrypted envelope.
const FormatGCM = "GCM3NCR0"

const (
	saltLen    = 16
	nonceLen   = 12
	kdfRounds  = 100000
	keyLen     = 32
	magicLen   = 8
	gcmTagSize = 16
)

// ErrNotEncrypted is returned by Decrypt for data without a known envelope.
var ErrNotEncrypted = errors.New("data is not an encrypted envelope")

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfRounds, keyLen, sha256.New)
}

// Encrypt seals data with AES-256-GCM under a key derived from password.
// Layout: magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func Encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	out := make([]byte, 0, magicLen+saltLen+nonceLen+len(data)+gcmTagSize)
	out = append(out, FormatGCM...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Decrypt opens an envelope written by Encrypt.
func Decrypt(data []byte, password string) ([]byte, error) {
	if !IsEncrypted(data) {
		return nil, ErrNotEncrypted
	}
	if len(data) < magicLen+saltLen+nonceLen+gcmTagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	salt := data[magicLen : magicLen+saltLen]
	nonce := data[magicLen+saltLen : magicLen+saltLen+nonceLen]
	sealed := data[magicLen+saltLen+nonceLen:]

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}

// IsEncrypted reports whether data starts with the envelope magic.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, []byte(FormatGCM))
}

// openStored returns the plain PDF for bytes read back from an archive.
func openStored(data []byte, password string) ([]byte, error) {
	if !IsEncrypted(data) {
		return data, nil
	}
	if password == "" {
		return nil, errors.New("archived portfolio is encrypted and no password is configured")
	}
	return Decrypt(data, password)
}
