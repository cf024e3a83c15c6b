package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// DeriveKeyFromRuntimeID derives an AES-256 key from a runtime's
// identity, so a daemon can re-derive the same at-rest key across
// restarts without storing it separately.
func DeriveKeyFromRuntimeID(runtimeID string) []byte {
	hash := sha256.Sum256([]byte(runtimeID))
	return hash[:]
}

// runtimeEncryptionKey protects the CA's root private key at rest; it is
// set once during daemon startup via SetEncryptionKey.
var runtimeEncryptionKey []byte

// SetEncryptionKey installs the 32-byte AES-256 key used by Encrypt and
// Decrypt. Must be called once before CertAuthority.LoadFromStore or
// SaveToStore.
func SetEncryptionKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	runtimeEncryptionKey = key
	return nil
}

// Encrypt seals plaintext with the runtime encryption key using
// AES-256-GCM, prepending the nonce to the returned ciphertext.
func Encrypt(plaintext []byte) ([]byte, error) {
	if len(runtimeEncryptionKey) == 0 {
		return nil, fmt.Errorf("runtime encryption key not set")
	}

	block, err := aes.NewCipher(runtimeEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func Decrypt(ciphertext []byte) ([]byte, error) {
	if len(runtimeEncryptionKey) == 0 {
		return nil, fmt.Errorf("runtime encryption key not set")
	}

	block, err := aes.NewCipher(runtimeEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
