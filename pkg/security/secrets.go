package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// CredentialsManager handles encryption and decryption of account
// credentials at rest.
type CredentialsManager struct {
	encryptionKey []byte // 32 bytes for AES-256
}

// NewCredentialsManager creates a new manager with the given encryption key.
// The key should be 32 bytes for AES-256-GCM.
func NewCredentialsManager(key []byte) (*CredentialsManager, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}

	return &CredentialsManager{
		encryptionKey: key,
	}, nil
}

// NewCredentialsManagerFromPassword creates a manager using a password. The
// password is hashed with SHA-256 to derive the encryption key.
func NewCredentialsManagerFromPassword(password string) (*CredentialsManager, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	hash := sha256.Sum256([]byte(password))
	return NewCredentialsManager(hash[:])
}

// EncryptCredentials encrypts plaintext credential data using AES-256-GCM.
// Returns encrypted data with nonce prepended.
func (cm *CredentialsManager) EncryptCredentials(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}

	block, err := aes.NewCipher(cm.encryptionKey)
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

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

// DecryptCredentials decrypts data encrypted with EncryptCredentials.
// Expects nonce to be prepended to ciphertext.
func (cm *CredentialsManager) DecryptCredentials(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("cannot decrypt empty data")
	}

	block, err := aes.NewCipher(cm.encryptionKey)
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

// DeriveKeyFromSystemID derives an encryption key from a system's id. This
// gives every system's accounts a distinct, reproducible encryption key
// without storing the key itself anywhere.
func DeriveKeyFromSystemID(systemID string) []byte {
	hash := sha256.Sum256([]byte(systemID))
	return hash[:]
}
