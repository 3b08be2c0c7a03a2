package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// SecretCipher encrypts secret settings fields at rest using AES-GCM
type SecretCipher struct {
	key []byte
}

// NewSecretCipher derives a 256-bit key from the given passphrase.
// An empty passphrase yields a random key, so secrets stored with it do not survive a restart.
func NewSecretCipher(passphrase string) *SecretCipher {
	if passphrase == "" {
		passphrase = uuid.New().String()
	}
	sum := sha256.Sum256([]byte(passphrase))
	return &SecretCipher{key: sum[:]}
}

// Encrypt returns base64(nonce || ciphertext)
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (c *SecretCipher) Decrypt(encoded string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(combined) < nonceSize {
		return "", errors.New("secret ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, combined[:nonceSize], combined[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

func (c *SecretCipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
