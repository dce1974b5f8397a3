package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionSecretEnv = "CAMPUSWATCH_ENCRYPTION_SECRET"
	encryptionSaltEnv   = "CAMPUSWATCH_ENCRYPTION_SALT"
	defaultSalt         = "campuswatch-at-rest-v1"
	keyIterations       = 100000
	keyLength           = 32
	nonceSize           = 12
)

// encryptor provides optional at-rest encryption of phone numbers. When no
// secret is configured both Encrypt and Decrypt pass values through
// unchanged, so development setups work without key material.
type encryptor struct {
	gcm     cipher.AEAD
	hmacKey []byte
}

func NewEncryptor() (*encryptor, error) {
	secret := os.Getenv(encryptionSecretEnv)
	if secret == "" {
		return &encryptor{}, nil
	}

	salt := os.Getenv(encryptionSaltEnv)
	if salt == "" {
		salt = defaultSalt
	}

	key := pbkdf2.Key([]byte(secret), []byte(salt), keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm, hmacKey: key}, nil
}

// Encrypt encrypts a value for storage. Pass-through when disabled.
func (e *encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// Decrypt reverses Encrypt. Pass-through when disabled.
func (e *encryptor) Decrypt(stored string) (string, error) {
	if stored == "" || e.gcm == nil {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// LookupHash produces a deterministic keyed hash of a value so encrypted
// columns stay searchable. Falls back to a plain SHA-256 when encryption is
// disabled so the lookup column is always populated.
func (e *encryptor) LookupHash(value string) string {
	if e.hmacKey == nil {
		sum := sha256.Sum256([]byte(value))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, e.hmacKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
