package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

var ErrDisabled = errors.New("cipher: encryption key not configured")

// Cipher encrypts and decrypts configuration secrets.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

var _ Cipher = (*Service)(nil)

// Service is an AES-256-GCM Cipher. Ciphertexts are base64 with the nonce prepended.
// A Service built without a key refuses every operation with ErrDisabled.
type Service struct {
	aead stdcipher.AEAD
}

// NewService builds a Service from a 64-character hex key. An empty key yields
// a disabled Service.
func NewService(hexKey string, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		logger.Warn("config encryption disabled: CIPHER_KEY is not set")
		return &Service{}, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("CIPHER_KEY is not valid hex: %w", err)
	}
	return NewServiceFromKey(key)
}

// NewServiceFromKey builds a Service from a raw 32-byte key.
func NewServiceFromKey(key []byte) (*Service, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("cipher: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: create block: %w", err)
	}
	aead, err := stdcipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: create GCM: %w", err)
	}

	return &Service{aead: aead}, nil
}

func (s *Service) Enabled() bool {
	return s != nil && s.aead != nil
}

func (s *Service) Encrypt(plaintext string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cipher: generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Service) Decrypt(ciphertext string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("cipher: base64 decode: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("cipher: ciphertext too short")
	}
	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("cipher: decrypt: %w", err)
	}
	return string(plaintext), nil
}

// DecryptOptional decrypts ciphertext when present. A nil or blank ciphertext
// returns ("", false, nil) without touching c.
func DecryptOptional(c Cipher, ciphertext *string) (string, bool, error) {
	if ciphertext == nil || strings.TrimSpace(*ciphertext) == "" {
		return "", false, nil
	}
	if c == nil {
		return "", false, ErrDisabled
	}
	plaintext, err := c.Decrypt(*ciphertext)
	if err != nil {
		return "", false, err
	}
	return plaintext, true, nil
}
