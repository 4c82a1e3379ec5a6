package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks values written by Seal; anything else is read back as plain text.
const sealedPrefix = "enc:v1:"

var ErrNoKey = errors.New("value is encrypted but no secret key is configured")

// TokenCipher seals short secrets such as page access tokens with AES-256-GCM.
// A nil *TokenCipher stores values unchanged.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher derives the AES key from secret. An empty secret returns nil.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, nil
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{aead: gcm}, nil
}

func IsSealed(v string) bool {
	return strings.HasPrefix(v, sealedPrefix)
}

func (c *TokenCipher) Seal(plain string) (string, error) {
	if c == nil || plain == "" || IsSealed(plain) {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is so
// rows written before a key was configured keep working.
func (c *TokenCipher) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	if c == nil {
		return "", ErrNoKey
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("malformed sealed value: %w", err)
	}
	n := c.aead.NonceSize()
	if len(data) < n {
		return "", errors.New("malformed sealed value: too short")
	}
	plain, err := c.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}
