package credential

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var errShortCiphertext = errors.New("template ciphertext too short")

// TemplateCipher seals biometric templates at rest with XChaCha20-Poly1305.
// Sealed form is nonce || ciphertext. A nil cipher stores templates as-is.
type TemplateCipher struct {
	key []byte
}

// NewTemplateCipher builds a cipher from a 32-byte key.
func NewTemplateCipher(key []byte) (*TemplateCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("template key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &TemplateCipher{key: append([]byte(nil), key...)}, nil
}

// Seal encrypts a template for storage.
func (c *TemplateCipher) Seal(template []byte) ([]byte, error) {
	if c == nil {
		return append([]byte(nil), template...), nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(template)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, template, nil), nil
}

// Open decrypts a stored template.
func (c *TemplateCipher) Open(sealed []byte) ([]byte, error) {
	if c == nil {
		return sealed, nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errShortCiphertext
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, nil)
}
