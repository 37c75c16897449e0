// Package cipher provides the symmetric encryption used for partition files.
//
// A Provider derives a Cipher from a secret (the connection password). The
// default provider derives a 256-bit key with HKDF-SHA256 and seals data with
// XChaCha20-Poly1305. Every ciphertext carries its own random nonce, so
// encrypting the same plaintext twice yields different bytes.
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrDecrypt is returned for ciphertext that is malformed, truncated, or was
// sealed under a different key.
var ErrDecrypt = errors.New("cipher: decryption failed")

// Cipher encrypts and decrypts whole partition payloads.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Provider derives a Cipher from a secret.
type Provider interface {
	Derive(secret []byte) (Cipher, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(secret []byte) (Cipher, error)

// Derive calls f(secret).
func (f ProviderFunc) Derive(secret []byte) (Cipher, error) { return f(secret) }

const (
	formatVersion = 0x01
	keyInfo       = "vaultorm partition key v1"
)

// XChaCha is the default Provider.
type XChaCha struct{}

var _ Provider = XChaCha{}

// Derive returns a Cipher keyed by HKDF-SHA256(secret).
func (XChaCha) Derive(secret []byte) (Cipher, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("derive key: empty secret")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &aeadCipher{aead: aead}, nil
}

type aead interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

type aeadCipher struct {
	aead aead
}

// Encrypt seals plaintext as: version byte | nonce | ciphertext+tag.
func (c *aeadCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	out[0] = formatVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("encrypt: nonce: %w", err)
	}
	return c.aead.Seal(out, out[1:], plaintext, out[:1]), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *aeadCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < 1+nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: payload too short (%d bytes)", ErrDecrypt, len(ciphertext))
	}
	if ciphertext[0] != formatVersion {
		return nil, fmt.Errorf("%w: unknown format version %#x", ErrDecrypt, ciphertext[0])
	}

	nonce := ciphertext[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext[1+nonceSize:], ciphertext[:1])
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
