// Package crypt encrypts stored scans with a key derived from a passphrase.
// The output is the GCM nonce followed by the sealed data.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 4096
	keyLength     = 32
)

var (
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")
	// ErrAuthentication means the data was altered or the passphrase is wrong
	ErrAuthentication = errors.New("message authentication failed")
)

type Crypt struct {
	aead cipher.AEAD
}

func New(passphrase string) (*Crypt, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	block, err := aes.NewCipher(pbkdf2.Key([]byte(passphrase), nil, keyIterations, keyLength, sha1.New))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Crypt{aead: aead}, nil
}

// Encrypt reads input until EOF and returns nonce+ciphertext
func (c *Crypt) Encrypt(input io.Reader) (io.ReadSeeker, error) {
	plainText, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plainText)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return bytes.NewReader(c.aead.Seal(nonce, nonce, plainText, nil)), nil
}

func (c *Crypt) Decrypt(input io.Reader) (io.ReadSeeker, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(input, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	cipherText, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	plainText, err := c.aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return bytes.NewReader(plainText), nil
}
