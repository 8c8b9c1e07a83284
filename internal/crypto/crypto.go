// Package crypto provides the stash's cryptographic primitives: scrypt key
// derivation and AES-256-GCM authenticated encryption. Operations here are
// pure — no state is retained between calls.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// SaltLength is the size in bytes of a freshly generated KDF salt.
	SaltLength = 16
	// KeyLength is the size in bytes of a derived AES-256 key.
	KeyLength = 32
	// NonceLength is the size in bytes of an AES-GCM nonce.
	NonceLength = 12

	// scrypt KDF parameters, fixed per the stash's on-disk format.
	scryptN = 1 << 20 // 1_048_576
	scryptR = 8
	scryptP = 1
)

// ErrAuthentication is returned by Decrypt when the key or nonce is wrong,
// or the ciphertext has been tampered with.
var ErrAuthentication = errors.New("crypto: authentication failed")

// Params are the scrypt parameters persisted alongside the salt in the
// store envelope, so a store written today can still be opened if the
// defaults above ever change.
type Params struct {
	N int
	R int
	P int
}

// DefaultParams returns the scrypt parameters used for every new store.
func DefaultParams() Params {
	return Params{N: scryptN, R: scryptR, P: scryptP}
}

// NewSalt generates a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveKey derives a 32-byte AES key from a password and salt using
// scrypt, with the parameters in p.
func DeriveKey(password string, salt []byte, p Params) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, p.N, p.R, p.P, KeyLength)
}

// Encrypt encrypts plaintext with AES-256-GCM under key, using a freshly
// random nonce. The returned ciphertext includes the GCM authentication tag.
func Encrypt(plaintext, key []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// Decrypt decrypts ciphertext with AES-256-GCM under key and nonce.
// It returns ErrAuthentication on a wrong key, or a tampered nonce or
// ciphertext.
func Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
