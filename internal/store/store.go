// Package store handles the on-disk encrypted envelope: reading and
// atomically writing the JSON document that holds the KDF parameters and
// the AES-256-GCM ciphertext. It knows nothing about passwords or secret
// values — that's internal/stash's job.
package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mbrt/mb-stash-go/internal/crypto"
)

const (
	kdfAlgorithm        = "scrypt"
	encryptionAlgorithm = "aes-256-gcm"

	tmpSuffix = ".tmp"
)

// ErrCorrupted is returned when the envelope file exists but cannot be
// parsed as a valid store document.
var ErrCorrupted = errors.New("store: corrupted envelope")

// Envelope is the decoded contents of the encrypted store file.
type Envelope struct {
	Salt       []byte
	Params     crypto.Params
	Nonce      []byte
	Ciphertext []byte
}

// kdfSection and encryptionSection mirror the on-disk JSON shape exactly,
// matching original_source's stash.py._write_store layout: a "kdf" object
// and an "encryption" object, both base64-encoding their binary fields.
type kdfSection struct {
	Algorithm string `json:"algorithm"`
	Salt      string `json:"salt"`
	N         int    `json:"n"`
	R         int    `json:"r"`
	P         int    `json:"p"`
}

type encryptionSection struct {
	Algorithm  string `json:"algorithm"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type document struct {
	KDF        kdfSection        `json:"kdf"`
	Encryption encryptionSection `json:"encryption"`
}

// Exists reports whether a store envelope is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Read loads and decodes the envelope at path. It returns ErrCorrupted if
// the file is not valid JSON, is missing a required field, or its binary
// fields are not valid base64 — it never attempts decryption.
func Read(path string) (Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Envelope{}, fmt.Errorf("store: read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	salt, err := base64.StdEncoding.DecodeString(doc.KDF.Salt)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: salt: %v", ErrCorrupted, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(doc.Encryption.Nonce)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: nonce: %v", ErrCorrupted, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(doc.Encryption.Ciphertext)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: ciphertext: %v", ErrCorrupted, err)
	}
	if doc.KDF.N == 0 || doc.KDF.R == 0 || doc.KDF.P == 0 {
		return Envelope{}, fmt.Errorf("%w: missing kdf parameters", ErrCorrupted)
	}
	if doc.KDF.Algorithm == "" || doc.Encryption.Algorithm == "" ||
		len(salt) == 0 || len(nonce) == 0 || len(ciphertext) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing required field", ErrCorrupted)
	}

	return Envelope{
		Salt:       salt,
		Params:     crypto.Params{N: doc.KDF.N, R: doc.KDF.R, P: doc.KDF.P},
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Write atomically persists env to path: the document is rendered, written
// to a sibling ".tmp" file with explicit owner-only permissions (bypassing
// umask, same technique as original_source's _write_store), then renamed
// over the target so a reader never observes a partially written file.
func Write(path string, env Envelope) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("store: create data dir: %w", err)
	}

	doc := document{
		KDF: kdfSection{
			Algorithm: kdfAlgorithm,
			Salt:      base64.StdEncoding.EncodeToString(env.Salt),
			N:         env.Params.N,
			R:         env.Params.R,
			P:         env.Params.P,
		},
		Encryption: encryptionSection{
			Algorithm:  encryptionAlgorithm,
			Nonce:      base64.StdEncoding.EncodeToString(env.Nonce),
			Ciphertext: base64.StdEncoding.EncodeToString(env.Ciphertext),
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal envelope: %w", err)
	}
	data = append(data, '\n')

	tmpPath := path + tmpSuffix
	fd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("store: open temp file: %w", err)
	}
	if _, err := fd.Write(data); err != nil {
		fd.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}
