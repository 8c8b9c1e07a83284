package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mbrt/mb-stash-go/internal/crypto"
)

func testEnvelope(t *testing.T) Envelope {
	t.Helper()
	salt, err := crypto.NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	key, err := crypto.DeriveKey("hunter2", salt, crypto.DefaultParams())
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	nonce, ciphertext, err := crypto.Encrypt([]byte(`{"a":"b"}`), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return Envelope{Salt: salt, Params: crypto.DefaultParams(), Nonce: nonce, Ciphertext: ciphertext}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stash.json")
	want := testEnvelope(t)

	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !Exists(path) {
		t.Fatal("Exists should report true after Write")
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got.Salt) != string(want.Salt) ||
		string(got.Nonce) != string(want.Nonce) ||
		string(got.Ciphertext) != string(want.Ciphertext) ||
		got.Params != want.Params {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestWritePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stash.json")
	if err := Write(path, testEnvelope(t)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	if _, err := os.Stat(path + tmpSuffix); !os.IsNotExist(err) {
		t.Errorf("temp file should not remain after a successful write, stat err = %v", err)
	}
}

func TestWriteNoPartialFileOnRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stash.json")
	first := testEnvelope(t)
	second := testEnvelope(t)

	if err := Write(path, first); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	if err := Write(path, second); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got.Salt) != string(second.Salt) {
		t.Error("second write should fully replace the first")
	}
}

func TestReadCorruptedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stash.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Read(path); err == nil {
		t.Fatal("expected an error reading corrupted JSON")
	}
}

func TestReadCorruptedBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stash.json")
	raw := `{"kdf":{"algorithm":"scrypt","salt":"not-base64!!","n":1,"r":8,"p":1},` +
		`"encryption":{"algorithm":"aes-256-gcm","nonce":"","ciphertext":""}}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Read(path); err == nil {
		t.Fatal("expected an error reading envelope with invalid base64")
	}
}

func TestExistsFalseForMissingFile(t *testing.T) {
	dir := t.TempDir()
	if Exists(filepath.Join(dir, "missing.json")) {
		t.Error("Exists should report false for a missing file")
	}
}
