// Package stash is the in-memory state machine sitting on top of
// internal/store: it holds the derived key, salt, and decrypted secrets
// only while unlocked, and re-encrypts on every mutation.
package stash

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mbrt/mb-stash-go/internal/crypto"
	"github.com/mbrt/mb-stash-go/internal/store"
)

// Error codes, matching original_source's StashError.code values one for
// one so CLI/daemon error reporting needs no translation table.
const (
	CodeAlreadyInitialized = "already_initialized"
	CodeNotInitialized     = "not_initialized"
	CodeEmptyPassword      = "empty_password"
	CodeWrongPassword      = "wrong_password"
	CodeCorrupted          = "corrupted"
	CodeLocked             = "locked"
	CodeEmptyKey           = "empty_key"
	CodeEmptyValue         = "empty_value"
	CodeNotFound           = "not_found"
	CodeDaemonRunning      = "daemon_running"
)

// Error is an application-level error carrying a machine-readable code
// alongside the human-readable message, so callers (CLI, daemon dispatch)
// can branch on Code without parsing Error's text.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// state is a tagged union: a Stash is either locked or unlocked, never
// "partially" either. Keeping this as an interface behind a single field
// makes "key, salt and secrets are all present or all absent" a
// compile-time fact instead of a runtime nil-check across three fields.
type state interface {
	isState()
}

type lockedState struct{}

func (lockedState) isState() {}

type unlockedState struct {
	key     []byte
	salt    []byte
	secrets map[string]string
}

func (unlockedState) isState() {}

// DaemonLiveChecker reports whether a daemon instance is currently running
// for this stash, locked or not, so ChangePassword can refuse to run
// underneath it (see
// SPEC_FULL.md's resolution of the change_password/daemon race).
type DaemonLiveChecker func() bool

// Stash is the high-level API for stash operations. Each method holds an
// internal mutex for its duration, so single calls are safe from multiple
// goroutines; a sequence of calls is not atomic, and the daemon serializes
// dispatch through its own mutex for this reason.
type Stash struct {
	mu        sync.Mutex
	path      string
	state     state
	isRunning DaemonLiveChecker
}

// New returns a Stash backed by the encrypted envelope at path. isRunning
// may be nil, in which case ChangePassword never refuses on that basis
// (used by tests and by any caller that isn't daemon-adjacent).
func New(path string, isRunning DaemonLiveChecker) *Stash {
	return &Stash{path: path, state: lockedState{}, isRunning: isRunning}
}

// StoreExists reports whether the encrypted store file exists on disk.
func (s *Stash) StoreExists() bool {
	return store.Exists(s.path)
}

// IsUnlocked reports whether the stash currently holds a derived key and
// decrypted secrets in memory.
func (s *Stash) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.(unlockedState)
	return ok
}

// Init creates a new encrypted store with an empty secret map.
func (s *Stash) Init(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StoreExists() {
		return newError(CodeAlreadyInitialized, "Stash already exists.")
	}
	if password == "" {
		return newError(CodeEmptyPassword, "Password cannot be empty.")
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return fmt.Errorf("stash: generate salt: %w", err)
	}
	params := crypto.DefaultParams()
	key, err := crypto.DeriveKey(password, salt, params)
	if err != nil {
		return fmt.Errorf("stash: derive key: %w", err)
	}

	nonce, ciphertext, err := crypto.Encrypt([]byte("{}"), key)
	if err != nil {
		return fmt.Errorf("stash: encrypt: %w", err)
	}
	return store.Write(s.path, store.Envelope{Salt: salt, Params: params, Nonce: nonce, Ciphertext: ciphertext})
}

// ChangePassword re-encrypts the store under a new password, preserving
// all existing secrets. It refuses while a daemon instance is live,
// because the daemon's cached key/salt would stomp this re-encryption on
// its next mutation.
func (s *Stash) ChangePassword(oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning != nil && s.isRunning() {
		return newError(CodeDaemonRunning, "Stop the daemon before changing the password.")
	}
	if err := s.requireStore(); err != nil {
		return err
	}
	if newPassword == "" {
		return newError(CodeEmptyPassword, "New password cannot be empty.")
	}

	env, err := store.Read(s.path)
	if err != nil {
		return s.wrapReadError(err)
	}
	oldKey, err := crypto.DeriveKey(oldPassword, env.Salt, env.Params)
	if err != nil {
		return fmt.Errorf("stash: derive key: %w", err)
	}
	plaintext, err := crypto.Decrypt(env.Ciphertext, oldKey, env.Nonce)
	if err != nil {
		return newError(CodeWrongPassword, "Wrong password.")
	}

	newSalt, err := crypto.NewSalt()
	if err != nil {
		return fmt.Errorf("stash: generate salt: %w", err)
	}
	newParams := crypto.DefaultParams()
	newKey, err := crypto.DeriveKey(newPassword, newSalt, newParams)
	if err != nil {
		return fmt.Errorf("stash: derive key: %w", err)
	}
	nonce, ciphertext, err := crypto.Encrypt(plaintext, newKey)
	if err != nil {
		return fmt.Errorf("stash: encrypt: %w", err)
	}

	if err := store.Write(s.path, store.Envelope{Salt: newSalt, Params: newParams, Nonce: nonce, Ciphertext: ciphertext}); err != nil {
		return err
	}

	// If the stash was unlocked under the old password, keep it unlocked
	// under the new one rather than silently locking.
	if _, ok := s.state.(unlockedState); ok {
		var secrets map[string]string
		if err := json.Unmarshal(plaintext, &secrets); err == nil {
			s.state = unlockedState{key: newKey, salt: newSalt, secrets: secrets}
		}
	}
	return nil
}

// Unlock derives the key from password, decrypts the store, and holds the
// secrets in memory until Lock is called.
func (s *Stash) Unlock(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireStore(); err != nil {
		return err
	}

	env, err := store.Read(s.path)
	if err != nil {
		return s.wrapReadError(err)
	}
	key, err := crypto.DeriveKey(password, env.Salt, env.Params)
	if err != nil {
		return fmt.Errorf("stash: derive key: %w", err)
	}
	plaintext, err := crypto.Decrypt(env.Ciphertext, key, env.Nonce)
	if err != nil {
		return newError(CodeWrongPassword, "Wrong password.")
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return newError(CodeCorrupted, "Decrypted store is not valid JSON - store may be corrupted.")
	}

	s.state = unlockedState{key: key, salt: env.Salt, secrets: secrets}
	return nil
}

// Lock zeroes the derived key and salt bytes, empties the secrets map, and
// returns the stash to the locked state.
func (s *Stash) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.state.(unlockedState); ok {
		clear(u.key)
		clear(u.salt)
		clear(u.secrets)
	}
	s.state = lockedState{}
}

// Get returns the value for key, or CodeNotFound if it isn't present.
func (s *Stash) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.requireUnlocked()
	if err != nil {
		return "", err
	}
	value, ok := secrets[key]
	if !ok {
		return "", newError(CodeNotFound, "Key %q not found.", key)
	}
	return value, nil
}

// ListKeys returns stored keys in ascending order, optionally filtered to
// those containing filter as a substring.
func (s *Stash) ListKeys(filter string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.requireUnlocked()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(secrets))
	for k := range secrets {
		if filter == "" || strings.Contains(k, filter) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Add stores or updates a secret and re-encrypts the store.
func (s *Stash) Add(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		return newError(CodeEmptyKey, "Key cannot be empty.")
	}
	if value == "" {
		return newError(CodeEmptyValue, "Value cannot be empty.")
	}
	secrets, err := s.requireUnlocked()
	if err != nil {
		return err
	}
	secrets[key] = value
	return s.persist()
}

// Delete removes a secret and re-encrypts the store. It reports whether
// the key existed.
func (s *Stash) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.requireUnlocked()
	if err != nil {
		return false, err
	}
	if _, ok := secrets[key]; !ok {
		return false, nil
	}
	delete(secrets, key)
	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// Rename moves a secret from key to newKey, overwriting newKey if it
// already holds a value (the resolved Open Question on destination
// collisions). It returns CodeNotFound if key is absent.
func (s *Stash) Rename(key, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.requireUnlocked()
	if err != nil {
		return err
	}
	value, ok := secrets[key]
	if !ok {
		return newError(CodeNotFound, "Key %q not found.", key)
	}
	secrets[newKey] = value
	delete(secrets, key)
	return s.persist()
}

func (s *Stash) requireStore() error {
	if !s.StoreExists() {
		return newError(CodeNotInitialized, "Stash is not initialized. Run 'stash init' first.")
	}
	return nil
}

func (s *Stash) requireUnlocked() (map[string]string, error) {
	u, ok := s.state.(unlockedState)
	if !ok {
		return nil, newError(CodeLocked, "Stash is locked. Unlock it first.")
	}
	return u.secrets, nil
}

func (s *Stash) persist() error {
	u, ok := s.state.(unlockedState)
	if !ok {
		return newError(CodeLocked, "Stash is locked. Unlock it first.")
	}
	plaintext, err := json.Marshal(u.secrets)
	if err != nil {
		return fmt.Errorf("stash: marshal secrets: %w", err)
	}
	nonce, ciphertext, err := crypto.Encrypt(plaintext, u.key)
	if err != nil {
		return fmt.Errorf("stash: encrypt: %w", err)
	}
	return store.Write(s.path, store.Envelope{Salt: u.salt, Params: crypto.DefaultParams(), Nonce: nonce, Ciphertext: ciphertext})
}

func (s *Stash) wrapReadError(err error) error {
	if err == nil {
		return nil
	}
	return newError(CodeCorrupted, "Stash store is corrupted: %v", err)
}

