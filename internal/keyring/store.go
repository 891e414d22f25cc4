// Package keyring reads and writes the two secrets usagebar cares about: the
// OAuth credentials blob the Claude Code CLI keeps in the OS keyring, and the
// manual token usagebar stores under its own service name.
package keyring

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	gokeyring "github.com/zalando/go-keyring"
)

// ErrNotFound reports that a secret is absent. Absence is a normal condition,
// not a failure: callers cache it and delete treats it as success.
var ErrNotFound = gokeyring.ErrNotFound

const (
	claudeCodeService = "Claude Code-credentials"
	manualService     = "usagebar"
	manualAccount     = "manual-token"
)

type Store struct {
	ClaudeCodeService string
	ClaudeCodeAccount string
	ManualService     string
	ManualAccount     string

	// CredentialsFile is where the Claude Code CLI writes its credentials on
	// systems without a usable keyring (~/.claude/.credentials.json). Read as
	// a fallback when the keyring item is missing.
	CredentialsFile string
}

func NewStore() *Store {
	account := ""
	if u, err := user.Current(); err == nil {
		account = u.Username
	}

	home, _ := os.UserHomeDir()

	return &Store{
		ClaudeCodeService: claudeCodeService,
		ClaudeCodeAccount: account,
		ManualService:     manualService,
		ManualAccount:     manualAccount,
		CredentialsFile:   filepath.Join(home, ".claude", ".credentials.json"),
	}
}

// ClaudeCodeToken reads the CLI's credential blob and extracts the access
// token from it. The blob itself is never written by usagebar.
func (s *Store) ClaudeCodeToken() (string, error) {
	blob, err := s.readClaudeCodeBlob()
	if err != nil {
		return "", err
	}
	return ExtractAccessToken(blob)
}

func (s *Store) readClaudeCodeBlob() (string, error) {
	blob, err := gokeyring.Get(s.ClaudeCodeService, s.ClaudeCodeAccount)
	if err == nil {
		return blob, nil
	}
	if !errors.Is(err, gokeyring.ErrNotFound) {
		// Locked keyring, missing D-Bus service, etc. Fall through to the
		// credentials file before giving up.
		if file, ferr := s.readCredentialsFile(); ferr == nil {
			return file, nil
		}
		return "", fmt.Errorf("reading keyring item %q: %w", s.ClaudeCodeService, err)
	}
	return s.readCredentialsFile()
}

func (s *Store) readCredentialsFile() (string, error) {
	data, err := os.ReadFile(s.CredentialsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading %s: %w", s.CredentialsFile, err)
	}
	return string(data), nil
}

func (s *Store) ManualToken() (string, error) {
	token, err := gokeyring.Get(s.ManualService, s.ManualAccount)
	if err != nil {
		if errors.Is(err, gokeyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading manual token: %w", err)
	}
	return token, nil
}

// SetManualToken replaces any existing manual token. The backend's Set has
// replace semantics, so no duplicate item can exist afterwards.
func (s *Store) SetManualToken(token string) error {
	if err := gokeyring.Set(s.ManualService, s.ManualAccount, token); err != nil {
		return fmt.Errorf("storing manual token: %w", err)
	}
	return nil
}

// DeleteManualToken removes the manual token. Deleting an absent token is
// not an error.
func (s *Store) DeleteManualToken() error {
	err := gokeyring.Delete(s.ManualService, s.ManualAccount)
	if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("deleting manual token: %w", err)
	}
	return nil
}
