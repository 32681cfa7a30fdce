package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoCredential means no credential record has been persisted yet.
var ErrNoCredential = errors.New("no stored credential")

// Credential is the persisted delegated-identity record.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
	ChannelID    string    `json:"channel_id,omitempty"`
	ChannelTitle string    `json:"channel_title,omitempty"`
}

// Token converts the record into an oauth2 token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// Valid reports whether the access token is still usable.
func (c Credential) Valid() bool {
	return c.AccessToken != "" && time.Now().Before(c.Expiry)
}

// FileStore keeps the credential and the one-time anti-forgery state token
// in two owner-only files. One record each; the store is shared by every
// run in the process.
type FileStore struct {
	credentialPath string
	statePath      string
}

// NewFileStore wires the two storage paths.
func NewFileStore(credentialPath, statePath string) *FileStore {
	return &FileStore{credentialPath: credentialPath, statePath: statePath}
}

// LoadCredential reads the persisted credential record.
func (s *FileStore) LoadCredential() (Credential, error) {
	raw, err := os.ReadFile(s.credentialPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Credential{}, ErrNoCredential
		}
		return Credential{}, fmt.Errorf("read credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, fmt.Errorf("parse credential: %w", err)
	}
	return cred, nil
}

// SaveCredential persists the record with owner-only permissions.
func (s *FileStore) SaveCredential(cred Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := os.WriteFile(s.credentialPath, raw, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// DeleteCredential removes the persisted record.
func (s *FileStore) DeleteCredential() error {
	if err := os.Remove(s.credentialPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// SaveState stores the anti-forgery token for the pending authorization.
func (s *FileStore) SaveState(state string) error {
	if err := os.WriteFile(s.statePath, []byte(state), 0o600); err != nil {
		return fmt.Errorf("write oauth state: %w", err)
	}
	return nil
}

// ConsumeState verifies the callback state against the stored token. The
// token is single-use: it is deleted before the comparison result is
// returned.
func (s *FileStore) ConsumeState(state string) (bool, error) {
	raw, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read oauth state: %w", err)
	}

	if err := os.Remove(s.statePath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("consume oauth state: %w", err)
	}

	return state != "" && state == string(raw), nil
}
