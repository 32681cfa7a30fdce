package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"commentguard/internal/domain"
	"commentguard/internal/ports"
)

// YouTube moderation requires the force-ssl scope.
var defaultScopes = []string{"https://www.googleapis.com/auth/youtube.force-ssl"}

var (
	// ErrNotAuthenticated means no credential exists; the operator has to
	// complete the authorization flow first.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrCredentialInvalid means the credential expired and cannot be
	// renewed (no refresh capability, or the refresh was rejected).
	ErrCredentialInvalid = errors.New("credential invalid")
	// ErrStateMismatch means the callback carried an unknown or reused
	// anti-forgery token.
	ErrStateMismatch = errors.New("oauth state mismatch")
)

// IdentityResolver looks up the channel behind a token, used right after
// the code exchange. Supplied by the platform adapter so this package
// stays independent of the API client.
type IdentityResolver func(ctx context.Context, src oauth2.TokenSource) (domain.Identity, error)

// Manager owns the lifecycle of the single delegated credential: load,
// validate, refresh, persist, invalidate, logout.
//
// Every check re-reads the persisted record so it always reflects the
// latest durable state, and the whole load-refresh-persist sequence runs
// under one mutex so concurrent runs cannot interleave refreshes.
type Manager struct {
	mu      sync.Mutex
	cfg     *oauth2.Config
	store   *FileStore
	resolve IdentityResolver
	logger  *slog.Logger
}

var _ ports.CredentialGate = (*Manager)(nil)

// Config carries the identity-provider client settings. Endpoint is
// overridable for tests and defaults to Google's.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     oauth2.Endpoint
}

// NewManager builds the credential manager.
func NewManager(cfg Config, store *FileStore, resolve IdentityResolver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &Manager{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       defaultScopes,
			Endpoint:     endpoint,
		},
		store:   store,
		resolve: resolve,
		logger:  logger,
	}
}

// EnsureValid confirms a usable credential exists, refreshing and
// persisting it when expired. Returns ErrNotAuthenticated when no record
// exists and ErrCredentialInvalid when renewal is impossible.
func (m *Manager) EnsureValid(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.ensureValidLocked(ctx, false)
	return err
}

// ForceRefresh discards the current access token and renews it from the
// refresh token, regardless of the recorded expiry. Used when the
// platform rejects a token the store still considers valid.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.ensureValidLocked(ctx, true)
	return err
}

func (m *Manager) ensureValidLocked(ctx context.Context, force bool) (Credential, error) {
	cred, err := m.store.LoadCredential()
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return Credential{}, ErrNotAuthenticated
		}
		return Credential{}, err
	}

	if cred.Valid() && !force {
		return cred, nil
	}

	if cred.RefreshToken == "" {
		return Credential{}, fmt.Errorf("%w: expired without refresh capability", ErrCredentialInvalid)
	}

	stale := cred.Token()
	if force {
		stale.Expiry = time.Now().Add(-time.Minute)
	}

	fresh, err := m.cfg.TokenSource(ctx, stale).Token()
	if err != nil {
		return Credential{}, fmt.Errorf("%w: refresh rejected: %v", ErrCredentialInvalid, err)
	}

	cred.AccessToken = fresh.AccessToken
	cred.TokenType = fresh.TokenType
	cred.Expiry = fresh.Expiry
	if fresh.RefreshToken != "" {
		cred.RefreshToken = fresh.RefreshToken
	}

	if err := m.store.SaveCredential(cred); err != nil {
		return Credential{}, err
	}

	m.logger.Info("credential refreshed", "expiry", cred.Expiry)
	return cred, nil
}

// AuthorizationURL issues the provider consent URL together with a fresh
// single-use anti-forgery token. Offline access and forced consent keep a
// refresh token in the grant.
func (m *Manager) AuthorizationURL() (string, error) {
	state, err := randomState()
	if err != nil {
		return "", err
	}
	if err := m.store.SaveState(state); err != nil {
		return "", err
	}

	url := m.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
	return url, nil
}

// ExchangeAuthorizationCode validates the anti-forgery token, exchanges
// the code for a credential, persists it and returns the authenticated
// channel identity.
func (m *Manager) ExchangeAuthorizationCode(ctx context.Context, code, state string) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := m.store.ConsumeState(state)
	if err != nil {
		return domain.Identity{}, err
	}
	if !ok {
		return domain.Identity{}, ErrStateMismatch
	}

	token, err := m.cfg.Exchange(ctx, code)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	cred := Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		Scopes:       m.cfg.Scopes,
	}

	var identity domain.Identity
	if m.resolve != nil {
		identity, err = m.resolve(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			m.logger.Warn("identity lookup failed after exchange", "error", err)
		} else {
			cred.ChannelID = identity.ChannelID
			cred.ChannelTitle = identity.ChannelTitle
		}
	}

	if err := m.store.SaveCredential(cred); err != nil {
		return domain.Identity{}, err
	}

	m.logger.Info("authorization code exchanged", "channel_id", identity.ChannelID)
	return identity, nil
}

// Identity returns the channel bound to the current valid credential.
func (m *Manager) Identity(ctx context.Context) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.ensureValidLocked(ctx, false)
	if err != nil {
		return domain.Identity{}, err
	}

	if cred.ChannelID != "" {
		return domain.Identity{ChannelID: cred.ChannelID, ChannelTitle: cred.ChannelTitle}, nil
	}

	if m.resolve == nil {
		return domain.Identity{}, nil
	}

	identity, err := m.resolve(ctx, oauth2.StaticTokenSource(cred.Token()))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	cred.ChannelID = identity.ChannelID
	cred.ChannelTitle = identity.ChannelTitle
	if err := m.store.SaveCredential(cred); err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}

// Logout clears the persisted credential; the next state is
// unauthenticated.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.DeleteCredential()
}

// Token hands out the current credential for one API call, going through
// the same validate-refresh-persist path as EnsureValid. The caller's
// context governs any refresh performed on the way.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.ensureValidLocked(ctx, false)
	if err != nil {
		return nil, err
	}
	return cred.Token(), nil
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
