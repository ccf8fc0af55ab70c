// Package oauth provides bearer-token utilities for reelcast: the token type,
// on-disk storage and the refresh_token grant.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultProvider is the storage key for the feed service token.
const DefaultProvider = "reelcast"

// expiryDelta refreshes tokens slightly before they actually expire.
const expiryDelta = 10 * time.Second

var (
	ErrTokenNotFound = errors.New("token not found")

	// ErrInvalidGrant means the refresh token was rejected and the user must
	// sign in again.
	ErrInvalidGrant = errors.New("refresh token rejected")
)

type Config struct {
	ClientID     string
	ClientSecret string // #nosec G117 - JSON field for OAuth config, not an exposed secret
	TokenURL     string
}

// ServiceConfig returns the token endpoint config of a reelcast feed service.
func ServiceConfig(baseURL, clientID string) Config {
	return Config{
		ClientID: clientID,
		TokenURL: strings.TrimRight(baseURL, "/") + "/oauth/token",
	}
}

type Token struct {
	AccessToken  string    `json:"access_token"`  // #nosec G117 - JSON field for OAuth token, not an exposed secret
	RefreshToken string    `json:"refresh_token"` // #nosec G117 - JSON field for OAuth token, not an exposed secret
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Expired reports whether the token is past its expiry at now. Tokens without
// an expiry never expire.
func (t *Token) Expired(now time.Time) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Add(expiryDelta).Before(t.Expiry)
}

// stamp fills Expiry from ExpiresIn.
func (t *Token) stamp(now time.Time) {
	if t.ExpiresIn > 0 {
		t.Expiry = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Flow struct {
	config     Config
	httpClient HTTPClient
	now        func() time.Time
}

type FlowOption func(*Flow)

func WithHTTPClient(client HTTPClient) FlowOption {
	return func(f *Flow) { f.httpClient = client }
}

func NewFlow(config Config, opts ...FlowOption) *Flow {
	f := &Flow{config: config, httpClient: http.DefaultClient, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RefreshAccessToken exchanges a refresh token for a new access token. When
// the response omits a refresh token the old one is kept.
func (f *Flow) RefreshAccessToken(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token: %w", ErrInvalidGrant)
	}

	data := url.Values{}
	data.Set("refresh_token", refreshToken)
	data.Set("grant_type", "refresh_token")
	if f.config.ClientID != "" {
		data.Set("client_id", f.config.ClientID)
	}
	if f.config.ClientSecret != "" {
		data.Set("client_secret", f.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &oauthErr)
		if oauthErr.Error == "invalid_grant" {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("token refresh failed: status %d", resp.StatusCode)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token refresh failed: response has no access token")
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	token.stamp(f.now())

	return &token, nil
}

type TokenStorage struct {
	dir string
}

func NewTokenStorage(dir string) *TokenStorage {
	return &TokenStorage{dir: dir}
}

func (s *TokenStorage) Save(provider string, token *Token) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	return os.WriteFile(s.path(provider), data, 0600)
}

func (s *TokenStorage) Load(provider string) (*Token, error) {
	data, err := os.ReadFile(s.path(provider)) // #nosec G304 -- provider is sanitized
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// Delete removes a stored token. Deleting a missing token is not an error.
func (s *TokenStorage) Delete(provider string) error {
	if err := os.Remove(s.path(provider)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *TokenStorage) path(provider string) string {
	cleanProvider := filepath.Base(provider)
	return filepath.Join(s.dir, cleanProvider+"_token.json")
}

// LoadFresh loads the stored token and refreshes it through flow when it has
// expired, saving the result. A token that cannot be refreshed is returned
// with the refresh error so callers can still try it.
func (s *TokenStorage) LoadFresh(ctx context.Context, provider string, flow *Flow) (*Token, error) {
	token, err := s.Load(provider)
	if err != nil {
		return nil, err
	}
	if flow == nil || !token.Expired(flow.now()) {
		return token, nil
	}

	fresh, err := flow.RefreshAccessToken(ctx, token.RefreshToken)
	if err != nil {
		return token, fmt.Errorf("failed to refresh expired token: %w", err)
	}
	if err := s.Save(provider, fresh); err != nil {
		return fresh, err
	}
	return fresh, nil
}
