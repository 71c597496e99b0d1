package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"estate-portal/prometheus"
)

// User is the identity record returned by the hosted auth API.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// MetadataName extracts a display name from identity-provider metadata,
// checking the keys OAuth providers commonly populate.
func (u *User) MetadataName() string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	for _, key := range []string{"full_name", "name", "given_name"} {
		if v, ok := u.UserMetadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// TokenSet is the session material issued by the auth API.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// ExpiresAt returns the absolute access-token expiry computed from now.
func (t *TokenSet) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// AuthClient wraps the hosted backend's auth endpoints.
type AuthClient struct {
	client *Client
}

// NewAuthClient creates an auth client on top of the shared backend client.
func NewAuthClient(client *Client) *AuthClient {
	return &AuthClient{client: client}
}

// SignUp registers a new identity. Depending on backend settings the response
// carries either a full token set (auto-confirm) or just the pending user
// (email confirmation required), in which case the returned TokenSet is nil.
func (a *AuthClient) SignUp(
	ctx context.Context,
	email string,
	password string,
	metadata map[string]any,
	redirectTo string,
) (*TokenSet, *User, error) {

	defer prometheus.TrackBackendCall("auth")(time.Now())

	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	req, err := a.client.newRequest(ctx, http.MethodPost, "/auth/v1/signup", query, "", body)
	if err != nil {
		return nil, nil, err
	}

	// The two response shapes share a top level: a token set embeds the
	// user, a confirmation-pending response is the bare user object.
	var raw struct {
		TokenSet
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := a.client.doJSON(req, &raw); err != nil {
		prometheus.BackendErrorCounter.WithLabelValues("signup").Inc()
		return nil, nil, err
	}

	if raw.AccessToken != "" {
		tokens := raw.TokenSet
		return &tokens, tokens.User, nil
	}

	return nil, &User{ID: raw.ID, Email: raw.Email}, nil
}

// SignInWithPassword exchanges email/password credentials for a token set.
func (a *AuthClient) SignInWithPassword(
	ctx context.Context,
	email string,
	password string,
) (*TokenSet, error) {

	defer prometheus.TrackBackendCall("auth")(time.Now())

	query := url.Values{}
	query.Set("grant_type", "password")

	body := map[string]string{
		"email":    email,
		"password": password,
	}

	req, err := a.client.newRequest(ctx, http.MethodPost, "/auth/v1/token", query, "", body)
	if err != nil {
		return nil, err
	}

	var tokens TokenSet
	if err := a.client.doJSON(req, &tokens); err != nil {
		prometheus.BackendErrorCounter.WithLabelValues("token").Inc()
		return nil, err
	}

	return &tokens, nil
}

// RefreshSession exchanges a refresh token for a fresh token set.
func (a *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*TokenSet, error) {
	defer prometheus.TrackBackendCall("auth")(time.Now())

	query := url.Values{}
	query.Set("grant_type", "refresh_token")

	body := map[string]string{"refresh_token": refreshToken}

	req, err := a.client.newRequest(ctx, http.MethodPost, "/auth/v1/token", query, "", body)
	if err != nil {
		return nil, err
	}

	var tokens TokenSet
	if err := a.client.doJSON(req, &tokens); err != nil {
		prometheus.BackendErrorCounter.WithLabelValues("refresh").Inc()
		return nil, err
	}

	return &tokens, nil
}

// ExchangeCode completes the PKCE flow by trading the authorization code
// returned to the OAuth callback for a token set.
func (a *AuthClient) ExchangeCode(ctx context.Context, code string, codeVerifier string) (*TokenSet, error) {
	defer prometheus.TrackBackendCall("auth")(time.Now())

	query := url.Values{}
	query.Set("grant_type", "pkce")

	body := map[string]string{
		"auth_code":     code,
		"code_verifier": codeVerifier,
	}

	req, err := a.client.newRequest(ctx, http.MethodPost, "/auth/v1/token", query, "", body)
	if err != nil {
		return nil, err
	}

	var tokens TokenSet
	if err := a.client.doJSON(req, &tokens); err != nil {
		prometheus.BackendErrorCounter.WithLabelValues("pkce").Inc()
		return nil, err
	}

	return &tokens, nil
}

// AuthorizeURL builds the OAuth authorization URL the browser is redirected
// to. The backend drives the provider round-trip and returns to redirectTo
// with an authorization code.
func (a *AuthClient) AuthorizeURL(provider string, redirectTo string, codeChallenge string) string {
	query := url.Values{}
	query.Set("provider", provider)
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	if codeChallenge != "" {
		query.Set("code_challenge", codeChallenge)
		query.Set("code_challenge_method", "S256")
	}
	return a.client.BaseURL + "/auth/v1/authorize?" + query.Encode()
}

// SignOut revokes the token's session on the backend. A rejected token is
// treated as already signed out.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	defer prometheus.TrackBackendCall("auth")(time.Now())

	req, err := a.client.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil, accessToken, nil)
	if err != nil {
		return err
	}

	err = a.client.doJSON(req, nil)
	if err != nil && IsAuthFailure(err) {
		return nil
	}
	return err
}

// GetUser fetches the identity behind an access token.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	defer prometheus.TrackBackendCall("auth")(time.Now())

	req, err := a.client.newRequest(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := a.client.doJSON(req, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// ResetPasswordForEmail asks the backend to send a recovery email whose link
// lands on redirectTo with a recovery access token.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email string, redirectTo string) error {
	defer prometheus.TrackBackendCall("auth")(time.Now())

	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	body := map[string]string{"email": email}

	req, err := a.client.newRequest(ctx, http.MethodPost, "/auth/v1/recover", query, "", body)
	if err != nil {
		return err
	}

	return a.client.doJSON(req, nil)
}

// UpdateUser sets a new password for the identity behind accessToken
// (normally a recovery token from the reset link).
func (a *AuthClient) UpdateUser(ctx context.Context, accessToken string, newPassword string) error {
	defer prometheus.TrackBackendCall("auth")(time.Now())

	if accessToken == "" {
		return errors.New("backend: missing access token")
	}

	body := map[string]string{"password": newPassword}

	req, err := a.client.newRequest(ctx, http.MethodPut, "/auth/v1/user", nil, accessToken, body)
	if err != nil {
		return err
	}

	return a.client.doJSON(req, nil)
}
