package handler

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"estate-portal/internal/profile"
)

func TestLogin_EstablishesSessionAndProfile(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addUser("a@x.com", "secret", "user-1")

	cookie := env.login(t, "a@x.com", "secret")
	if cookie.Value == "" {
		t.Fatal("empty session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be http-only")
	}

	if env.fake.profileUpserts != 1 {
		t.Errorf("expected one profile upsert, got %d", env.fake.profileUpserts)
	}
	prof := env.fake.profileRows["user-1"]
	if prof.Role != profile.RoleUser {
		t.Errorf("expected default role, got %q", prof.Role)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addUser("a@x.com", "secret", "user-1")

	rec := env.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"a@x.com","password":"wrong"}`))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "invalid credentials" {
		t.Errorf("unexpected error message %q", got)
	}
}

func TestRegister_AutoConfirmSignsIn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/auth/register",
		`{"name":"Asha","email":"new@x.com","password":"secret"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	sessionCookie(t, rec)

	prof := env.fake.profileRows["user-new"]
	if prof.Name != "Asha" {
		t.Errorf("expected profile name from the form, got %q", prof.Name)
	}
}

func TestRegister_ConfirmationPending(t *testing.T) {
	env := newTestEnv(t)
	env.fake.confirmRequired = true

	rec := env.do(jsonRequest(http.MethodPost, "/auth/register",
		`{"email":"new@x.com","password":"secret"}`))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "portal_session" && cookie.Value != "" {
			t.Error("no session may be issued before confirmation")
		}
	}
}

func TestRegister_MissingCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/auth/register", `{"email":"new@x.com"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogout_EndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addUser("a@x.com", "secret", "user-1")
	cookie := env.login(t, "a@x.com", "secret")

	req := jsonRequest(http.MethodPost, "/auth/logout", "")
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "portal_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie was not cleared")
	}

	// The old cookie no longer authenticates.
	req = jsonRequest(http.MethodGet, "/api/me", "")
	req.AddCookie(cookie)
	if rec := env.do(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestLogout_WithoutSessionIsFine(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/auth/logout", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMe_ReturnsIdentityAndProfile(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addUser("a@x.com", "secret", "user-1")
	cookie := env.login(t, "a@x.com", "secret")

	req := jsonRequest(http.MethodGet, "/api/me", "")
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	user, _ := body["user"].(map[string]any)
	if user["email"] != "a@x.com" {
		t.Errorf("unexpected identity: %v", body)
	}
	prof, _ := body["profile"].(map[string]any)
	if prof["role"] != profile.RoleUser {
		t.Errorf("unexpected profile: %v", body)
	}
}

func TestMe_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(jsonRequest(http.MethodGet, "/api/me", "")); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestSessionProbe_States(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addUser("a@x.com", "secret", "user-1")

	// No cookie: anonymous.
	rec := env.do(jsonRequest(http.MethodGet, "/auth/session", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("probe must answer 200, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["state"]; got != "ANONYMOUS" {
		t.Errorf("expected ANONYMOUS, got %v", got)
	}

	// Live session: authenticated.
	cookie := env.login(t, "a@x.com", "secret")
	req := jsonRequest(http.MethodGet, "/auth/session", "")
	req.AddCookie(cookie)
	rec = env.do(req)
	body := decodeBody(t, rec)
	if body["state"] != "AUTHENTICATED" {
		t.Errorf("expected AUTHENTICATED, got %v", body["state"])
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "a@x.com" {
		t.Errorf("unexpected identity: %v", body)
	}

	// Stale cookie: anonymous again, never an error.
	req = jsonRequest(http.MethodGet, "/auth/session", "")
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "stale"})
	rec = env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("probe must answer 200 for a stale cookie, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["state"]; got != "ANONYMOUS" {
		t.Errorf("expected ANONYMOUS for stale cookie, got %v", got)
	}
}

func TestOAuthRedirect_BuildsAuthorizeURL(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodGet, "/auth/oauth/google", ""))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect location: %v", err)
	}
	if location.Path != "/auth/v1/authorize" {
		t.Errorf("unexpected path %q", location.Path)
	}
	query := location.Query()
	if query.Get("provider") != "google" {
		t.Errorf("unexpected provider %q", query.Get("provider"))
	}
	if query.Get("code_challenge") == "" || query.Get("code_challenge_method") != "S256" {
		t.Error("PKCE challenge missing from authorize URL")
	}

	var hasState, hasPKCE bool
	for _, cookie := range rec.Result().Cookies() {
		switch cookie.Name {
		case stateCookieName:
			hasState = cookie.Value != ""
		case pkceCookieName:
			hasPKCE = cookie.Value != ""
		}
	}
	if !hasState || !hasPKCE {
		t.Error("state and PKCE cookies must be parked before the redirect")
	}
}

func TestOAuthCallback_StateMismatch(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(http.MethodGet, "/auth/callback?code=good-code&state=forged", "")
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "real"})
	rec := env.do(req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOAuthCallback_EstablishesSession(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(http.MethodGet, "/auth/callback?code=good-code&state=xyz", "")
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "xyz"})
	req.AddCookie(&http.Cookie{Name: pkceCookieName, Value: "verifier"})
	rec := env.do(req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookie(t, rec)

	req = jsonRequest(http.MethodGet, "/api/me", "")
	req.AddCookie(cookie)
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("OAuth session does not authenticate: %d", rec.Code)
	}
}

func TestForgotPassword_AlwaysGeneric(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/auth/forgot-password",
		`{"email":"whoever@x.com"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(env.fake.recoverEmails) != 1 || env.fake.recoverEmails[0] != "whoever@x.com" {
		t.Errorf("recovery email not requested: %v", env.fake.recoverEmails)
	}
	if msg, _ := decodeBody(t, rec)["message"].(string); !strings.Contains(msg, "if the address is registered") {
		t.Errorf("response must not reveal account existence, got %q", msg)
	}
}

func TestResetPassword_UpdatesViaRecoveryToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/auth/reset-password",
		`{"recovery_token":"recovery-123","password":"new-secret"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.fake.passwordUpdates) != 1 || env.fake.passwordUpdates[0] != "new-secret" {
		t.Errorf("password update not applied: %v", env.fake.passwordUpdates)
	}
}

func TestResetPassword_RequiresTokenAndPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/auth/reset-password", `{"password":"x"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
