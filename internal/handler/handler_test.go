package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"estate-portal/internal/backend"
	"estate-portal/internal/middleware"
	"estate-portal/internal/profile"
	"estate-portal/internal/project"
	"estate-portal/internal/session"

	"github.com/labstack/echo/v4"
)

type fakeUser struct {
	ID       string
	Password string
}

// fakeBackend stands in for the hosted backend: the auth endpoints and the
// profiles/properties tables, with enough query handling for the portal's
// traffic. Everything it sees is recorded for assertions.
type fakeBackend struct {
	mu sync.Mutex

	users           map[string]fakeUser
	confirmRequired bool
	issuedTokens    map[string]fakeUser

	profileRows     map[string]profile.Profile
	profileUpserts  int
	projectRows     []project.Project
	projectInserts  int
	projectDeletes  []string
	recoverEmails   []string
	passwordUpdates []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:        make(map[string]fakeUser),
		issuedTokens: make(map[string]fakeUser),
		profileRows:  make(map[string]profile.Profile),
	}
}

func (f *fakeBackend) addUser(email, password, id string) {
	f.users[email] = fakeUser{ID: id, Password: password}
}

func (f *fakeBackend) addProfile(p profile.Profile) {
	f.profileRows[p.ID] = p
}

func (f *fakeBackend) issueTokens(w http.ResponseWriter, email string, u fakeUser) {
	token := "access-" + u.ID
	f.issuedTokens[token] = u
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  token,
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + u.ID,
		"user":          map[string]any{"id": u.ID, "email": email},
	})
}

func (f *fakeBackend) bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/auth/v1/token" && r.Method == http.MethodPost:
		f.handleToken(w, r)
	case r.URL.Path == "/auth/v1/signup" && r.Method == http.MethodPost:
		f.handleSignup(w, r)
	case r.URL.Path == "/auth/v1/logout" && r.Method == http.MethodPost:
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/auth/v1/user" && r.Method == http.MethodGet:
		u, ok := f.issuedTokens[f.bearer(r)]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"msg": "invalid token"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "email": f.emailOf(u.ID)})
	case r.URL.Path == "/auth/v1/user" && r.Method == http.MethodPut:
		var body struct {
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.passwordUpdates = append(f.passwordUpdates, body.Password)
		json.NewEncoder(w).Encode(map[string]string{})
	case r.URL.Path == "/auth/v1/recover" && r.Method == http.MethodPost:
		var body struct {
			Email string `json:"email"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.recoverEmails = append(f.recoverEmails, body.Email)
		json.NewEncoder(w).Encode(map[string]string{})
	case r.URL.Path == "/rest/v1/profiles" && r.Method == http.MethodGet:
		f.handleProfileSelect(w, r)
	case r.URL.Path == "/rest/v1/profiles" && r.Method == http.MethodPost:
		var row profile.Profile
		json.NewDecoder(r.Body).Decode(&row)
		f.profileRows[row.ID] = row
		f.profileUpserts++
		w.WriteHeader(http.StatusCreated)
	case r.URL.Path == "/rest/v1/properties" && r.Method == http.MethodGet:
		f.handleProjectSelect(w, r)
	case r.URL.Path == "/rest/v1/properties" && r.Method == http.MethodPost:
		var row project.Project
		json.NewDecoder(r.Body).Decode(&row)
		row.ID = "new-project"
		f.projectInserts++
		f.projectRows = append(f.projectRows, row)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]project.Project{row})
	case r.URL.Path == "/rest/v1/properties" && r.Method == http.MethodDelete:
		f.projectDeletes = append(f.projectDeletes, r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "no such route"})
	}
}

func (f *fakeBackend) emailOf(id string) string {
	for email, u := range f.users {
		if u.ID == id {
			return email
		}
	}
	return ""
}

func (f *fakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		u, ok := f.users[body.Email]
		if !ok || u.Password != body.Password {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "invalid_grant", "error_description": "Invalid login credentials",
			})
			return
		}
		f.issueTokens(w, body.Email, u)
	case "refresh_token":
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		id := strings.TrimPrefix(body.RefreshToken, "refresh-")
		f.issueTokens(w, f.emailOf(id), fakeUser{ID: id})
	case "pkce":
		var body struct {
			AuthCode     string `json:"auth_code"`
			CodeVerifier string `json:"code_verifier"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.AuthCode != "good-code" || body.CodeVerifier == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		f.issueTokens(w, "oauth@x.com", fakeUser{ID: "user-oauth"})
	default:
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
	}
}

func (f *fakeBackend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	u := fakeUser{ID: "user-new", Password: body.Password}
	f.users[body.Email] = u

	if f.confirmRequired {
		json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "email": body.Email})
		return
	}
	f.issueTokens(w, body.Email, u)
}

func (f *fakeBackend) handleProfileSelect(w http.ResponseWriter, r *http.Request) {
	rows := []profile.Profile{}
	want := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
	for _, p := range f.profileRows {
		if want == "" || p.ID == want {
			rows = append(rows, p)
		}
	}
	json.NewEncoder(w).Encode(rows)
}

func (f *fakeBackend) handleProjectSelect(w http.ResponseWriter, r *http.Request) {
	rows := []project.Project{}
	want := strings.TrimPrefix(r.URL.Query().Get("client_email"), "eq.")
	for _, p := range f.projectRows {
		if want == "" || p.ClientEmail == want {
			rows = append(rows, p)
		}
	}
	json.NewEncoder(w).Encode(rows)
}

// testEnv wires the portal's routes against a fake backend, mirroring the
// server entrypoint minus logging and metrics.
type testEnv struct {
	e    *echo.Echo
	fake *fakeBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := newFakeBackend()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := backend.New(server.URL, "anon-key", 5*time.Second)
	authClient := backend.NewAuthClient(client)
	tables := backend.NewTableClient(client)

	manager := session.NewManager(authClient, session.NewMemoryStore(), "", 24*time.Hour, nil)
	profiles := profile.NewResolver(tables, nil)
	projects := project.NewStore(tables, nil)
	gateway := project.NewGateway(tables, nil)

	cookies := session.CookieOptions{Secure: false}
	authHandler := NewAuthHandler(manager, authClient, profiles, cookies, "http://portal.test")
	projectHandler := NewProjectHandler(projects, gateway)

	e := echo.New()

	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/oauth/:provider", authHandler.OAuthRedirect)
	auth.GET("/callback", authHandler.OAuthCallback)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)
	auth.GET("/session", authHandler.SessionProbe)

	api := e.Group("/api")
	api.Use(middleware.SessionMiddleware(manager, profiles, cookies))
	api.GET("/me", authHandler.Me)
	api.GET("/projects", projectHandler.List)
	api.POST("/projects", projectHandler.Create)
	api.DELETE("/projects/:id", projectHandler.Delete)

	return &testEnv{e: e, fake: fake}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.CookieName && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

// login signs in an existing user and returns the session cookie.
func (env *testEnv) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := env.do(jsonRequest(http.MethodPost, "/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	return sessionCookie(t, rec)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	return body
}
