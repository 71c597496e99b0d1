package handler

import (
	"errors"
	"net/http"

	"estate-portal/internal/backend"
	"estate-portal/internal/middleware"
	"estate-portal/internal/profile"
	"estate-portal/internal/session"
	"estate-portal/pkg/logger"
	"estate-portal/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthHandler terminates the portal's authentication routes and drives the
// hosted backend's auth API behind them.
type AuthHandler struct {
	manager  *session.Manager
	auth     *backend.AuthClient
	profiles *profile.Resolver
	cookies  session.CookieOptions
	baseURL  string
}

// NewAuthHandler wires the authentication routes' dependencies.
func NewAuthHandler(
	manager *session.Manager,
	auth *backend.AuthClient,
	profiles *profile.Resolver,
	cookies session.CookieOptions,
	baseURL string,
) *AuthHandler {
	return &AuthHandler{
		manager:  manager,
		auth:     auth,
		profiles: profiles,
		cookies:  cookies,
		baseURL:  baseURL,
	}
}

// Register handles sign-up. Depending on backend settings the response is
// either an established session (auto-confirm) or a confirmation-pending
// notice.
func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse register request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("missing_credentials")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	var metadata map[string]any
	if req.Name != "" {
		metadata = map[string]any{"full_name": req.Name}
	}

	ctx := c.Request().Context()
	tokens, user, err := h.auth.SignUp(ctx, req.Email, req.Password, metadata, h.baseURL+"/login")
	if err != nil {
		log.Error("Sign-up failed", zap.String("email", req.Email), zap.Error(err))
		prometheus.RecordAuthError("signup_failed")
		return backendFailure(c, err, "could not register")
	}

	if tokens == nil {
		// Email confirmation required; no session until the user clicks
		// the link and signs in.
		log.Info("Registration pending confirmation", zap.String("email", req.Email))
		return c.JSON(http.StatusAccepted, echo.Map{
			"message": "check your email to confirm your account",
		})
	}

	sess, err := h.manager.Establish(ctx, tokens)
	if err != nil {
		log.Error("Failed to establish session after sign-up", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not establish session"})
	}

	h.profiles.Ensure(ctx, sess.AccessToken, user, req.Name)
	session.SetCookie(c.Response(), sess.ID, sess.ExpiresAt, h.cookies)

	log.Info("User registered", zap.String("email", sess.Email))
	return c.JSON(http.StatusCreated, echo.Map{
		"user": echo.Map{"id": sess.UserID, "email": sess.Email},
	})
}

// Login handles password sign-in.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	ctx := c.Request().Context()
	sess, err := h.manager.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		if backend.IsAuthFailure(err) {
			log.Warn("Invalid credentials", zap.String("email", req.Email))
			prometheus.RecordAuthError("invalid_credentials")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		log.Error("Sign-in failed", zap.String("email", req.Email), zap.Error(err))
		prometheus.RecordAuthError("signin_failed")
		return backendFailure(c, err, "could not sign in")
	}

	identity, err := h.auth.GetUser(ctx, sess.AccessToken)
	if err != nil {
		// Profile creation degrades gracefully; the session stands.
		log.Warn("Identity lookup failed after sign-in", zap.Error(err))
		identity = &backend.User{ID: sess.UserID, Email: sess.Email}
	}
	h.profiles.Ensure(ctx, sess.AccessToken, identity, "")

	session.SetCookie(c.Response(), sess.ID, sess.ExpiresAt, h.cookies)

	log.Info("User logged in", zap.String("email", sess.Email))
	return c.JSON(http.StatusOK, echo.Map{
		"user": echo.Map{"id": sess.UserID, "email": sess.Email},
	})
}

// Logout ends the portal session. Logging out without one is not an error.
func (h *AuthHandler) Logout(c echo.Context) error {
	log := logger.FromContext(c)

	if cookie, err := c.Cookie(session.CookieName); err == nil && cookie.Value != "" {
		h.manager.SignOut(c.Request().Context(), cookie.Value)
	}
	session.ClearCookie(c.Response(), h.cookies)

	log.Info("User logged out")
	return c.JSON(http.StatusOK, echo.Map{"message": "signed out"})
}

// OAuthRedirect starts the OAuth flow: it parks the state and PKCE verifier
// in short-lived cookies and sends the browser to the backend's authorize
// endpoint.
func (h *AuthHandler) OAuthRedirect(c echo.Context) error {
	provider := c.Param("provider")
	if provider == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing provider"})
	}

	state := generateState(c, h.cookies.Secure)
	_, challenge := generatePKCE(c, h.cookies.Secure)

	redirectTo := h.baseURL + "/auth/callback?state=" + state
	return c.Redirect(http.StatusFound, h.auth.AuthorizeURL(provider, redirectTo, challenge))
}

// OAuthCallback lands the OAuth flow: it checks the state, trades the
// authorization code for tokens, and establishes the portal session.
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	log := logger.FromContext(c)

	if !validateState(c) {
		prometheus.RecordAuthError("oauth_state_mismatch")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "state mismatch"})
	}

	code := c.QueryParam("code")
	if code == "" {
		prometheus.RecordAuthError("oauth_missing_code")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing authorization code"})
	}

	ctx := c.Request().Context()
	tokens, err := h.auth.ExchangeCode(ctx, code, getPKCEVerifier(c))

	clearFlowCookie(c, stateCookieName, h.cookies.Secure)
	clearFlowCookie(c, pkceCookieName, h.cookies.Secure)

	if err != nil {
		log.Error("Code exchange failed", zap.Error(err))
		prometheus.RecordAuthError("oauth_exchange_failed")
		return backendFailure(c, err, "could not complete sign-in")
	}

	sess, err := h.manager.Establish(ctx, tokens)
	if err != nil {
		log.Error("Failed to establish session after OAuth", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not establish session"})
	}

	identity := tokens.User
	if identity == nil {
		if identity, err = h.auth.GetUser(ctx, sess.AccessToken); err != nil {
			log.Warn("Identity lookup failed after OAuth", zap.Error(err))
			identity = &backend.User{ID: sess.UserID, Email: sess.Email}
		}
	}
	h.profiles.Ensure(ctx, sess.AccessToken, identity, "")

	session.SetCookie(c.Response(), sess.ID, sess.ExpiresAt, h.cookies)

	log.Info("User logged in via OAuth", zap.String("email", sess.Email))
	return c.Redirect(http.StatusFound, "/")
}

// ForgotPassword asks the backend to email a recovery link. The response is
// identical whether or not the account exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	err := h.auth.ResetPasswordForEmail(c.Request().Context(), req.Email, h.baseURL+"/reset-password")
	if err != nil {
		// Logged but not surfaced; the caller must not learn whether the
		// address is registered.
		log.Warn("Recovery email failed", zap.Error(err))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "if the address is registered, a recovery email is on its way",
	})
}

// ResetPassword sets a new password using the recovery token from the
// emailed link.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		RecoveryToken string `json:"recovery_token"`
		Password      string `json:"password"`
	}
	if err := c.Bind(&req); err != nil || req.RecoveryToken == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "recovery token and password are required"})
	}

	if err := h.manager.RecoverPassword(c.Request().Context(), req.RecoveryToken, req.Password); err != nil {
		log.Error("Password reset failed", zap.Error(err))
		prometheus.RecordAuthError("password_reset_failed")
		return backendFailure(c, err, "could not reset password")
	}

	log.Info("Password reset completed")
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated, sign in again"})
}

// SessionProbe reports the caller's session state. The SPA calls this once
// at startup, rendering a loading view until the answer arrives; the answer
// is always 200, never an auth error.
func (h *AuthHandler) SessionProbe(c echo.Context) error {
	cookie, err := c.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusOK, echo.Map{"state": session.StateAnonymous})
	}

	state, sess := h.manager.State(c.Request().Context(), cookie.Value)
	if state != session.StateAuthenticated {
		session.ClearCookie(c.Response(), h.cookies)
		return c.JSON(http.StatusOK, echo.Map{"state": state})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"state": state,
		"user":  echo.Map{"id": sess.UserID, "email": sess.Email},
	})
}

// Me reports the signed-in identity and its profile. Runs behind the
// session middleware.
func (h *AuthHandler) Me(c echo.Context) error {
	sess := middleware.SessionFromContext(c)
	if sess == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	resp := echo.Map{
		"user": echo.Map{"id": sess.UserID, "email": sess.Email},
	}
	if prof := middleware.ProfileFromContext(c); prof != nil {
		resp["profile"] = prof
	}
	return c.JSON(http.StatusOK, resp)
}

// backendFailure maps a backend API error to the portal's response. Auth
// rejections keep their status; everything else is a bad gateway.
func backendFailure(c echo.Context, err error, fallback string) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		return c.JSON(status, echo.Map{"error": apiErr.UserMessage()})
	}
	return c.JSON(http.StatusBadGateway, echo.Map{"error": fallback})
}
