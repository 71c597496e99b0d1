package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"estate-portal/internal/backend"
	"estate-portal/pkg/jwtutil"
	"estate-portal/prometheus"

	"go.uber.org/zap"
)

// refreshSkew refreshes access tokens slightly before they expire so
// downstream backend calls never race the expiry.
const refreshSkew = 30 * time.Second

// Listener is invoked with every session change event. A nil session
// accompanies events that end a session.
type Listener func(kind EventKind, s *Session)

// Manager is the single source of truth for portal sessions. Exactly one
// instance exists per process and it alone owns the subscription registry,
// so a listener registered once can never be duplicated by request-handling
// churn.
type Manager struct {
	auth      *backend.AuthClient
	store     Store
	jwtSecret string
	ttl       time.Duration
	log       *zap.Logger

	mu     sync.Mutex
	subs   map[int]Listener
	nextID int
}

// NewManager creates the process-wide session manager.
func NewManager(
	auth *backend.AuthClient,
	store Store,
	jwtSecret string,
	ttl time.Duration,
	log *zap.Logger,
) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		auth:      auth,
		store:     store,
		jwtSecret: jwtSecret,
		ttl:       ttl,
		log:       log,
		subs:      make(map[int]Listener),
	}
}

// Subscribe registers a listener for session change events and returns its
// unsubscribe func. The unsubscribe func must be called when the consumer
// goes away; calling it more than once is harmless.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// emit delivers an event to every subscriber. Listener panics are contained;
// a broken listener must not take the auth flow down with it.
func (m *Manager) emit(kind EventKind, s *Session) {
	prometheus.SessionEventCounter.WithLabelValues(string(kind)).Inc()

	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.subs))
	for _, fn := range m.subs {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("session listener panicked", zap.Any("panic", r))
				}
			}()
			fn(kind, s)
		}()
	}
}

// SignInWithPassword authenticates credentials against the hosted backend
// and establishes a portal session.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	tokens, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.Establish(ctx, tokens)
}

// Establish creates a portal session from a token set obtained through any
// grant (password, sign-up auto-confirm, OAuth code exchange) and announces
// the sign-in.
func (m *Manager) Establish(ctx context.Context, tokens *backend.TokenSet) (*Session, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return nil, errors.New("session: token set is empty")
	}

	var userID, email string
	if tokens.User != nil {
		userID, email = tokens.User.ID, tokens.User.Email
	}
	if userID == "" {
		// Token sets from the PKCE exchange may omit the user object;
		// the access token itself carries the identity.
		claims, err := jwtutil.ParseAccessToken(tokens.AccessToken, m.jwtSecret)
		if err != nil {
			return nil, err
		}
		userID = claims.UserID()
		email = claims.Email
	}

	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := Session{
		ID:              id,
		UserID:          userID,
		Email:           email,
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		AccessExpiresAt: tokens.ExpiresAt(now),
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.ttl),
	}

	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	prometheus.ActiveSessionsGauge.Inc()
	m.emit(EventSignedIn, &sess)
	return &sess, nil
}

// Resolve is the session probe: it maps a session ID from the cookie to an
// authenticated session, refreshing the backend access token when it has
// expired. Every failure path is logged and reported as anonymous (nil);
// the probe never surfaces an error to its caller.
func (m *Manager) Resolve(ctx context.Context, sessionID string) *Session {
	if sessionID == "" {
		return nil
	}

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		m.log.Error("session lookup failed", zap.Error(err))
		return nil
	}
	if sess == nil {
		return nil
	}

	now := time.Now()
	if now.After(sess.ExpiresAt) {
		m.dropSession(ctx, sess.ID)
		return nil
	}

	if now.Add(refreshSkew).After(sess.AccessExpiresAt) {
		refreshed := m.refresh(ctx, sess)
		if refreshed == nil {
			return nil
		}
		sess = refreshed
	}

	return sess
}

// State classifies the outcome of a probe for callers that report the
// session lifecycle rather than gate on it. INITIALIZING never comes back
// from here; it is the client's state while this call is in flight.
func (m *Manager) State(ctx context.Context, sessionID string) (State, *Session) {
	sess := m.Resolve(ctx, sessionID)
	if sess == nil {
		return StateAnonymous, nil
	}
	return StateAuthenticated, sess
}

// refresh exchanges the stored refresh token for fresh token material. A
// rejected refresh token means the backend session is gone, so the portal
// session is dropped with it.
func (m *Manager) refresh(ctx context.Context, sess *Session) *Session {
	tokens, err := m.auth.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		m.log.Warn("session refresh failed",
			zap.String("user_id", sess.UserID),
			zap.Error(err),
		)
		if backend.IsAuthFailure(err) {
			m.dropSession(ctx, sess.ID)
		}
		return nil
	}

	now := time.Now()
	sess.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		sess.RefreshToken = tokens.RefreshToken
	}
	sess.AccessExpiresAt = tokens.ExpiresAt(now)

	if err := m.store.Update(ctx, *sess); err != nil {
		m.log.Error("session update failed", zap.Error(err))
		return nil
	}

	m.emit(EventTokenRefreshed, sess)
	return sess
}

func (m *Manager) dropSession(ctx context.Context, sessionID string) {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		m.log.Error("session delete failed", zap.Error(err))
		return
	}
	prometheus.ActiveSessionsGauge.Dec()
}

// SignOut revokes the backend session (best effort) and deletes the portal
// session. Signing out an unknown or already-ended session is a no-op; the
// event is emitted only when a live session actually ended.
func (m *Manager) SignOut(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		m.log.Error("session lookup failed on sign-out", zap.Error(err))
		return
	}
	if sess == nil {
		return
	}

	if err := m.auth.SignOut(ctx, sess.AccessToken); err != nil {
		// Best effort: the portal session dies regardless.
		m.log.Warn("backend sign-out failed", zap.Error(err))
	}

	m.dropSession(ctx, sess.ID)
	m.emit(EventSignedOut, sess)
}

// RecoverPassword completes the password-recovery flow using the recovery
// access token from the emailed reset link.
func (m *Manager) RecoverPassword(ctx context.Context, recoveryToken, newPassword string) error {
	if err := m.auth.UpdateUser(ctx, recoveryToken, newPassword); err != nil {
		return err
	}
	m.emit(EventPasswordRecovery, nil)
	return nil
}
