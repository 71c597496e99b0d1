package session

import "time"

// State describes where the portal is in determining whether a request
// belongs to a signed-in identity.
type State string

const (
	StateInitializing  State = "INITIALIZING"
	StateAnonymous     State = "ANONYMOUS"
	StateAuthenticated State = "AUTHENTICATED"
)

// EventKind identifies a session change reported to subscribers.
type EventKind string

const (
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
)

// Session is a portal session: an opaque ID handed to the browser, bound to
// the token material issued by the hosted backend. It stores identity
// pointers only, no authorization decisions.
type Session struct {
	ID              string    // unique session identifier
	UserID          string    // identity id at the hosted backend
	Email           string    // identity email at sign-in time
	AccessToken     string    // backend access token
	RefreshToken    string    // backend refresh token
	AccessExpiresAt time.Time // access token expiry
	CreatedAt       time.Time
	ExpiresAt       time.Time // absolute portal expiry
}
