package profile

// Roles recognized by the portal. An admin role is only ever assigned out of
// band (directly in the backend); the portal never promotes anyone.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// defaultName is used when neither the existing profile, the identity
// provider, nor the sign-up form supplied a display name.
const defaultName = "Client"

// Profile attaches a display name and role to a backend identity, 1:1 by id.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// IsAdmin reports whether the profile carries the admin role. A nil profile
// is never an admin.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
