package domain

import "time"

// Role enumerates the closed set of account roles on the platform.
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
)

// Capability names an action a role may be allowed to perform.
type Capability string

const (
	CapCreateListing   Capability = "listing.create"
	CapPurchaseListing Capability = "listing.purchase"
	CapManageEvents    Capability = "event.manage"
	CapAdministerUsers Capability = "user.administer"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleBuyer: {
		CapCreateListing:   true,
		CapPurchaseListing: true,
	},
	RoleOrganizer: {
		CapCreateListing:   true,
		CapPurchaseListing: true,
		CapManageEvents:    true,
	},
	RoleStaff: {
		CapManageEvents: true,
	},
	RoleAdmin: {
		CapCreateListing:   true,
		CapPurchaseListing: true,
		CapManageEvents:    true,
		CapAdministerUsers: true,
	},
}

// Valid reports whether the role belongs to the closed enumeration.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether the role grants the capability. Unknown roles grant nothing.
func (r Role) Can(c Capability) bool {
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	return caps[c]
}

// User mirrors the persisted representation in the users table.
// PasswordHash is empty for passkey-only accounts. ResetTokenHash and
// ResetTokenExpiresAt are either both set or both null.
type User struct {
	ID                  string
	Email               *string
	PasswordHash        string
	Role                Role
	EmailVerified       bool
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
}

// HasPendingReset reports whether a reset token pair is currently set.
func (u *User) HasPendingReset() bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpiresAt != nil
}
