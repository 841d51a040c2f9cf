package models

// UserRole is the role claim carried by access tokens.
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	// RoleScorer может вести Kampfgericht, но не управлять турниром.
	RoleScorer UserRole = "scorer"
)

func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleScorer
}
