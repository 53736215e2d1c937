// Package auth protects the gateway API with API keys and signed tokens and
// records an audit trail of project changes.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of tokens minted by the gateway.
const Issuer = "sparqlfed"

// Claims represents JWT token claims
type Claims struct {
	Role     string   `json:"role"`
	Projects []string `json:"projects,omitempty"` // empty means every project
	jwt.RegisteredClaims
}

// CanAccess reports whether the claims allow querying project.
func (c *Claims) CanAccess(project string) bool {
	if c.Role == RoleAdmin || len(c.Projects) == 0 {
		return true
	}
	for _, p := range c.Projects {
		if p == project {
			return true
		}
	}
	return false
}

// Mode is the authentication mode of the API.
type Mode string

const (
	ModeNone   Mode = "none"    // No authentication
	ModeAPIKey Mode = "api-key" // x-api-key header only
	ModeToken  Mode = "token"   // Bearer tokens only
	ModeAny    Mode = "any"     // Either credential
)

// ModeFor derives the mode from which credentials are configured.
func ModeFor(apiKeyConfigured, secretConfigured bool) Mode {
	switch {
	case apiKeyConfigured && secretConfigured:
		return ModeAny
	case apiKeyConfigured:
		return ModeAPIKey
	case secretConfigured:
		return ModeToken
	default:
		return ModeNone
	}
}

// Role constants
const (
	RoleAdmin = "admin" // may manage projects, flush caches and send updates
	RoleUser  = "user"  // may only query
)

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}
