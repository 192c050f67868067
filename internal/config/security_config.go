// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Any signed-in member
	SecurityAdmin                       // Admin role required
)

// EndpointSecurityConfig maps named HTTP routes to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Auth
	"auth.login":    SecurityPublic,
	"auth.register": SecurityPublic,
	"auth.logout":   SecurityAccess,
	"auth.me":       SecurityAccess,

	// Ops
	"healthz": SecurityPublic,
	"metrics": SecurityPublic,

	// Units
	"units.list":         SecurityAccess,
	"units.get":          SecurityAccess,
	"units.history":      SecurityAccess,
	"units.register":     SecurityAdmin,
	"units.decommission": SecurityAdmin,

	// Checkouts
	"checkouts.create":  SecurityAccess,
	"checkouts.renew":   SecurityAccess,
	"checkouts.return":  SecurityAccess,
	"checkouts.overdue": SecurityAdmin,
	"checkouts.dueSoon": SecurityAdmin,

	// Reservations
	"reservations.create": SecurityAccess,
	"reservations.cancel": SecurityAccess,

	// Members
	"members.holdings": SecurityAccess,
	"members.history":  SecurityAccess,
	"members.summary":  SecurityAccess,
	"members.status":   SecurityAdmin,
}

// GetSecurityLevel returns the security level for a named route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAdmin
}
