package config

import "strings"

// AdminAuthConfig protects the operator API with a static bearer token.
type AdminAuthConfig struct {
	// APIToken is compared in constant time against the Authorization bearer token.
	// An empty token disables the admin API entirely.
	APIToken string `env:"ADMIN_API_TOKEN"`
}

// Sanitize trims the configured token.
func (a *AdminAuthConfig) Sanitize() {
	a.APIToken = strings.TrimSpace(a.APIToken)
}

// Enabled reports whether admin routes should be mounted.
func (a *AdminAuthConfig) Enabled() bool {
	return a.APIToken != ""
}
