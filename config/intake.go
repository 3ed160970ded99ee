package config

import "time"

// IntakeConfig contains the rules applied to inbound submissions.
type IntakeConfig struct {
	// RateLimitWindow is how long a non-failed assessment blocks another from the same email.
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"24h"`
	// ConfirmationEmail sends the "assessment received" email after intake commits.
	ConfirmationEmail bool `env:"CONFIRMATION_EMAIL" envDefault:"true"`
	// ConfirmationTimeout bounds the best-effort confirmation send.
	ConfirmationTimeout time.Duration `env:"CONFIRMATION_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to intake configuration values.
func (i *IntakeConfig) Sanitize() {
	if i.RateLimitWindow <= 0 {
		i.RateLimitWindow = 24 * time.Hour
	}
	if i.ConfirmationTimeout <= 0 {
		i.ConfirmationTimeout = 5 * time.Second
	}
}
