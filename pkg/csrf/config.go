package csrf

import "time"

// Config holds the tunable parts of the CSRF manager.
type Config struct {
	// FieldName is the form field that carries the token.
	FieldName string `json:"field_name"`

	// NameField is the form field that carries the token name for named tokens.
	NameField string `json:"name_field"`

	// HeaderName is checked before the form field, for script-driven requests.
	HeaderName string `json:"header_name"`

	// CookieName is the session cookie set by Middleware.
	CookieName string `json:"cookie_name"`

	// CookieSecure marks the session cookie as HTTPS-only.
	CookieSecure bool `json:"cookie_secure"`

	// TokenBytes is the amount of random data in each token before hex encoding.
	TokenBytes int `json:"token_bytes"`

	// TTLMinutes is how long a token stays valid after it is issued.
	TTLMinutes int `json:"ttl_minutes"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() *Config {
	return &Config{
		FieldName:    "csrf_token",
		NameField:    "csrf_name",
		HeaderName:   "X-CSRF-Token",
		CookieName:   "vellum_session",
		CookieSecure: false,
		TokenBytes:   32,
		TTLMinutes:   120,
	}
}

// TTL returns TTLMinutes as a duration, falling back to the default for
// non-positive values.
func (c *Config) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return time.Duration(DefaultConfig().TTLMinutes) * time.Minute
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}
