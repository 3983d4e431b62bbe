package security

import (
	"time"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// Config carries the security settings for an Archivist service. Load
// it with the config package under the "security" file section and
// the SECURITY env segment:
//
//	cfg := config.MustLoad[security.Config](
//	    config.New().WithEnvPrefix("ARCHIVIST_SECURITY").WithFile("security.yaml"),
//	)
type Config struct {
	// SessionTTL is the lifetime of issued session tokens.
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL" envDefault:"60m"`

	// ClockSkew is the tolerated clock drift when verifying expiry.
	ClockSkew time.Duration `yaml:"clock_skew" env:"CLOCK_SKEW" envDefault:"30s"`

	// ValidateURL enables the delegated validator when non-empty.
	ValidateURL string `yaml:"validate_url" env:"VALIDATE_URL"`

	// ValidateTimeout bounds each delegated validation call.
	ValidateTimeout time.Duration `yaml:"validate_timeout" env:"VALIDATE_TIMEOUT" envDefault:"5s"`

	// Providers lists the external identity providers to trust, tried
	// in order after the local validator.
	Providers []ProviderConfig `yaml:"providers" env:"-"`

	// AuthServerURL is the base URL of the auth server owning API keys.
	AuthServerURL string `yaml:"auth_server_url" env:"AUTH_SERVER_URL"`

	// AuthServerServiceKey locates this service's own key for signed
	// auth-server calls: a file path or the base64-encoded key JSON.
	AuthServerServiceKey string `yaml:"auth_server_service_key" env:"AUTH_SERVER_SERVICE_KEY"`

	// AnalystSecret is the shared secret workers sign their tokens
	// with.
	AnalystSecret Secret `yaml:"analyst_secret" env:"ANALYST_SECRET"`

	// AnalystPreferClaimedHost builds worker callback endpoints from
	// the token's host claim instead of the observed remote address.
	AnalystPreferClaimedHost bool `yaml:"analyst_prefer_claimed_host" env:"ANALYST_PREFER_CLAIMED_HOST"`

	// AnalystScheme is the callback URL scheme for workers.
	AnalystScheme string `yaml:"analyst_scheme" env:"ANALYST_SCHEME" envDefault:"https"`

	// MonitorUser and MonitorPassword protect the monitoring surface.
	MonitorUser     string `yaml:"monitor_user" env:"MONITOR_USER" envDefault:"monitor"`
	MonitorPassword Secret `yaml:"monitor_password" env:"MONITOR_PASSWORD"`
}

// Validate implements the config package's Validator interface.
func (c *Config) Validate() error {
	if c.SessionTTL <= 0 {
		return zerr.Validation("security: session TTL must be positive")
	}
	if c.ClockSkew < 0 {
		return zerr.Validation("security: clock skew must be non-negative")
	}
	if c.ValidateTimeout <= 0 || c.ValidateTimeout >= 10*time.Second {
		return zerr.Validation("security: validate timeout must be positive and under 10s")
	}
	for i := range c.Providers {
		if err := c.Providers[i].Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for i := range c.Providers {
		tag := c.Providers[i].IssuerTag
		if _, dup := seen[tag]; dup {
			return zerr.Validationf("security: duplicate provider issuer_tag %q", tag)
		}
		seen[tag] = struct{}{}
	}
	return nil
}
