package auth

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// EnvConfig loads auth options from environment variables. It satisfies the
// Config interface consumed by the session manager and token service.
type EnvConfig struct {
	SigningKey        string        `env:"AUTH_SIGNING_KEY,notEmpty"`
	TokenExpiration   int           `env:"AUTH_TOKEN_EXPIRATION" envDefault:"168"`
	Issuer            string        `env:"AUTH_ISSUER" envDefault:"go-auth"`
	Audience          []string      `env:"AUTH_AUDIENCE" envDefault:"api"`
	RegistrationTTL   time.Duration `env:"AUTH_REGISTRATION_TTL" envDefault:"30m"`
	VerificationTTL   time.Duration `env:"AUTH_VERIFICATION_TTL" envDefault:"15m"`
	ActivationBaseURL string        `env:"AUTH_ACTIVATION_BASE_URL" envDefault:"http://localhost:8080/auth/register/activate"`

	HTTPAddr    string `env:"AUTH_HTTP_ADDR" envDefault:":8080"`
	DatabaseDSN string `env:"AUTH_DATABASE_DSN" envDefault:"file::memory:?cache=shared"`

	NotifierWorkers int `env:"AUTH_NOTIFIER_WORKERS" envDefault:"2"`
	NotifierQueue   int `env:"AUTH_NOTIFIER_QUEUE" envDefault:"64"`
}

// NewEnvConfig parses the environment into an EnvConfig.
func NewEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to parse auth config")
	}

	return cfg, nil
}

func (c *EnvConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c *EnvConfig) GetTokenExpiration() int {
	return c.TokenExpiration
}

func (c *EnvConfig) GetIssuer() string {
	return c.Issuer
}

func (c *EnvConfig) GetAudience() []string {
	return c.Audience
}

func (c *EnvConfig) GetRegistrationTTL() time.Duration {
	return c.RegistrationTTL
}

func (c *EnvConfig) GetVerificationTTL() time.Duration {
	return c.VerificationTTL
}

func (c *EnvConfig) GetActivationBaseURL() string {
	return c.ActivationBaseURL
}

var _ Config = (*EnvConfig)(nil)
