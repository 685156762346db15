package ebay

import "time"

// Config holds configuration for the eBay provider.
type Config struct {
	// Environment selects the API hosts (sandbox, production).
	Environment string `mapstructure:"environment" default:"sandbox"`
	// AppID is the OAuth client id.
	AppID string `mapstructure:"app_id" default:""`
	// CertID is the OAuth client secret.
	CertID string `mapstructure:"cert_id" default:""`
	// RuName is the redirect URL name registered with eBay.
	RuName string `mapstructure:"ru_name" default:""`
	// BaseURL overrides the REST API host.
	BaseURL string `mapstructure:"base_url" default:""`
	// AuthURL overrides the consent page URL.
	AuthURL string `mapstructure:"auth_url" default:""`
	// TokenURL overrides the token endpoint.
	TokenURL string `mapstructure:"token_url" default:""`
	// RequestsPerSecond caps outgoing calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" default:"5"`
	// MaxRetries bounds retries of rate limited (429) calls.
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// Timeout applies to each HTTP round trip.
	Timeout time.Duration `mapstructure:"timeout" default:"15s"`
}

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

func (c Config) baseURL() string {
	switch {
	case c.BaseURL != "":
		return c.BaseURL
	case c.Environment == EnvironmentProduction:
		return "https://api.ebay.com"
	default:
		return "https://api.sandbox.ebay.com"
	}
}

func (c Config) authURL() string {
	switch {
	case c.AuthURL != "":
		return c.AuthURL
	case c.Environment == EnvironmentProduction:
		return "https://auth.ebay.com/oauth2/authorize"
	default:
		return "https://auth.sandbox.ebay.com/oauth2/authorize"
	}
}

func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return c.baseURL() + "/identity/v1/oauth2/token"
}

// Scopes requested for inventory and order access.
var Scopes = []string{
	"https://api.ebay.com/oauth/api_scope",
	"https://api.ebay.com/oauth/api_scope/sell.inventory",
	"https://api.ebay.com/oauth/api_scope/sell.fulfillment",
}
