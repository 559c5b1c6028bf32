package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/zalando/go-keyring"

	"github.com/florianilch/odatactl/internal/observability"
	"github.com/florianilch/odatactl/internal/tokensource"
)

// ErrConfiguration marks unusable configuration. It is fatal for every command.
var ErrConfiguration = errors.New("configuration error")

const (
	// DefaultConfigFile is read when no --config flag is given.
	DefaultConfigFile = "odatactl.toml"

	// EnvPrefix prefixes environment overrides. Nested keys use a double underscore,
	// e.g. ODATACTL_AUTH__CLIENT_ID.
	EnvPrefix = "ODATACTL_"

	// KeyringService is the OS keyring service holding client secrets, keyed by client ID.
	KeyringService = "odatactl"

	// DefaultServiceURL is the Business Central API root.
	DefaultServiceURL = "https://api.businesscentral.dynamics.com/v1.0/api/beta"
)

// Config is the complete application configuration.
type Config struct {
	Auth    AuthConfig    `koanf:"auth"`
	Service ServiceConfig `koanf:"service"`
	Log     LogConfig     `koanf:"log"`
}

// AuthConfig holds the OAuth2 client registration and the interactive flow settings.
type AuthConfig struct {
	Authority           string `koanf:"authority" validate:"required,url"`
	ClientID            string `koanf:"client_id" validate:"required"`
	ClientSecret        string `koanf:"client_secret" validate:"excluded_with=ClientSecretKeyring"`
	ClientSecretKeyring bool   `koanf:"client_secret_keyring"`
	RedirectURI         string `koanf:"redirect_uri" validate:"required,url"`
	ResourceURL         string `koanf:"resource_url" validate:"required,url"`

	PromptTimeout    time.Duration `koanf:"prompt_timeout" validate:"gte=0"`
	OpenBrowser      bool          `koanf:"open_browser"`
	CallbackListener bool          `koanf:"callback_listener"`
	Reauthorize      bool          `koanf:"reauthorize"`
}

// ServiceConfig addresses the OData service.
type ServiceConfig struct {
	URL       string  `koanf:"url" validate:"required,url"`
	Company   string  `koanf:"company"`
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	RateBurst int     `koanf:"rate_burst" validate:"gte=0"`
}

// LogConfig configures observability.Instrument.
type LogConfig struct {
	Level    string `koanf:"level" validate:"oneof=debug info warn error"`
	Format   string `koanf:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" validate:"omitempty,oneof=stdout otlp-http otlp-grpc"`
	Endpoint string `koanf:"endpoint" validate:"omitempty,url"`
}

func defaults() map[string]any {
	return map[string]any{
		"auth.prompt_timeout":    tokensource.DefaultPromptTimeout.String(),
		"auth.open_browser":      false,
		"auth.callback_listener": false,
		"auth.reauthorize":       false,
		"service.url":            DefaultServiceURL,
		"service.rate_limit":     0,
		"service.rate_burst":     1,
		"log.level":              "info",
		"log.format":             "text",
	}
}

// LoadConfig merges, in increasing precedence: defaults, the TOML file at path,
// EnvPrefix environment variables from environ, and overrides (dotted keys such as
// "service.url", typically command-line flags). The file must exist.
func LoadConfig(path string, overrides map[string]any, environ func() []string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("%w: loading defaults: %w", ErrConfiguration, err)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file %s not found", ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrConfiguration, path, err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("%w: reading environment: %w", ErrConfiguration, err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("%w: applying flags: %w", ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return &cfg, nil
}

// envKey maps ODATACTL_AUTH__CLIENT_ID to auth.client_id. Empty values are skipped.
func envKey(k, v string) (string, any) {
	if v == "" {
		return "", nil
	}
	k = strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	return strings.ReplaceAll(k, "__", "."), v
}

// Credentials resolves the client secret and returns the token endpoint credentials.
func (c AuthConfig) Credentials() (tokensource.Credentials, error) {
	secret := c.ClientSecret
	if c.ClientSecretKeyring {
		var err error
		secret, err = keyring.Get(KeyringService, c.ClientID)
		if errors.Is(err, keyring.ErrNotFound) {
			return tokensource.Credentials{}, fmt.Errorf("%w: no client secret for %s in keyring, run 'odatactl auth secret set'", ErrConfiguration, c.ClientID)
		}
		if err != nil {
			return tokensource.Credentials{}, fmt.Errorf("%w: reading keyring: %w", ErrConfiguration, err)
		}
	}

	return tokensource.Credentials{
		Authority:    c.Authority,
		ClientID:     c.ClientID,
		ClientSecret: secret,
		RedirectURI:  c.RedirectURI,
		Resource:     c.ResourceURL,
	}, nil
}

// StoreClientSecret saves secret in the OS keyring for clientID. An empty secret removes it.
func StoreClientSecret(clientID, secret string) error {
	if secret == "" {
		err := keyring.Delete(KeyringService, clientID)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return keyring.Set(KeyringService, clientID, secret)
}

// ObservabilityOptions converts the log section for observability.Instrument.
func (c LogConfig) ObservabilityOptions() (observability.Options, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return observability.Options{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return observability.Options{
		Level:    level,
		Format:   c.Format,
		Exporter: c.Exporter,
		Endpoint: c.Endpoint,
	}, nil
}
