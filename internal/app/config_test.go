package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const validConfig = `
[auth]
authority = "https://login.windows.net/contoso.onmicrosoft.com"
client_id = "abc"
client_secret = "s3cret"
redirect_uri = "http://localhost/callback"
resource_url = "https://api.businesscentral.dynamics.com"

[service]
company = "d84e0a58-f49d-4b38-a567-038baa924c49"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "odatactl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig), nil, environ())
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Auth.ClientID)
	assert.Equal(t, "s3cret", cfg.Auth.ClientSecret)
	assert.Equal(t, 5*time.Minute, cfg.Auth.PromptTimeout)
	assert.False(t, cfg.Auth.Reauthorize)
	assert.Equal(t, DefaultServiceURL, cfg.Service.URL)
	assert.Equal(t, "d84e0a58-f49d-4b38-a567-038baa924c49", cfg.Service.Company)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, validConfig+`
[log]
level = "warn"
`)

	cfg, err := LoadConfig(path,
		map[string]any{"log.format": "json"},
		environ(
			"ODATACTL_AUTH__CLIENT_ID=from-env",
			"ODATACTL_AUTH__PROMPT_TIMEOUT=30s",
			"ODATACTL_AUTH__REAUTHORIZE=true",
			"ODATACTL_LOG__FORMAT=text",
			"ODATACTL_SERVICE__COMPANY=",
			"OTHER_AUTH__CLIENT_ID=ignored",
		),
	)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.ClientID)
	assert.Equal(t, 30*time.Second, cfg.Auth.PromptTimeout)
	assert.True(t, cfg.Auth.Reauthorize)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "flags override the environment")
	assert.Equal(t, "d84e0a58-f49d-4b38-a567-038baa924c49", cfg.Service.Company, "empty variables are ignored")
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		overrides map[string]any
	}{
		{
			name: "missing file",
			path: filepath.Join(t.TempDir(), "absent.toml"),
		},
		{
			name: "malformed file",
			path: writeConfig(t, "[auth\n"),
		},
		{
			name: "missing required field",
			path: writeConfig(t, "[auth]\nclient_id = \"abc\"\n"),
		},
		{
			name:      "invalid log format",
			path:      writeConfig(t, validConfig),
			overrides: map[string]any{"log.format": "xml"},
		},
		{
			name:      "secret and keyring together",
			path:      writeConfig(t, validConfig),
			overrides: map[string]any{"auth.client_secret_keyring": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.path, tt.overrides, environ())
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestAuthConfig_Credentials(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig), nil, environ())
	require.NoError(t, err)

	creds, err := cfg.Auth.Credentials()
	require.NoError(t, err)

	assert.Equal(t, "https://login.windows.net/contoso.onmicrosoft.com", creds.Authority)
	assert.Equal(t, "abc", creds.ClientID)
	assert.Equal(t, "s3cret", creds.ClientSecret)
	assert.Equal(t, "http://localhost/callback", creds.RedirectURI)
	assert.Equal(t, "https://api.businesscentral.dynamics.com", creds.Resource)
}

func TestAuthConfig_CredentialsFromKeyring(t *testing.T) {
	keyring.MockInit()

	auth := AuthConfig{
		Authority:           "https://login.windows.net/contoso.onmicrosoft.com",
		ClientID:            "abc",
		ClientSecretKeyring: true,
		RedirectURI:         "http://localhost/callback",
		ResourceURL:         "https://api.businesscentral.dynamics.com",
	}

	_, err := auth.Credentials()
	require.ErrorIs(t, err, ErrConfiguration)

	require.NoError(t, StoreClientSecret("abc", "from-keyring"))
	creds, err := auth.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", creds.ClientSecret)

	require.NoError(t, StoreClientSecret("abc", ""))
	_, err = auth.Credentials()
	require.ErrorIs(t, err, ErrConfiguration)

	// Removing an absent secret is not an error.
	require.NoError(t, StoreClientSecret("abc", ""))
}

func TestLogConfig_ObservabilityOptions(t *testing.T) {
	opts, err := LogConfig{Level: "debug", Format: "json", Exporter: "stdout"}.ObservabilityOptions()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, opts.Level)
	assert.Equal(t, "json", opts.Format)
	assert.Equal(t, "stdout", opts.Exporter)

	_, err = LogConfig{Level: "loud"}.ObservabilityOptions()
	require.ErrorIs(t, err, ErrConfiguration)
}
