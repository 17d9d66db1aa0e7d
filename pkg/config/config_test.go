package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayme-github/cryptex/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
app:
  name: cryptex
  env: development
  log_level: debug

exchanges:
  btce:
    enabled: true
    nonce_seed: 42
    transaction_limit: 500
  cryptsy:
    enabled: false
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cryptex", cfg.App.Name)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "debug", cfg.App.LogLevel)

	require.Contains(t, cfg.Exchanges, "btce")
	btce := cfg.Exchanges["btce"]
	assert.True(t, btce.Enabled)
	assert.Equal(t, int64(42), btce.NonceSeed)
	assert.Equal(t, 500, btce.TransactionLimit)

	assert.Equal(t, []string{"btce"}, cfg.EnabledExchanges())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_ValidationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing app name",
			content: `
app:
  env: production
exchanges:
  btce:
    enabled: true
`,
			wantErr: "app.name is required",
		},
		{
			name: "no exchange enabled",
			content: `
app:
  name: cryptex
exchanges:
  btce:
    enabled: false
`,
			wantErr: "at least one exchange must be enabled",
		},
		{
			name: "negative nonce seed",
			content: `
app:
  name: cryptex
exchanges:
  btce:
    enabled: true
    nonce_seed: -1
`,
			wantErr: "nonce_seed must not be negative",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, `
app:
  name: cryptex
  env: production
exchanges:
  btce:
    enabled: true
`)

	t.Setenv("CRYPTEX_APP_ENV", "development")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment(), "environment variables override file values")
}
