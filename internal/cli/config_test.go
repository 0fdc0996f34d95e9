package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMorphServer(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"crm.example.com", "https://crm.example.com"},
		{"localhost:8080/", "https://localhost:8080"},
		{"http://localhost:8080", "http://localhost:8080"},
		{" https://crm.example.com// ", "https://crm.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MorphServer(tt.in), tt.in)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Setenv(EnvServerURL, "")
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), name)
			cfg := &Config{Version: ConfigVersion, ServerURL: "crm.example.com", Insecure: true}
			require.NoError(t, cfg.WriteConfig(file))

			info, err := os.Stat(file)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			loaded, err := LoadConfig(file)
			require.NoError(t, err)
			assert.Equal(t, "https://crm.example.com", loaded.ServerURL)
			assert.True(t, loaded.Insecure)
			assert.Equal(t, filepath.Join(filepath.Dir(file), "session.yaml"), loaded.SessionPath())
		})
	}
}

func TestLoadConfigTOMLSyntax(t *testing.T) {
	t.Setenv(EnvServerURL, "")
	file := filepath.Join(t.TempDir(), "crmctl.toml")
	require.NoError(t, os.WriteFile(file, []byte("version = \"0.1.3\"\nserver_url = \"http://localhost:9000\"\nsession_file = \"state/s.yaml\"\n"), 0o600))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", cfg.GetServerURL())
	assert.Equal(t, filepath.Join(filepath.Dir(file), "state", "s.yaml"), cfg.SessionPath())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")

	t.Setenv(EnvServerURL, "")
	_, err := LoadConfig(file)
	assert.ErrorIs(t, err, ErrConfigNotFound)

	t.Setenv(EnvServerURL, "http://env.example:8080/")
	cfg, err := LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example:8080", cfg.ServerURL)

	require.NoError(t, os.WriteFile(file, []byte("version: 0.1.0\nserver_url: https://file.example\n"), 0o600))
	cfg, err = LoadConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example:8080", cfg.ServerURL)
}

func TestLoadConfigRejects(t *testing.T) {
	t.Setenv(EnvServerURL, "")
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"newer format", "version: 1.0.0\nserver_url: https://crm.example.com\n", "unsupported config version 1.0.0"},
		{"bad version", "version: latest\nserver_url: https://crm.example.com\n", "invalid config version"},
		{"no server", "version: 0.1.0\n", "server URL is required"},
		{"not yaml", "server_url: [\n", "unable to parse config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(file, []byte(tt.content), 0o600))
			_, err := LoadConfig(file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSessionPathAbsolute(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "elsewhere.yaml")
	cfg := &Config{SessionFile: abs, path: "/etc/crmctl/config.yaml"}
	assert.Equal(t, abs, cfg.SessionPath())
}
