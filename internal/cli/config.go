package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tansive/crmctl/internal/session"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is the default name of the config file
	DefaultConfigFile = "config.yaml"
	// ConfigVersion is written to new config files.
	ConfigVersion = "0.1.0"
	// EnvServerURL overrides the configured server. It is also read from a
	// .env file in the working directory.
	EnvServerURL = "CRM_API_BASE"
)

// supportedConfigVersions is the range of config formats this build reads.
var supportedConfigVersions = mustConstraint("~0.1")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

// ErrConfigNotFound means neither a config file nor EnvServerURL is present.
var ErrConfigNotFound = errors.New(`config file not found. Configure crmctl with "crmctl config --server URL" first`)

// Config is the CLI configuration. Files ending in .toml are read and written
// as TOML, everything else as YAML.
type Config struct {
	// Version of the configuration file format
	Version string `yaml:"version" toml:"version"`
	// ServerURL is the origin of the CRM backend; /api/v1 is appended
	ServerURL string `yaml:"server_url" toml:"server_url"`
	// SessionFile overrides where the session is kept. Relative paths are
	// resolved against the config file's directory.
	SessionFile string `yaml:"session_file,omitempty" toml:"session_file,omitempty"`
	// Insecure skips TLS certificate validation
	Insecure bool `yaml:"insecure,omitempty" toml:"insecure,omitempty"`

	path string
}

// GetDefaultConfigPath returns the default path for the config file
// It uses the OS-specific config directory (e.g., ~/.config/crmctl on Linux)
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "crmctl", DefaultConfigFile), nil
}

// LoadConfig reads the config at file and applies the environment override.
// A missing file is not an error when the server comes from the environment.
func LoadConfig(file string) (*Config, error) {
	if file == "" {
		return nil, errors.New("file path cannot be empty")
	}
	// no error if .env doesn't exist
	_ = godotenv.Load(".env")

	c := &Config{Version: ConfigVersion}
	raw, err := os.ReadFile(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if os.Getenv(EnvServerURL) == "" {
			return nil, ErrConfigNotFound
		}
	case err != nil:
		return nil, fmt.Errorf("unable to read config file: %w", err)
	default:
		if err := decodeConfig(file, raw, c); err != nil {
			return nil, err
		}
	}
	c.path = file

	if env := os.Getenv(EnvServerURL); env != "" {
		c.ServerURL = env
	}
	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}
	c.ServerURL = MorphServer(c.ServerURL)
	return c, nil
}

func decodeConfig(file string, raw []byte, c *Config) error {
	var err error
	if isTOML(file) {
		err = toml.Unmarshal(raw, c)
	} else {
		err = yaml.Unmarshal(raw, c)
	}
	if err != nil {
		return fmt.Errorf("unable to parse config file: %w", err)
	}
	if c.Version == "" {
		c.Version = ConfigVersion
	}
	return nil
}

func isTOML(file string) bool {
	return strings.EqualFold(filepath.Ext(file), ".toml")
}

// WriteConfig writes the configuration to file in the format its extension
// selects.
func (cfg *Config) WriteConfig(file string) error {
	if file == "" {
		return errors.New("file path cannot be empty")
	}

	err := os.MkdirAll(filepath.Dir(file), 0o700)
	if err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	var out []byte
	if isTOML(file) {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		out = buf.Bytes()
	} else {
		out, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to generate configuration: %w", err)
	}

	err = os.WriteFile(file, out, os.FileMode(0600))
	if err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	cfg.path = file
	return nil
}

// ValidateConfig checks the format version and the server URL.
func (cfg *Config) ValidateConfig() error {
	v, err := semver.NewVersion(cfg.Version)
	if err != nil {
		return fmt.Errorf("invalid config version %q: %w", cfg.Version, err)
	}
	if !supportedConfigVersions.Check(v) {
		return fmt.Errorf("unsupported config version %s (supported: %s)", v, supportedConfigVersions)
	}
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return errors.New("server URL is required")
	}
	return nil
}

// Print prints the configuration in a human-readable format
func (cfg *Config) Print(w io.Writer) {
	fmt.Fprintf(w, "Server: %s\n", cfg.ServerURL)
	fmt.Fprintf(w, "Session file: %s\n", cfg.SessionPath())
	if cfg.Insecure {
		warnLabel.Fprintln(w, "TLS certificate validation is disabled")
	}
}

// MorphServer ensures the server URL is properly formatted
// Adds https:// prefix if missing and removes trailing slashes
func MorphServer(server string) string {
	server = strings.TrimSpace(server)
	if server == "" {
		return server
	}

	// Remove any trailing slashes
	server = strings.TrimRight(server, "/")

	// Add https:// if no protocol is specified
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "https://" + server
	}

	return server
}

// GetServerURL returns the properly formatted server URL
func (cfg *Config) GetServerURL() string {
	return MorphServer(cfg.ServerURL)
}

// SessionPath is where the session store lives.
func (cfg *Config) SessionPath() string {
	dir := filepath.Dir(cfg.path)
	if cfg.SessionFile == "" {
		return filepath.Join(dir, session.DefaultSessionFile)
	}
	if filepath.IsAbs(cfg.SessionFile) {
		return cfg.SessionFile
	}
	return filepath.Join(dir, cfg.SessionFile)
}

func newConfigCmd() *cobra.Command {
	var (
		server   string
		insecure bool
	)
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long: `Manage CLI configuration settings like the server connection.
Without flags the current configuration is shown.

Examples:
  crmctl config --server https://crm.example.com
  crmctl config --server localhost:8080 --insecure
  crmctl config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server != "" {
				return setServerConfig(cmd, server, insecure)
			}
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printResult(cmd.OutOrStdout(), map[string]any{
					"server":       cfg.ServerURL,
					"config_file":  configFile,
					"session_file": cfg.SessionPath(),
					"insecure":     cfg.Insecure,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", configFile)
			cfg.Print(cmd.OutOrStdout())
			return nil
		},
	}
	configCmd.Flags().StringVar(&server, "server", "", "Set the server URL (e.g., https://crm.example.com)")
	configCmd.Flags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate validation")

	configCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session",
		Long: `Remove the stored token and user profile. The server configuration is kept.
This is the same as "crmctl logout" but works without a reachable server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return err
			}
			store, err := session.OpenFileStore(cfg.SessionPath())
			if err != nil {
				return err
			}
			if err := session.Clear(store); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]int{"result": 1})
			}
			fmt.Fprintln(cmd.OutOrStdout(), `Session cleared. Sign in again with "crmctl login".`)
			return nil
		},
	})
	return configCmd
}

// setServerConfig points the config at server. A server change drops the
// stored session, whose token belongs to the previous server.
func setServerConfig(cmd *cobra.Command, server string, insecure bool) error {
	cfg := &Config{Version: ConfigVersion}
	if raw, err := os.ReadFile(configFile); err == nil {
		if err := decodeConfig(configFile, raw, cfg); err != nil {
			return err
		}
	}
	cfg.path = configFile

	previous := MorphServer(cfg.ServerURL)
	cfg.ServerURL = MorphServer(server)
	cfg.Insecure = insecure
	if err := cfg.ValidateConfig(); err != nil {
		return err
	}

	if err := cfg.WriteConfig(configFile); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if previous != "" && previous != cfg.ServerURL {
		store, err := session.OpenFileStore(cfg.SessionPath())
		if err == nil {
			err = session.Clear(store)
		}
		if err != nil {
			return fmt.Errorf("failed to clear previous session: %w", err)
		}
	}

	if jsonOutput {
		return printResult(cmd.OutOrStdout(), map[string]string{
			"server":      cfg.ServerURL,
			"config_file": configFile,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Server configured: %s\n", cfg.ServerURL)
	fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", configFile)
	return nil
}
