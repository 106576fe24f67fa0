package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Models      ModelsConfig      `toml:"models"`
	Database    DatabaseConfig    `toml:"database"`
	Credentials CredentialsConfig `toml:"credentials"`
	Log         LogConfig         `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host          string  `toml:"host"`
	Port          int     `toml:"port"`
	RateLimit     float64 `toml:"rate_limit"` // requests per second, 0 disables limiting
	Burst         int     `toml:"burst"`
	MaxBodyBytes  int64   `toml:"max_body_bytes"`
	AllowedOrigin string  `toml:"allowed_origin"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ModelsConfig locates the parameter files for the three classifiers.
//
// Relative file names are resolved against Dir.
type ModelsConfig struct {
	Dir string `toml:"dir"`
	CNN string `toml:"cnn"`
	MLP string `toml:"mlp"`
	LR  string `toml:"lr"`
}

// Path resolves a parameter file name against the model directory.
func (m ModelsConfig) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.Dir, name)
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and endpoints.
//
// The endpoint fields exist so tests and proxies can point the client elsewhere.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	APIURL       string `toml:"api_url"`
}

// Configured reports whether client credentials are present.
func (s SpotifyConfig) Configured() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Endpoint returns the [oauth2.Endpoint] for the configured authorization server.
//
// Spotify expects client credentials in the Authorization header.
func (s SpotifyConfig) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   s.AuthURL,
		TokenURL:  s.TokenURL,
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values absent from the file keep their defaults from the embedded example.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// LoadConfigOrDefault loads the config at path when it exists and falls back to defaults otherwise.
// Environment overrides are applied in both cases.
func LoadConfigOrDefault(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	config.ApplyEnv(os.LookupEnv)
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overrides config values from environment variables.
//
// lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("SPOTIFY_CLIENT_ID"); ok && v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v, ok := lookup("SPOTIFY_CLIENT_SECRET"); ok && v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v, ok := lookup("REDIRECT_URI"); ok && v != "" {
		c.Credentials.Spotify.RedirectURI = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v, ok := lookup("DIGITS_MODEL_DIR"); ok && v != "" {
		c.Models.Dir = v
	}
	if v, ok := lookup("DIGITS_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
