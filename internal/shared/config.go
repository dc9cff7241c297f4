package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Limits      LimitsConfig      `toml:"limits"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify   SpotifyConfig   `toml:"spotify"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Telegram  TelegramConfig  `toml:"telegram"`
}

// SpotifyConfig contains Spotify API credentials.
//
// ClientSecret may be empty for public PKCE clients; the auth layer switches
// to in-body client id transmission when it is.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	Scopes       string `toml:"scopes"`
}

// AnthropicConfig contains credentials for the playlist planner model.
type AnthropicConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// TelegramConfig contains the bot token consumed by the messaging layer.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LimitsConfig bounds the mix flow per user.
type LimitsConfig struct {
	DailyLimit           int `toml:"daily_limit"`
	CooldownSeconds      int `toml:"cooldown_seconds"`
	ProcessingTTLSeconds int `toml:"processing_ttl_seconds"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path,
// then overlays secrets from the process environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	config.applyDefaults()
	return &config
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

// LoadDotenv loads a .env file into the process environment when present.
// Missing files are not an error; secrets may arrive through the real environment.
func LoadDotenv() {
	_ = godotenv.Load()
}

// applyEnv overlays secret material from environment variables so tokens
// never have to live in the TOML file.
func (c *Config) applyEnv() {
	overlay := map[string]*string{
		"SPOTIFY_CLIENT_ID":     &c.Credentials.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET": &c.Credentials.Spotify.ClientSecret,
		"SPOTIFY_REDIRECT_URI":  &c.Credentials.Spotify.RedirectURI,
		"ANTHROPIC_API_KEY":     &c.Credentials.Anthropic.APIKey,
		"ANTHROPIC_MODEL":       &c.Credentials.Anthropic.Model,
		"TELEGRAM_BOT_TOKEN":    &c.Credentials.Telegram.BotToken,
		"MIXBOT_DB_PATH":        &c.Database.Path,
	}
	for key, target := range overlay {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Limits.DailyLimit <= 0 {
		c.Limits.DailyLimit = 20
	}
	if c.Limits.CooldownSeconds <= 0 {
		c.Limits.CooldownSeconds = 30
	}
	if c.Limits.ProcessingTTLSeconds <= 0 {
		c.Limits.ProcessingTTLSeconds = 60
	}
	if c.Database.Path == "" {
		c.Database.Path = "./mixbot.db"
	}
}
