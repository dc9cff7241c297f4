package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./mixbot.db" {
			t.Errorf("expected database path ./mixbot.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Limits.DailyLimit != 20 {
			t.Errorf("expected daily limit 20, got %d", config.Limits.DailyLimit)
		}

		if config.Credentials.Spotify.RedirectURI != "http://localhost:3000/spotify/callback" {
			t.Errorf("unexpected spotify redirect URI %s", config.Credentials.Spotify.RedirectURI)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"
max_open_conns = 20
max_idle_conns = 10

[server]
host = "0.0.0.0"
port = 8080

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
redirect_uri = "http://localhost:8080/spotify/callback"

[credentials.anthropic]
api_key = "test_api_key"
model = "test-model"

[credentials.telegram]
bot_token = "test_bot_token"

[limits]
daily_limit = 5
cooldown_seconds = 15
processing_ttl_seconds = 45
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected spotify client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}

		if config.Credentials.Telegram.BotToken != "test_bot_token" {
			t.Errorf("expected telegram bot token test_bot_token, got %s", config.Credentials.Telegram.BotToken)
		}

		if config.Limits.CooldownSeconds != 15 {
			t.Errorf("expected cooldown 15, got %d", config.Limits.CooldownSeconds)
		}
	})

	t.Run("Environment Overlay", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "env_client_id")
		t.Setenv("ANTHROPIC_API_KEY", "env_api_key")

		config := DefaultConfig()

		if config.Credentials.Spotify.ClientID != "env_client_id" {
			t.Errorf("expected env client_id override, got %s", config.Credentials.Spotify.ClientID)
		}

		if config.Credentials.Anthropic.APIKey != "env_api_key" {
			t.Errorf("expected env api_key override, got %s", config.Credentials.Anthropic.APIKey)
		}
	})
}
