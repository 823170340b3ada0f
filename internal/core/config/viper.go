package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// marioEnv maps keys of the mario section to their environment variables,
// which drop the section name: MARIO_RULES_FILE, not MARIO_MARIO_RULES_FILE.
var marioEnv = map[string]string{
	"mario.rules_file":            "MARIO_RULES_FILE",
	"mario.rules_dir":             "MARIO_RULES_DIR",
	"mario.notifications":         "MARIO_NOTIFICATIONS",
	"mario.strict_content_lookup": "MARIO_STRICT_CONTENT_LOOKUP",
	"mario.temp_dir":              "MARIO_TEMP_DIR",
}

// LoadConfig loads configuration using viper.
// Environment > config file > defaults precedence; CLI flags are applied by
// the caller. An empty configPath reads DefaultConfigFile when it exists.
func LoadConfig(configPath string) (*Config, error) {
	def := Default()
	v := viper.New()

	v.SetDefault("mario.rules_file", def.RulesFile)
	v.SetDefault("mario.rules_dir", def.RulesDir)
	v.SetDefault("mario.notifications", def.Notifications)
	v.SetDefault("mario.strict_content_lookup", def.StrictContentLookup)
	v.SetDefault("mario.temp_dir", def.TempDir)
	v.SetDefault("http.user_agent", def.UserAgent)
	v.SetDefault("journal.enabled", def.Journal.Enabled)
	v.SetDefault("journal.db_url", def.Journal.DBURL)
	v.SetDefault("serve.host", def.Serve.Host)
	v.SetDefault("serve.port", def.Serve.Port)
	v.SetDefault("serve.max_connections", def.Serve.MaxConnections)
	v.SetDefault("serve.request_timeout", def.Serve.RequestTimeout.String())
	v.SetDefault("serve.max_message_size", def.Serve.MaxMessageSize)

	// MARIO_JOURNAL_DB_URL, MARIO_SERVE_PORT, ...
	v.SetEnvPrefix("MARIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range marioEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath == "" {
		if _, err := os.Stat(DefaultConfigFile()); err == nil {
			configPath = DefaultConfigFile()
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		RulesFile:           v.GetString("mario.rules_file"),
		RulesDir:            v.GetString("mario.rules_dir"),
		Notifications:       v.GetBool("mario.notifications"),
		StrictContentLookup: v.GetBool("mario.strict_content_lookup"),
		TempDir:             v.GetString("mario.temp_dir"),
		UserAgent:           v.GetString("http.user_agent"),
		Journal: JournalConfig{
			Enabled: v.GetBool("journal.enabled"),
			DBURL:   v.GetString("journal.db_url"),
		},
		Serve: ServeConfig{
			Host:           v.GetString("serve.host"),
			Port:           v.GetInt("serve.port"),
			MaxConnections: v.GetInt("serve.max_connections"),
			RequestTimeout: v.GetDuration("serve.request_timeout"),
			MaxMessageSize: v.GetInt("serve.max_message_size"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive limits.
func validateConfig(cfg *Config) error {
	if cfg.RulesFile == "" {
		return errors.New("mario.rules_file must not be empty")
	}
	if cfg.Serve.Port <= 0 || cfg.Serve.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Serve.Port)
	}
	if cfg.Serve.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.Serve.MaxConnections)
	}
	if cfg.Serve.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Serve.RequestTimeout)
	}
	if cfg.Serve.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive, got %d", cfg.Serve.MaxMessageSize)
	}
	if cfg.Journal.Enabled && cfg.Journal.DBURL == "" {
		return errors.New("journal.db_url must be set when the journal is enabled")
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("hmac_secret") || v.IsSet("serve.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use MARIO_HMAC_SECRET environment variable)")
	}
	return nil
}
