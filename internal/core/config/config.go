// Package config provides configuration management for mario.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/solatis/mario/internal/capability"
	"github.com/solatis/mario/internal/types"
)

// Config is the complete mario configuration.
type Config struct {
	RulesFile           string
	RulesDir            string
	Notifications       bool
	StrictContentLookup bool
	TempDir             string
	UserAgent           string
	Journal             JournalConfig
	Serve               ServeConfig
}

// JournalConfig controls the dispatch journal.
type JournalConfig struct {
	Enabled bool
	DBURL   string
}

// ServeConfig holds configuration for the gRPC plumbing service.
type ServeConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	MaxMessageSize int
}

// ConfigDir returns $XDG_CONFIG_HOME/mario.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "mario")
}

// DataDir returns $XDG_DATA_HOME/mario.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "mario")
}

// DefaultConfigFile returns the config file read when none is given.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		RulesFile:     filepath.Join(ConfigDir(), "mario.plumb"),
		RulesDir:      filepath.Join(ConfigDir(), "rules.d"),
		Notifications: true,
		UserAgent:     capability.DefaultUserAgent,
		Journal: JournalConfig{
			Enabled: true,
			DBURL:   "sqlite://" + filepath.Join(DataDir(), "journal.db"),
		},
		Serve: ServeConfig{
			Host:           "127.0.0.1",
			Port:           50515,
			MaxConnections: 100,
			RequestTimeout: 30 * time.Second,
			MaxMessageSize: types.DefaultMaxMessageSize,
		},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports MARIO_HMAC_SECRET (single) and MARIO_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are 32 hex chars matching the API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check MARIO_HMAC_SECRET and MARIO_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	if val := os.Getenv("MARIO_HMAC_SECRET"); val != "" {
		if err := add("MARIO_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("MARIO_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lowercase hex chars.
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
