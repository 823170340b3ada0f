package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
)

const (
	testSecretA = "0123456789abcdef0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	testSecretB = "fedcba9876543210fedcba9876543210:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
)

// isolateXDG points the XDG base directories at a fresh temp dir so the
// developer's own config file is never read.
func isolateXDG(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHMACSecrets(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 0 {
			t.Errorf("expected no secrets, got %d", len(secrets))
		}
	})

	t.Run("single secret", func(t *testing.T) {
		t.Setenv("MARIO_HMAC_SECRET", testSecretA)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Errorf("secret_id not found in map")
		}
	})

	t.Run("multiple numbered secrets", func(t *testing.T) {
		t.Setenv("MARIO_HMAC_SECRET_1", testSecretA)
		t.Setenv("MARIO_HMAC_SECRET_2", testSecretB)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("numbering stops at the first gap", func(t *testing.T) {
		t.Setenv("MARIO_HMAC_SECRET_1", testSecretA)
		t.Setenv("MARIO_HMAC_SECRET_3", testSecretB)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
	})

	errCases := []struct {
		name string
		env  map[string]string
	}{
		{"invalid format", map[string]string{"MARIO_HMAC_SECRET": "invalid_format"}},
		{"invalid secret_id length", map[string]string{"MARIO_HMAC_SECRET": "short:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"}},
		{"non-hex secret_id", map[string]string{"MARIO_HMAC_SECRET": "0123456789abcdefGHIJKLMNOPQRSTUV:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"}},
		{"duplicate in numbered secrets", map[string]string{
			"MARIO_HMAC_SECRET_1": testSecretA,
			"MARIO_HMAC_SECRET_2": "0123456789abcdef0123456789abcdef:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w",
		}},
		{"duplicate between single and numbered", map[string]string{
			"MARIO_HMAC_SECRET":   testSecretA,
			"MARIO_HMAC_SECRET_1": testSecretA,
		}},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := HMACSecrets(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		dir := isolateXDG(t)

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if want := filepath.Join(dir, "config", "mario", "mario.plumb"); cfg.RulesFile != want {
			t.Errorf("expected rules file %s, got %s", want, cfg.RulesFile)
		}
		if want := filepath.Join(dir, "config", "mario", "rules.d"); cfg.RulesDir != want {
			t.Errorf("expected rules dir %s, got %s", want, cfg.RulesDir)
		}
		if !cfg.Notifications {
			t.Error("expected notifications enabled")
		}
		if cfg.StrictContentLookup {
			t.Error("expected lenient content lookup")
		}
		if want := "sqlite://" + filepath.Join(dir, "data", "mario", "journal.db"); cfg.Journal.DBURL != want {
			t.Errorf("expected db url %s, got %s", want, cfg.Journal.DBURL)
		}
		if cfg.Serve.Host != "127.0.0.1" {
			t.Errorf("expected host 127.0.0.1, got %s", cfg.Serve.Host)
		}
		if cfg.Serve.Port != 50515 {
			t.Errorf("expected port 50515, got %d", cfg.Serve.Port)
		}
		if cfg.Serve.MaxConnections != 100 {
			t.Errorf("expected max_connections 100, got %d", cfg.Serve.MaxConnections)
		}
		if cfg.Serve.RequestTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.Serve.RequestTimeout)
		}
		if cfg.Serve.MaxMessageSize != 1048576 {
			t.Errorf("expected max_message_size 1048576, got %d", cfg.Serve.MaxMessageSize)
		}
		if cfg.UserAgent == "" {
			t.Error("expected a default user agent")
		}
	})

	t.Run("environment override", func(t *testing.T) {
		isolateXDG(t)
		t.Setenv("MARIO_SERVE_PORT", "9999")
		t.Setenv("MARIO_RULES_FILE", "/etc/mario.plumb")
		t.Setenv("MARIO_NOTIFICATIONS", "false")
		t.Setenv("MARIO_JOURNAL_ENABLED", "false")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Serve.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.Serve.Port)
		}
		if cfg.RulesFile != "/etc/mario.plumb" {
			t.Errorf("expected rules file /etc/mario.plumb, got %s", cfg.RulesFile)
		}
		if cfg.Notifications {
			t.Error("expected notifications disabled")
		}
		if cfg.Journal.Enabled {
			t.Error("expected journal disabled")
		}
	})

	t.Run("default config file is read when present", func(t *testing.T) {
		isolateXDG(t)
		if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
			t.Fatal(err)
		}
		writeConfig(t, ConfigDir(), "mario:\n  strict_content_lookup: true\n")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if !cfg.StrictContentLookup {
			t.Error("expected strict content lookup from default config file")
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		isolateXDG(t)
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	invalid := []struct {
		name string
		key  string
		val  string
	}{
		{"port above range", "MARIO_SERVE_PORT", "70000"},
		{"port zero", "MARIO_SERVE_PORT", "0"},
		{"negative max_connections", "MARIO_SERVE_MAX_CONNECTIONS", "-1"},
		{"zero message size", "MARIO_SERVE_MAX_MESSAGE_SIZE", "0"},
		{"zero timeout", "MARIO_SERVE_REQUEST_TIMEOUT", "0s"},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			isolateXDG(t)
			t.Setenv(tc.key, tc.val)
			if _, err := LoadConfig(""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig_EmptyRulesFile(t *testing.T) {
	isolateXDG(t)
	path := writeConfig(t, t.TempDir(), "mario:\n  rules_file: \"\"\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected validation error for empty rules file")
	}
}

func TestParseHMACSecretWithID(t *testing.T) {
	t.Run("valid format", func(t *testing.T) {
		secretID, secret, err := ParseHMACSecretWithID(testSecretA)
		if err != nil {
			t.Fatalf("ParseHMACSecretWithID failed: %v", err)
		}
		if secretID != "0123456789abcdef0123456789abcdef" {
			t.Errorf("unexpected secret_id: %s", secretID)
		}
		if len(secret) < 32 {
			t.Errorf("secret too short: %d bytes", len(secret))
		}
	})

	tests := []struct {
		name  string
		input string
	}{
		{"missing colon", "0123456789abcdef0123456789abcdef"},
		{"invalid secret_id length", "tooshort:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"},
		{"non-hex chars in secret_id", "0123456789abcdefGHIJKLMNOPQRSTUV:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"},
		{"uppercase hex in secret_id", "0123456789ABCDEF0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"},
		{"invalid base64", "0123456789abcdef0123456789abcdef:not-valid-base64!!!"},
		{"secret too short", "0123456789abcdef0123456789abcdef:c2hvcnQ="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseHMACSecretWithID(tt.input); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}
