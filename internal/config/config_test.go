package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bcnelson/agent-access-manager/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: "test.db"},
		Policy:   config.PolicyConfig{MaxExtendDays: 30},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"valid", func(c *config.Config) {}, ""},
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"empty dsn", func(c *config.Config) { c.Database.DSN = "" }, "DB_DSN"},
		{"zero extend limit", func(c *config.Config) { c.Policy.MaxExtendDays = 0 }, "MAX_EXTEND_DAYS"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, "LOG_LEVEL"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "LOG_FORMAT"},
		{"oidc without issuer", func(c *config.Config) { c.OIDC.Enabled = true }, "OIDC_ISSUER_URL"},
		{"oidc with short secret", func(c *config.Config) {
			c.OIDC = config.OIDCConfig{
				Enabled:       true,
				IssuerURL:     "https://idp.example.com",
				ClientID:      "client",
				ClientSecret:  "secret",
				RedirectURL:   "https://aam.example.com/auth/callback",
				SessionSecret: "too-short",
			}
		}, "OIDC_SESSION_SECRET"},
		{"oidc complete", func(c *config.Config) {
			c.OIDC = config.OIDCConfig{
				Enabled:       true,
				IssuerURL:     "https://idp.example.com",
				ClientID:      "client",
				ClientSecret:  "secret",
				RedirectURL:   "https://aam.example.com/auth/callback",
				SessionSecret: strings.Repeat("ab", 32),
			}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestGetSessionSecretBytes(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantLen int
		wantErr bool
	}{
		{"hex", strings.Repeat("0f", 32), 32, false},
		{"raw", strings.Repeat("k", 32), 32, false},
		{"empty", "", 0, true},
		{"wrong length", "short", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.OIDCConfig{SessionSecret: tt.secret}
			got, err := c.GetSessionSecretBytes()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("MAX_EXTEND_DAYS", "90")
	t.Setenv("OIDC_ALLOWED_DOMAINS", " Example.com ,corp.example.com")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Database.Driver != "postgres" || cfg.Policy.MaxExtendDays != 90 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	domains := cfg.OIDC.GetAllowedDomains()
	if len(domains) != 2 || domains[0] != "example.com" || domains[1] != "corp.example.com" {
		t.Errorf("allowed domains = %v", domains)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}
}

func TestLoadDefaultSQLiteDSN(t *testing.T) {
	for _, key := range []string{"DB_DRIVER", "DB_DSN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Fatalf("driver = %q, want sqlite3", cfg.Database.Driver)
	}
	for _, param := range []string{"_txlock=immediate", "_busy_timeout=", "_foreign_keys=on"} {
		if !strings.Contains(cfg.Database.DSN, param) {
			t.Errorf("default DSN %q is missing %s", cfg.Database.DSN, param)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("AAM_TEST_ENV_FILE=from-file\n"), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}
	t.Setenv("AAM_TEST_ENV_FILE", "")
	os.Unsetenv("AAM_TEST_ENV_FILE")

	if err := config.LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("AAM_TEST_ENV_FILE"); got != "from-file" {
		t.Errorf("AAM_TEST_ENV_FILE = %q", got)
	}

	if err := config.LoadEnvFile(""); err != nil {
		t.Errorf("empty path should be a no-op, got %v", err)
	}
	if err := config.LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
