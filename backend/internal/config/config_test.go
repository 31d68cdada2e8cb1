package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")
	os.Unsetenv("DB_DRIVER")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %s", cfg.Database.Driver)
	}
	if cfg.GetServerAddr() != "0.0.0.0:8080" {
		t.Errorf("Unexpected server addr %s", cfg.GetServerAddr())
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
port = 9090
environment = "staging"

[database]
driver = "postgres"
host = "db.internal"
name = "tasks"

[cache]
task_ttl = "30s"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("SERVER_PORT", "7070")
	defer os.Unsetenv("SERVER_PORT")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Expected env to override port, got %d", cfg.Server.Port)
	}
	if cfg.Server.Environment != "staging" {
		t.Errorf("Expected environment from file, got %s", cfg.Server.Environment)
	}
	if cfg.Cache.TaskTTL != 30*time.Second {
		t.Errorf("Expected task ttl 30s, got %v", cfg.Cache.TaskTTL)
	}

	expectedDSN := "host=db.internal port=5432 user=postgres password= dbname=tasks sslmode=disable"
	if cfg.GetDSN() != expectedDSN {
		t.Errorf("Expected DSN %q, got %q", expectedDSN, cfg.GetDSN())
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"empty secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"default secret in production", func(c *Config) { c.Server.Environment = "production" }, true},
		{"custom secret in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Auth.JWTSecret = "s3cret"
		}, false},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
