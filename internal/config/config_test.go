package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Webhook.Gateway != "sepay" {
		t.Errorf("webhook.gateway = %q", cfg.Webhook.Gateway)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("idempotency.ttl = %s", cfg.Idempotency.TTL)
	}
	if cfg.Store.Driver != DriverPostgres || cfg.Store.MaxRetries != 5 {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WEBHOOK_SECRET", "from-env")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("WEBHOOK_MAX_BODY_BYTES", "2048")
	t.Setenv("KAFKA_ADDR", "k1:9092, k2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Webhook.Secret != "from-env" || cfg.Store.Driver != DriverMemory {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Idempotency.TTL != 90*time.Minute {
		t.Errorf("ttl = %s", cfg.Idempotency.TTL)
	}
	if cfg.Webhook.MaxBodyBytes != 2048 {
		t.Errorf("max_body_bytes = %d", cfg.Webhook.MaxBodyBytes)
	}
	brokers := cfg.KafkaBrokers()
	if len(brokers) != 2 || brokers[0] != "k1:9092" || brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", brokers)
	}
}

func TestLoadFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := "webhook:\n  gateway: acme\n  secret: from-file\nhttp:\n  addr: \":9000\"\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Webhook.Gateway != "acme" || cfg.Webhook.Secret != "from-file" || cfg.HTTP.Addr != ":9000" {
		t.Errorf("file not applied: %+v", cfg.Webhook)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug from .env", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			PG:      PGConfig{URL: "postgres://x"},
			Webhook: WebhookConfig{Gateway: "sepay", Secret: "s"},
			Store:   StoreConfig{Driver: DriverPostgres, MaxRetries: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory without pg url", mutate: func(c *Config) { c.Store.Driver = DriverMemory; c.PG.URL = "" }},
		{name: "missing secret", mutate: func(c *Config) { c.Webhook.Secret = "" }, wantErr: "webhook.secret"},
		{name: "bad gateway", mutate: func(c *Config) { c.Webhook.Gateway = "a/b" }, wantErr: "webhook.gateway"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: "store.driver"},
		{name: "postgres without url", mutate: func(c *Config) { c.PG.URL = "" }, wantErr: "pg.url"},
		{name: "zero retries", mutate: func(c *Config) { c.Store.MaxRetries = 0 }, wantErr: "max_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore Chdir: %v", err)
		}
	})
}
