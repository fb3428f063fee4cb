package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("Expected default driver sqlite, got %s", cfg.DBDriver)
	}
	if cfg.RefreshInterval != 5*time.Second {
		t.Errorf("Expected default refresh interval 5s, got %s", cfg.RefreshInterval)
	}
	if AppConfig != cfg {
		t.Errorf("AppConfig should point at the loaded config")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REFRESH_INTERVAL", "30s")
	t.Setenv("QUOTE_API_KEY", "secret")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if cfg.RefreshInterval != 30*time.Second {
		t.Errorf("Expected refresh interval 30s, got %s", cfg.RefreshInterval)
	}
	if cfg.QuoteAPIKey != "secret" {
		t.Errorf("Expected quote api key from env, got %q", cfg.QuoteAPIKey)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("Expected redis db 3, got %d", cfg.RedisDB)
	}
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"driver":   {"DB_DRIVER", "oracle"},
		"interval": {"REFRESH_INTERVAL", "0s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("Expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestOpenDatabase_SQLite(t *testing.T) {
	cfg := &Config{DBDriver: "sqlite", SQLitePath: t.TempDir() + "/test.db", Environment: "production"}
	db, err := OpenDatabase(cfg)
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	defer CloseDB(db)

	var one int
	if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil || one != 1 {
		t.Fatalf("Expected SELECT 1 to return 1, got %d (%v)", one, err)
	}
}

func TestMaskHost(t *testing.T) {
	if got := maskHost("db"); got != "***" {
		t.Errorf("short host: got %s", got)
	}
	if got := maskHost("localhost"); got != "loc***" {
		t.Errorf("medium host: got %s", got)
	}
	if got := maskHost("abcdefgh.example-cluster.internal"); got != "abcdefgh***r.internal" {
		t.Errorf("long host: got %s", got)
	}
}
