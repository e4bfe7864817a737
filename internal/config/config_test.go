package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Schedule.HorizonDays != 14 {
		t.Errorf("Schedule.HorizonDays = %d, want 14", cfg.Schedule.HorizonDays)
	}
	if cfg.Schedule.Timezone != "Asia/Riyadh" {
		t.Errorf("Schedule.Timezone = %q, want Asia/Riyadh", cfg.Schedule.Timezone)
	}
	if cfg.RateLimit.AuthWindow != 15*time.Minute {
		t.Errorf("RateLimit.AuthWindow = %v, want 15m", cfg.RateLimit.AuthWindow)
	}
	if !cfg.Auth.CookieSecure {
		t.Error("Auth.CookieSecure should default to true")
	}
}

func TestLoad_PrefixedAndPlainKeys(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("PORT", "9090")
	t.Setenv("SCHEDULE_HORIZON_DAYS", "21")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Schedule.HorizonDays != 21 {
		t.Errorf("Schedule.HorizonDays = %d, want 21", cfg.Schedule.HorizonDays)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("Server.CORSOrigins = %v, want 2 entries", cfg.Server.CORSOrigins)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "JWT_SECRET=file-secret-0123456789\nDB_FILE=/tmp/from-file.db\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("DB_FILE")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/from-file.db" {
		t.Errorf("Database.Path = %q, want /tmp/from-file.db", cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080"},
			Database: DatabaseConfig{Path: "x.db"},
			Auth: AuthConfig{
				JWTSecret:  "0123456789abcdef",
				TokenTTL:   time.Hour,
				CookieName: "token",
			},
			Schedule:  ScheduleConfig{Timezone: "UTC", HorizonDays: 14},
			RateLimit: RateLimitConfig{AuthAttempts: 5, AuthWindow: time.Minute, HTTPPerMinute: 60},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "zero horizon", mutate: func(c *Config) { c.Schedule.HorizonDays = 0 }, wantErr: true},
		{name: "admin email without password", mutate: func(c *Config) { c.Auth.AdminEmail = "a@b.c" }, wantErr: true},
		{name: "telegram without chat", mutate: func(c *Config) { c.Telegram.Token = "t" }, wantErr: true},
		{name: "zero auth limit", mutate: func(c *Config) { c.RateLimit.AuthAttempts = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
