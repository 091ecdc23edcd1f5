package config

import (
	"log/slog"
	"testing"
	"time"
)

// TestFromEnv_Defaults tests the fallbacks with an empty environment.
func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"TIMETABLE_ENV", "TIMETABLE_STORAGE", "TIMETABLE_TOKEN_TTL", "TIMETABLE_SLOW_QUERY_MS", "TIMETABLE_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Env != "development" || cfg.Storage != StorageSQLite {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenTTL != 12*time.Hour || cfg.SlowQuery != 50*time.Millisecond {
		t.Errorf("unexpected duration defaults: ttl=%v slow=%v", cfg.TokenTTL, cfg.SlowQuery)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

// TestFromEnv_Overrides tests parsing of typed values.
func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TIMETABLE_STORAGE", "Postgres")
	t.Setenv("TIMETABLE_TOKEN_TTL", "30m")
	t.Setenv("TIMETABLE_SLOW_QUERY_MS", "5")
	t.Setenv("TIMETABLE_RATE_LIMIT", "10")
	t.Setenv("TIMETABLE_LOG_LEVEL", "debug")

	cfg := FromEnv()
	if cfg.Storage != StoragePostgres {
		t.Errorf("expected postgres, got %q", cfg.Storage)
	}
	if cfg.TokenTTL != 30*time.Minute || cfg.SlowQuery != 5*time.Millisecond || cfg.RateLimitPerMin != 10 {
		t.Errorf("unexpected parsed values: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
}

// TestFromEnv_InvalidFallsBack tests that malformed values keep the default.
func TestFromEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("TIMETABLE_TOKEN_TTL", "soon")
	t.Setenv("TIMETABLE_RATE_LIMIT", "many")
	cfg := FromEnv()
	if cfg.TokenTTL != 12*time.Hour || cfg.RateLimitPerMin != 120 {
		t.Errorf("expected fallbacks, got ttl=%v rate=%d", cfg.TokenTTL, cfg.RateLimitPerMin)
	}
}

// TestApp_Validate tests rejected configurations.
func TestApp_Validate(t *testing.T) {
	base := App{Storage: StorageMemory, JWTKey: "k", OutboxInterval: time.Minute, RateLimitPerMin: 1}
	tests := []struct {
		name    string
		mutate  func(a *App)
		wantErr bool
	}{
		{"valid", func(a *App) {}, false},
		{"unknown storage", func(a *App) { a.Storage = "mongo" }, true},
		{"dev key in production", func(a *App) { a.Env = "production"; a.JWTKey = devJWTKey }, true},
		{"zero interval", func(a *App) { a.OutboxInterval = 0 }, true},
		{"zero rate", func(a *App) { a.RateLimitPerMin = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			tt.mutate(&a)
			if err := a.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
