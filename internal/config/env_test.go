package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "SESSION_TTL", "ARCHIVE_BACKEND", "REDIS_URL", "PREVIEW_SCALE", "CORS_ALLOWED_ORIGINS", "MAX_UPLOAD_MB", "DEFAULT_OUTPUT_FILENAME"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes != 100<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Binder.SessionTTL != 2*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.Binder.SessionTTL)
	}
	if cfg.Binder.DefaultFilename != "Project_Portfolio.pdf" {
		t.Errorf("DefaultFilename = %q", cfg.Binder.DefaultFilename)
	}
	if cfg.Binder.PreviewScale != 0.3 {
		t.Errorf("PreviewScale = %v", cfg.Binder.PreviewScale)
	}
	if cfg.Archive.Backend != "none" || cfg.Store.RedisURL != "" {
		t.Errorf("Archive = %+v, Store = %+v", cfg.Archive, cfg.Store)
	}
	if d := cmp.Diff([]string{"*"}, cfg.Server.AllowedOrigins); d != "" {
		t.Errorf("AllowedOrigins (-want +got):\n%s", d)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("ARCHIVE_BACKEND", "S3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("PREVIEW_SCALE", "not-a-number")
	t.Setenv("MAX_UPLOAD_MB", "5")

	cfg := FromEnv()
	if cfg.Server.Port != "9000" || cfg.Binder.SessionTTL != 30*time.Minute {
		t.Errorf("Server = %+v, Binder = %+v", cfg.Server, cfg.Binder)
	}
	if cfg.Archive.Backend != "s3" {
		t.Errorf("Backend = %q", cfg.Archive.Backend)
	}
	if cfg.Binder.PreviewScale != 0.3 {
		t.Errorf("bad float should fall back, got %v", cfg.Binder.PreviewScale)
	}
	if cfg.Server.MaxUploadBytes != 5<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.Server.MaxUploadBytes)
	}
	if d := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins); d != "" {
		t.Errorf("AllowedOrigins (-want +got):\n%s", d)
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "TRUE": true, " yes ": true, "on": true, "0": false, "": false, "nope": false} {
		if got := parseBool(in); got != want {
			t.Errorf("parseBool(%q) = %v", in, got)
		}
	}
}
