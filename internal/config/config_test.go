package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"STORE_DRIVER", "EMBEDDING_DIM", "CACHE_DURATION", "MATCH_TOLERANCE",
		"MATCH_INDEX", "IMAGE_WIDTH", "IMAGE_HEIGHT", "VISION_DRIVER", "API_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Store.Driver != "postgres" {
		t.Errorf("expected default driver postgres, got %q", cfg.Store.Driver)
	}
	if cfg.Store.EmbeddingDim != 128 {
		t.Errorf("expected default embedding dim 128, got %d", cfg.Store.EmbeddingDim)
	}
	if cfg.Cache.TTL != 60*time.Second {
		t.Errorf("expected default TTL 60s, got %v", cfg.Cache.TTL)
	}
	if cfg.Match.Tolerance != 0.6 {
		t.Errorf("expected default tolerance 0.6, got %v", cfg.Match.Tolerance)
	}
	if cfg.Match.Index != "linear" {
		t.Errorf("expected default index linear, got %q", cfg.Match.Index)
	}
	if cfg.Image.Width != 160 || cfg.Image.Height != 120 {
		t.Errorf("expected default resolution 160x120, got %dx%d", cfg.Image.Width, cfg.Image.Height)
	}
	if cfg.API.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.API.Port)
	}
}

func TestLoad_CacheDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", 60 * time.Second},
		{"120", 120 * time.Second},
		{"0", 0},
		{"90s", 90 * time.Second},
		{"1m30s", 90 * time.Second},
		{"-5", 60 * time.Second},
		{"soon", 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("CACHE_DURATION", tt.value)
			cfg := Load()
			if cfg.Cache.TTL != tt.expected {
				t.Errorf("CACHE_DURATION=%q: got %v, want %v", tt.value, cfg.Cache.TTL, tt.expected)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("MATCH_TOLERANCE", "0.45")
	t.Setenv("MATCH_INDEX", "hnsw")
	t.Setenv("IMAGE_WIDTH", "320")
	t.Setenv("VERIFY_RATE_LIMIT", "2.5")
	t.Setenv("LOG_DEBUG", "true")

	cfg := Load()

	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected driver to be lowercased to sqlite, got %q", cfg.Store.Driver)
	}
	if cfg.Match.Tolerance != 0.45 {
		t.Errorf("expected tolerance 0.45, got %v", cfg.Match.Tolerance)
	}
	if cfg.Match.Index != "hnsw" {
		t.Errorf("expected index hnsw, got %q", cfg.Match.Index)
	}
	if cfg.Image.Width != 320 {
		t.Errorf("expected width 320, got %d", cfg.Image.Width)
	}
	if cfg.API.VerifyRateLimit != 2.5 {
		t.Errorf("expected rate limit 2.5, got %v", cfg.API.VerifyRateLimit)
	}
	if !cfg.Logging.Debug {
		t.Error("expected debug logging enabled")
	}
}

func TestEnvInt_InvalidFallsBack(t *testing.T) {
	tests := []struct {
		value    string
		expected int
	}{
		{"", 7},
		{"12", 12},
		{"0", 7},
		{"-3", 7},
		{"abc", 7},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("FACE_REGISTRY_TEST_INT", tt.value)
			if got := envInt("FACE_REGISTRY_TEST_INT", 7); got != tt.expected {
				t.Errorf("envInt(%q) = %d, want %d", tt.value, got, tt.expected)
			}
		})
	}
}

func TestEnvFloat_NegativeFallsBack(t *testing.T) {
	t.Setenv("FACE_REGISTRY_TEST_FLOAT", "-0.1")
	if got := envFloat("FACE_REGISTRY_TEST_FLOAT", 0.6); got != 0.6 {
		t.Errorf("envFloat(-0.1) = %v, want 0.6", got)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	cfg := Load()
	if len(cfg.API.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.API.AllowedOrigins)
	}
	if cfg.API.AllowedOrigins[0] != "https://a.example" || cfg.API.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.API.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		tolerance string
		index     string
		wantErr   bool
	}{
		{"", "", false},
		{"0.45", "hnsw", false},
		{"0", "linear", true},
		{"-0.2", "linear", true},
		{"close", "linear", true},
		{"0.6", "hsnw", true},
	}

	for _, tt := range tests {
		t.Run(tt.tolerance+"/"+tt.index, func(t *testing.T) {
			t.Setenv("MATCH_TOLERANCE", tt.tolerance)
			t.Setenv("MATCH_INDEX", tt.index)
			err := Load().Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected an error for tolerance=%q index=%q", tt.tolerance, tt.index)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
