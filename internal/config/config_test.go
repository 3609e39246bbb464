package config

import (
	"strings"
	"testing"
	"time"
)

// setRequired sets the two credentials every Load call needs.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultWindow != 100 || cfg.MaxWindow != 500 {
		t.Errorf("window defaults: %d/%d", cfg.DefaultWindow, cfg.MaxWindow)
	}
	if cfg.ChunkSize != 20 || cfg.TopReplies != 5 {
		t.Errorf("policy defaults: chunk=%d top=%d", cfg.ChunkSize, cfg.TopReplies)
	}
	if cfg.SummaryTimeout != 5*time.Minute {
		t.Errorf("SummaryTimeout = %v", cfg.SummaryTimeout)
	}
	if cfg.Port != "8080" || cfg.DBPath != "summary.db" {
		t.Errorf("server defaults: port=%q db=%q", cfg.Port, cfg.DBPath)
	}
	if cfg.LogLevel != "info" || cfg.GinMode != "release" {
		t.Errorf("log/gin defaults: %q %q", cfg.LogLevel, cfg.GinMode)
	}
	if cfg.OTEL.Enabled {
		t.Errorf("OTEL must default to disabled")
	}
	if cfg.GeminiModel != "" {
		t.Errorf("GeminiModel default must be empty, got %q", cfg.GeminiModel)
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "key")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TELEGRAM_TOKEN") {
		t.Fatalf("want TELEGRAM_TOKEN error, got %v", err)
	}

	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("want GEMINI_API_KEY error, got %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_WINDOW", "50")
	t.Setenv("MAX_WINDOW", "200")
	t.Setenv("CHUNK_SIZE", "10")
	t.Setenv("SUMMARY_TIMEOUT", "90s")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "weird")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultWindow != 50 || cfg.MaxWindow != 200 || cfg.ChunkSize != 10 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.SummaryTimeout != 90*time.Second {
		t.Errorf("SummaryTimeout = %v", cfg.SummaryTimeout)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("warning must normalize to warn, got %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Errorf("unknown gin mode must fall back to release, got %q", cfg.GinMode)
	}
}

func TestLoad_DefaultWindowClampedToMax(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_WINDOW", "300")
	t.Setenv("MAX_WINDOW", "200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultWindow != 200 {
		t.Fatalf("DefaultWindow = %d, want clamp to 200", cfg.DefaultWindow)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"CHUNK_SIZE":              "0",
		"MAX_WINDOW":              "-1",
		"TOP_REPLIES":             "0",
		"RATE_BURST":              "0",
		"OTEL_TRACES_SAMPLER_ARG": "1.5",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, val)
			}
		})
	}
}

func TestLoad_BadValuesFallBackToDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_WINDOW", "not-a-number")
	t.Setenv("SUMMARY_TIMEOUT", "soon")
	t.Setenv("LOG_PRETTY", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultWindow != 100 || cfg.SummaryTimeout != 5*time.Minute || cfg.LogPretty {
		t.Fatalf("unparseable values must keep defaults: %+v", cfg)
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad must panic on invalid config")
		}
	}()
	_ = MustLoad()
}
