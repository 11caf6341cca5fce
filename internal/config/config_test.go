package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
[server]
port = 8000
host = "127.0.0.1"

[logging]
level = "info"
format = "console"

[storage]
type = "sqlite"
sqlite_base_path = "data"
`

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Server.StaticFilesDir != "www" {
		t.Errorf("StaticFilesDir = %q, want %q", cfg.Server.StaticFilesDir, "www")
	}
	if cfg.Storage.MaxBubblesInAPI != 500 {
		t.Errorf("MaxBubblesInAPI = %d, want 500", cfg.Storage.MaxBubblesInAPI)
	}
	if cfg.Storage.CleanupIntervalMin != 60 {
		t.Errorf("CleanupIntervalMin = %d, want 60", cfg.Storage.CleanupIntervalMin)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameBytes != 1280 {
		t.Errorf("FrameBytes = %d, want 1280", cfg.Audio.FrameBytes)
	}
	if cfg.Audio.ChunkMs != 200 {
		t.Errorf("ChunkMs = %d, want 200", cfg.Audio.ChunkMs)
	}
	if cfg.Audio.MicPipePath == "" || cfg.Audio.SystemPipePath == "" {
		t.Error("expected default capture pipe paths to be set")
	}
	if cfg.OpenAI.BaseURL != "https://api.openai.com" {
		t.Errorf("BaseURL = %q, want default", cfg.OpenAI.BaseURL)
	}
	if cfg.OpenAI.TranscriptionSessionPath != "/v1/realtime/transcription_sessions" {
		t.Errorf("TranscriptionSessionPath = %q, want default", cfg.OpenAI.TranscriptionSessionPath)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad storage type", func(c *Config) { c.Storage.Type = "postgres" }},
		{"missing sqlite path", func(c *Config) { c.Storage.SQLiteBasePath = "" }},
		{"negative retention", func(c *Config) { c.Storage.RetentionDays = -1 }},
		{"bad sample rate", func(c *Config) { c.Audio.SampleRate = 4000 }},
		{"bad channels", func(c *Config) { c.Audio.Channels = 3 }},
		{"threshold above one", func(c *Config) { c.Suppression.MicSimilarityThreshold = 1.5 }},
		{"negative scan depth", func(c *Config) { c.Suppression.ScanDepth = -1 }},
		{"bad assistant provider", func(c *Config) {
			c.Assistant.Enabled = true
			c.Assistant.Provider = "llama"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadWithFallbackPrefersExplicitPath(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback failed: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
}

func TestLoadWithFallbackMissingFile(t *testing.T) {
	if _, err := LoadWithFallback(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestSuppressionConfigParsed(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
[suppression]
mic_similarity_threshold = 0.5
scan_depth = 20
phonetic_matching = true
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Suppression.MicSimilarityThreshold != 0.5 {
		t.Errorf("MicSimilarityThreshold = %f, want 0.5", cfg.Suppression.MicSimilarityThreshold)
	}
	if cfg.Suppression.ScanDepth != 20 {
		t.Errorf("ScanDepth = %d, want 20", cfg.Suppression.ScanDepth)
	}
	if !cfg.Suppression.PhoneticMatching {
		t.Error("PhoneticMatching = false, want true")
	}
}
