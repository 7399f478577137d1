package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Fetch.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Fetch.Workers)
	}
	if cfg.Fetch.BatchSize != 50 {
		t.Errorf("expected batch_size 50, got %d", cfg.Fetch.BatchSize)
	}
	if cfg.Fetch.BaseDelay != time.Second {
		t.Errorf("expected base_delay 1s, got %s", cfg.Fetch.BaseDelay)
	}
	if cfg.Fetch.JitterMin != 500*time.Millisecond || cfg.Fetch.JitterMax != 1500*time.Millisecond {
		t.Errorf("unexpected jitter range %s..%s", cfg.Fetch.JitterMin, cfg.Fetch.JitterMax)
	}
	if len(cfg.Prepare.ExcludePatterns) != 5 {
		t.Errorf("expected 5 exclude patterns, got %d", len(cfg.Prepare.ExcludePatterns))
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestDefaultMatchesEmbeddedFile(t *testing.T) {
	fromFile, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	builtIn := Default()

	if fromFile.Fetch != builtIn.Fetch {
		t.Errorf("fetch section differs: file %+v, built-in %+v", fromFile.Fetch, builtIn.Fetch)
	}
	if fromFile.Steam != builtIn.Steam {
		t.Errorf("steam section differs: file %+v, built-in %+v", fromFile.Steam, builtIn.Steam)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
fetch:
  workers: 8
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Fetch.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Fetch.Workers)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Fetch.BatchSize != 50 {
		t.Errorf("expected default batch_size, got %d", cfg.Fetch.BatchSize)
	}
	if cfg.Embedding.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Embedding.OllamaURL)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"zero workers":    "fetch:\n  workers: 0\n",
		"zero batch":      "fetch:\n  batch_size: 0\n",
		"negative rate":   "fetch:\n  rate_limit: -1\n",
		"inverted jitter": "fetch:\n  jitter_min: 2s\n  jitter_max: 1s\n",
		"zero top_k":      "recommend:\n  top_k: 0\n",
	}
	for name, data := range cases {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Recommend.TopK != 5 {
		t.Errorf("expected top_k 5 from file, got %d", cfg.Recommend.TopK)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.RateLimit != 1 {
		t.Errorf("expected default rate_limit 1, got %g", cfg.Fetch.RateLimit)
	}
}

func TestResolveExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.LedgerPath() != filepath.Join("/custom/path", "processed_ids.txt") {
		t.Errorf("unexpected ledger path %q", cfg.LedgerPath())
	}
	if cfg.DBPath() != filepath.Join("/custom/path", "steam_games.db") {
		t.Errorf("unexpected db path %q", cfg.DBPath())
	}
}

func TestSteamAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Steam.APIKeyEnv = "GAMEREC_TEST_STEAM_KEY"
	t.Setenv("GAMEREC_TEST_STEAM_KEY", "secret")
	if cfg.SteamAPIKey() != "secret" {
		t.Errorf("expected key from env, got %q", cfg.SteamAPIKey())
	}
}
