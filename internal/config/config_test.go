package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(filepath.Join(dir, "nope", "config.json"))

	cfg := m.Load()
	if cfg.LLMProvider != "groq" {
		t.Errorf("LLMProvider = %q, want groq", cfg.LLMProvider)
	}
	if cfg.LLMRequestDelay != 2 {
		t.Errorf("LLMRequestDelay = %v, want 2", cfg.LLMRequestDelay)
	}
	if len(cfg.ActiveScrapers) != 1 || cfg.ActiveScrapers[0] != "discussion-forum" {
		t.Errorf("ActiveScrapers = %v, want [discussion-forum]", cfg.ActiveScrapers)
	}
}

func TestLoadMalformedFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	cfg := m.Load()
	if cfg.LLMProvider != "groq" {
		t.Errorf("LLMProvider = %q, want groq on malformed file", cfg.LLMProvider)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")
	m := NewManager(path)

	cfg := Default()
	cfg.GroqAPIKey = "secret-key"
	cfg.Subreddits = []string{"saas"}
	if err := m.Set(cfg); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	reloaded := NewManager(path)
	got := reloaded.Load()
	if got.GroqAPIKey != "secret-key" {
		t.Errorf("GroqAPIKey = %q, want secret-key", got.GroqAPIKey)
	}
	if len(got.Subreddits) != 1 || got.Subreddits[0] != "saas" {
		t.Errorf("Subreddits = %v, want [saas]", got.Subreddits)
	}
}

func TestCredentialConfigWinsOverEnv(t *testing.T) {
	m := NewManager("")
	os.Setenv("TEST_CREDENTIAL_KEY", "from-env")
	defer os.Unsetenv("TEST_CREDENTIAL_KEY")

	if got := m.Credential("from-config", "TEST_CREDENTIAL_KEY"); got != "from-config" {
		t.Errorf("Credential() = %q, want from-config", got)
	}
}

func TestCredentialFallsBackToEnv(t *testing.T) {
	m := NewManager("")
	os.Setenv("TEST_CREDENTIAL_KEY", "from-env")
	defer os.Unsetenv("TEST_CREDENTIAL_KEY")

	if got := m.Credential("", "TEST_CREDENTIAL_KEY"); got != "from-env" {
		t.Errorf("Credential() = %q, want from-env", got)
	}
}

func TestDefaultPathUnderHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	path := DefaultPath()
	if filepath.Dir(filepath.Dir(path)) != filepath.Clean(home) {
		t.Errorf("DefaultPath() = %q, want under %q", path, home)
	}
}
