// Package config loads and saves the pipeline's JSON configuration file,
// mirroring the original implementation's ConfigManager: a single document
// at a user-home path with sane built-in defaults that is never an error to
// load, even when missing or malformed.
package config

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	pkgconfig "github.com/foundersignal/pipeline/infrastructure/config"
)

// defaultConfigDir and defaultConfigFile mirror the Python original's
// Path.home()/".founder_copilot"/"config.json".
const (
	defaultConfigDir  = ".founder_copilot"
	defaultConfigFile = "config.json"
)

// Config is the full set of recognized keys from SPEC_FULL.md §10.3 / spec §6.
type Config struct {
	LLMProvider      string              `json:"llm_provider"`
	LLMRequestDelay  float64             `json:"llm_request_delay"`
	ActiveScrapers   []string            `json:"active_scrapers"`
	DefaultScraper   string              `json:"default_scraper"`
	StorageProvider  string              `json:"storage_provider"`
	DBPath           string              `json:"db_path"`
	Subreddits       []string            `json:"subreddits"`
	GroqAPIKey       string              `json:"groq_api_key"`
	TavilyAPIKey     string              `json:"tavily_api_key"`
	RedditClientID   string              `json:"reddit_client_id"`
	RedditSecret     string              `json:"reddit_client_secret"`
	RedditUserAgent  string              `json:"reddit_user_agent"`
	OllamaHost       string              `json:"ollama_host"`
	OllamaModel      string              `json:"ollama_model"`
	ApifyAPIToken    string              `json:"apify_api_token"`
	ProductHuntToken string              `json:"product_hunt_token"`
}

// DefaultPath returns $HOME/.founder_copilot/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, defaultConfigDir, defaultConfigFile)
}

// Default returns the built-in default configuration, matching the
// original's _default_config().
func Default() Config {
	return Config{
		LLMProvider:     "groq",
		LLMRequestDelay: 2,
		ActiveScrapers:  []string{"discussion-forum"},
		DefaultScraper:  "discussion-forum",
		StorageProvider: "sqlite",
		DBPath:          filepath.Join(filepath.Dir(DefaultPath()), "pipeline.db"),
		Subreddits:      []string{"saas", "entrepreneur", "startups"},
		RedditUserAgent: "opportunity-discovery/1.0",
		OllamaHost:      "http://localhost:11434",
		OllamaModel:     "llama3",
	}
}

// Manager loads, saves, and serves credential lookups for one config file.
type Manager struct {
	path string
	cfg  Config
}

// NewManager creates a Manager bound to path. Pass "" for DefaultPath().
func NewManager(path string) *Manager {
	if path == "" {
		path = DefaultPath()
	}
	return &Manager{path: path, cfg: Default()}
}

// Load reads the config file, falling back to defaults on any error
// (missing file, malformed JSON) — matching the original's fail-soft
// _load().
func (m *Manager) Load() Config {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.cfg = Default()
		return m.cfg
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		m.cfg = Default()
		return m.cfg
	}

	m.cfg = cfg
	return m.cfg
}

// Save writes the current configuration as pretty-printed JSON, creating
// parent directories as needed.
func (m *Manager) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o600)
}

// Config returns the currently loaded configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Set replaces the in-memory configuration and persists it, matching the
// original's auto-saving set().
func (m *Manager) Set(cfg Config) error {
	m.cfg = cfg
	return m.Save()
}

// Credential resolves a named credential. Per spec §6, "Environment
// variables may supply any credential; the config value wins when both
// present" — envKey is consulted only when the config value is empty.
func (m *Manager) Credential(configValue, envKey string) string {
	if configValue != "" {
		return configValue
	}
	return pkgconfig.GetEnv(envKey, "")
}
