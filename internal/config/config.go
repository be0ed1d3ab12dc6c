// Package config loads runtime configuration: a .env file for local
// development, a JSON settings file under the user's home, and a
// providers.yaml describing which model providers are available.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

// Settings is everything the service reads at startup. API keys may be
// set here or through the environment; the environment wins.
type Settings struct {
	Provider ProviderSettings `json:"provider"`
	Engine   EngineSettings   `json:"engine"`
	Storage  StorageSettings  `json:"storage"`
	Telegram TelegramSettings `json:"telegram"`
	Google   GoogleSettings   `json:"google"`
}

type ProviderSettings struct {
	Provider string            `json:"provider"` // "openai", "anthropic"
	Model    string            `json:"model"`
	APIKey   string            `json:"api_key"`
	APIKeys  map[string]string `json:"api_keys,omitempty"` // per-provider keys
}

type EngineSettings struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type StorageSettings struct {
	BaseURL string `json:"base_url"` // empty means in-memory
	APIKey  string `json:"api_key"`
	Table   string `json:"table"`
}

type TelegramSettings struct {
	Enabled        bool    `json:"enabled"`
	Token          string  `json:"token"`
	AllowedUserIDs []int64 `json:"allowed_user_ids"`
}

type GoogleSettings struct {
	// Per-owner OAuth tokens are resolved elsewhere; this is the
	// service-level fallback for single-user deployments.
	AccessToken string `json:"access_token"`
}

// Store reads and writes the settings file with exclusive access.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings *Settings
}

// LoadEnv loads a local .env file when present. Missing files are fine;
// production sets real environment variables.
func LoadEnv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			if err := godotenv.Load(name); err != nil {
				log.Printf("[config] load %s: %v", name, err)
			} else {
				log.Printf("[config] loaded %s", name)
			}
		}
	}
}

// NewStore opens (or initializes) the settings file under ~/.showrun.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	configDir := filepath.Join(homeDir, ".showrun")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return NewStoreAt(filepath.Join(configDir, "settings.json"))
}

// NewStoreAt opens a settings store at an explicit path.
func NewStoreAt(path string) (*Store, error) {
	s := &Store{
		path:     path,
		settings: defaultSettings(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultSettings() *Settings {
	st := &Settings{
		Provider: ProviderSettings{Provider: "openai", Model: "gpt-4o"},
		Storage:  StorageSettings{Table: "workflows"},
	}
	// dev conveniences; the settings file overrides these
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		st.Provider.APIKey = key
	} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		st.Provider.Provider = "anthropic"
		st.Provider.Model = ""
		st.Provider.APIKey = key
	}
	st.Engine.BaseURL = os.Getenv("ENGINE_URL")
	st.Engine.APIKey = os.Getenv("ENGINE_API_KEY")
	st.Storage.BaseURL = os.Getenv("STORAGE_URL")
	st.Storage.APIKey = os.Getenv("STORAGE_KEY")
	return st
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.save()
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	loaded := defaultSettings()
	if err := json.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	s.settings = loaded
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.settings
}

// Update applies fn to the settings under the lock and persists the
// result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.settings)
	return s.save()
}
