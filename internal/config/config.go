package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Steam     Steam     `yaml:"steam"`
	Fetch     Fetch     `yaml:"fetch"`
	Embedding Embedding `yaml:"embedding"`
	Prepare   Prepare   `yaml:"prepare"`
	Recommend Recommend `yaml:"recommend"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type Steam struct {
	AppListURL  string `yaml:"app_list_url"`
	DetailsURL  string `yaml:"details_url"`
	ReviewsURL  string `yaml:"reviews_url"`
	NewsURL     string `yaml:"news_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	ReviewCount int    `yaml:"review_count"`
}

type Fetch struct {
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	RateLimitFactor float64       `yaml:"rate_limit_factor"`
	JitterMin       time.Duration `yaml:"jitter_min"`
	JitterMax       time.Duration `yaml:"jitter_max"`
	RateLimit       float64       `yaml:"rate_limit"`
	Workers         int           `yaml:"workers"`
	BatchSize       int           `yaml:"batch_size"`
}

type Embedding struct {
	OllamaURL string `yaml:"ollama_url"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

type Prepare struct {
	ExcludePatterns []string `yaml:"exclude_patterns"`
	Components      int      `yaml:"components"`
}

type Recommend struct {
	TopK int `yaml:"top_k"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for gamerec.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "gamerec")
}

// DataDir returns the XDG data directory for gamerec.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "gamerec")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/gamerec/config.yaml > ./config.yaml.
// An empty path with a nil error means no file exists and defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, _ := parse(nil)
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Steam: Steam{
			AppListURL:  "http://api.steampowered.com/ISteamApps/GetAppList/v2/",
			DetailsURL:  "https://store.steampowered.com/api/appdetails",
			ReviewsURL:  "https://store.steampowered.com/appreviews",
			NewsURL:     "https://store.steampowered.com/feeds/news/app",
			APIKeyEnv:   "STEAM_API_KEY",
			ReviewCount: 100,
		},
		Fetch: Fetch{
			MaxRetries:      5,
			BaseDelay:       time.Second,
			RateLimitFactor: 30,
			JitterMin:       500 * time.Millisecond,
			JitterMax:       1500 * time.Millisecond,
			RateLimit:       1,
			Workers:         3,
			BatchSize:       50,
		},
		Embedding: Embedding{
			OllamaURL: "http://localhost:11434",
			Model:     "nomic-embed-text",
			BatchSize: 32,
		},
		Prepare: Prepare{
			ExcludePatterns: []string{"soundtrack", "OST", "demo", "DLC", "playtest"},
			Components:      768,
		},
		Recommend: Recommend{TopK: 5},
		Server:    Server{Port: 8000},
		Logging:   Logging{Level: "info", Format: "console"},
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("fetch.max_retries must be at least 1, got %d", c.Fetch.MaxRetries)
	}
	if c.Fetch.Workers < 1 {
		return fmt.Errorf("fetch.workers must be at least 1, got %d", c.Fetch.Workers)
	}
	if c.Fetch.BatchSize < 1 {
		return fmt.Errorf("fetch.batch_size must be at least 1, got %d", c.Fetch.BatchSize)
	}
	if c.Fetch.RateLimit <= 0 {
		return fmt.Errorf("fetch.rate_limit must be positive, got %g", c.Fetch.RateLimit)
	}
	if c.Fetch.JitterMax < c.Fetch.JitterMin {
		return fmt.Errorf("fetch.jitter_max (%s) is below fetch.jitter_min (%s)", c.Fetch.JitterMax, c.Fetch.JitterMin)
	}
	if c.Prepare.Components < 1 {
		return fmt.Errorf("prepare.components must be at least 1, got %d", c.Prepare.Components)
	}
	if c.Recommend.TopK < 1 {
		return fmt.Errorf("recommend.top_k must be at least 1, got %d", c.Recommend.TopK)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite store location.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "steam_games.db")
}

// LedgerPath returns the processed-ID ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.GetDataDir(), "processed_ids.txt")
}

func (c *Config) FilteredGamesPath() string {
	return filepath.Join(c.GetDataDir(), "filtered_games.csv")
}

func (c *Config) FeaturesPath() string {
	return filepath.Join(c.GetDataDir(), "item_features.npy")
}

func (c *Config) ReducedPath() string {
	return filepath.Join(c.GetDataDir(), "reduced_item_features.npy")
}

func (c *Config) PCAMeanPath() string {
	return filepath.Join(c.GetDataDir(), "pca_mean.npy")
}

func (c *Config) PCAComponentsPath() string {
	return filepath.Join(c.GetDataDir(), "pca_components.npy")
}

// SteamAPIKey returns the key from the configured environment variable, if set.
// No Steam endpoint used here requires it.
func (c *Config) SteamAPIKey() string {
	return os.Getenv(c.Steam.APIKeyEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
