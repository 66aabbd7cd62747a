package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendBleve      = "bleve"
	BackendSQLite     = "sqlite"
	BackendOpenSearch = "opensearch"
)

// DefaultIndex is the index name transcripts are ingested into.
const DefaultIndex = "youtube-transcripts"

// DefaultAllowedOrigin is the browser frontend served during development.
const DefaultAllowedOrigin = "http://localhost:3000"

// Config is the complete sayln configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" json:"store"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Waitlist  WaitlistConfig  `yaml:"waitlist" json:"waitlist"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Ingest    IngestConfig    `yaml:"ingest" json:"ingest"`
}

// StoreConfig selects and configures the segment store.
type StoreConfig struct {
	// Backend is one of bleve, sqlite or opensearch.
	Backend string `yaml:"backend" json:"backend"`
	// DataDir holds the embedded backends' files. Empty keeps them in memory.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// Index is the logical index name every request targets.
	Index      string           `yaml:"index" json:"index"`
	OpenSearch OpenSearchConfig `yaml:"opensearch" json:"opensearch"`
}

// OpenSearchConfig configures the remote OpenSearch cluster.
type OpenSearchConfig struct {
	URL         string `yaml:"url" json:"url"`
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"-"`
	VerifyCerts bool   `yaml:"verify_certs" json:"verify_certs"`
}

// SearchConfig tunes the query pipeline.
type SearchConfig struct {
	DefaultSize             int `yaml:"default_size" json:"default_size"`
	MaxSize                 int `yaml:"max_size" json:"max_size"`
	AutocompleteDefaultSize int `yaml:"autocomplete_default_size" json:"autocomplete_default_size"`
	// FetchMultiplier over-fetches primary hits to survive deduplication.
	FetchMultiplier int `yaml:"fetch_multiplier" json:"fetch_multiplier"`

	SearchTimeout            time.Duration `yaml:"search_timeout" json:"search_timeout"`
	AutocompleteTimeout      time.Duration `yaml:"autocomplete_timeout" json:"autocomplete_timeout"`
	AutocompleteStoreTimeout time.Duration `yaml:"autocomplete_store_timeout" json:"autocomplete_store_timeout"`
	EnrichTimeout            time.Duration `yaml:"enrich_timeout" json:"enrich_timeout"`

	MaxExpansions int `yaml:"max_expansions" json:"max_expansions"`
	// Workers bounds concurrent store calls across all requests.
	Workers int `yaml:"workers" json:"workers"`

	CircuitMaxFailures  int           `yaml:"circuit_max_failures" json:"circuit_max_failures"`
	CircuitResetTimeout time.Duration `yaml:"circuit_reset_timeout" json:"circuit_reset_timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// WaitlistConfig configures waitlist persistence.
type WaitlistConfig struct {
	Path string `yaml:"path" json:"path"`
}

// TelemetryConfig configures query metrics.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	DBPath        string        `yaml:"db_path" json:"db_path"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// IngestConfig configures transcript ingestion.
type IngestConfig struct {
	Dir           string        `yaml:"dir" json:"dir"`
	BatchSize     int           `yaml:"batch_size" json:"batch_size"`
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// DataHome returns ~/.sayln, where indexes, logs and state live.
func DataHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".sayln")
	}
	return filepath.Join(home, ".sayln")
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	home := DataHome()
	return &Config{
		Store: StoreConfig{
			Backend: BackendBleve,
			DataDir: filepath.Join(home, "data"),
			Index:   DefaultIndex,
			OpenSearch: OpenSearchConfig{
				URL: "http://localhost:9200",
			},
		},
		Search: SearchConfig{
			DefaultSize:              25,
			MaxSize:                  100,
			AutocompleteDefaultSize:  5,
			FetchMultiplier:          3,
			SearchTimeout:            15 * time.Second,
			AutocompleteTimeout:      2 * time.Second,
			AutocompleteStoreTimeout: 500 * time.Millisecond,
			EnrichTimeout:            5 * time.Second,
			MaxExpansions:            10,
			Workers:                  4,
			CircuitMaxFailures:       5,
			CircuitResetTimeout:      30 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			AllowedOrigins:  []string{DefaultAllowedOrigin},
			LogLevel:        "info",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Waitlist: WaitlistConfig{
			Path: filepath.Join(home, "waitlist.json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			DBPath:        filepath.Join(home, "telemetry.db"),
			FlushInterval: time.Minute,
		},
		Ingest: IngestConfig{
			Dir:           "transcripts",
			BatchSize:     500,
			WatchDebounce: 500 * time.Millisecond,
		},
	}
}

// GetUserConfigPath returns the user configuration path, honoring
// XDG_CONFIG_HOME and falling back to ~/.config/sayln/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sayln", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "sayln", "config.yaml")
	}
	return filepath.Join(home, ".config", "sayln", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/sayln/config.yaml)
//  3. Project config (.sayln.yaml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (SAYLN_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads .sayln.yaml, falling back to .sayln.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".sayln.yaml", ".sayln.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML parses path and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

func mergeDuration(dst *time.Duration, src time.Duration) {
	if src != 0 {
		*dst = src
	}
}

// mergeWith merges non-zero values from other into c.
// Booleans can only be switched on from a file; env vars switch them off.
func (c *Config) mergeWith(other *Config) {
	mergeString(&c.Store.Backend, other.Store.Backend)
	mergeString(&c.Store.DataDir, other.Store.DataDir)
	mergeString(&c.Store.Index, other.Store.Index)
	mergeString(&c.Store.OpenSearch.URL, other.Store.OpenSearch.URL)
	mergeString(&c.Store.OpenSearch.Username, other.Store.OpenSearch.Username)
	mergeString(&c.Store.OpenSearch.Password, other.Store.OpenSearch.Password)
	if other.Store.OpenSearch.VerifyCerts {
		c.Store.OpenSearch.VerifyCerts = true
	}

	s, o := &c.Search, &other.Search
	mergeInt(&s.DefaultSize, o.DefaultSize)
	mergeInt(&s.MaxSize, o.MaxSize)
	mergeInt(&s.AutocompleteDefaultSize, o.AutocompleteDefaultSize)
	mergeInt(&s.FetchMultiplier, o.FetchMultiplier)
	mergeDuration(&s.SearchTimeout, o.SearchTimeout)
	mergeDuration(&s.AutocompleteTimeout, o.AutocompleteTimeout)
	mergeDuration(&s.AutocompleteStoreTimeout, o.AutocompleteStoreTimeout)
	mergeDuration(&s.EnrichTimeout, o.EnrichTimeout)
	mergeInt(&s.MaxExpansions, o.MaxExpansions)
	mergeInt(&s.Workers, o.Workers)
	mergeInt(&s.CircuitMaxFailures, o.CircuitMaxFailures)
	mergeDuration(&s.CircuitResetTimeout, o.CircuitResetTimeout)

	mergeString(&c.Server.Addr, other.Server.Addr)
	if len(other.Server.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = other.Server.AllowedOrigins
	}
	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
	mergeDuration(&c.Server.ReadTimeout, other.Server.ReadTimeout)
	mergeDuration(&c.Server.WriteTimeout, other.Server.WriteTimeout)
	mergeDuration(&c.Server.ShutdownTimeout, other.Server.ShutdownTimeout)

	mergeString(&c.Waitlist.Path, other.Waitlist.Path)

	if other.Telemetry.Enabled {
		c.Telemetry.Enabled = true
	}
	mergeString(&c.Telemetry.DBPath, other.Telemetry.DBPath)
	mergeDuration(&c.Telemetry.FlushInterval, other.Telemetry.FlushInterval)

	mergeString(&c.Ingest.Dir, other.Ingest.Dir)
	mergeInt(&c.Ingest.BatchSize, other.Ingest.BatchSize)
	mergeDuration(&c.Ingest.WatchDebounce, other.Ingest.WatchDebounce)
}

// applyEnvOverrides applies SAYLN_* environment variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"SAYLN_STORE_BACKEND":       &c.Store.Backend,
		"SAYLN_DATA_DIR":            &c.Store.DataDir,
		"SAYLN_INDEX":               &c.Store.Index,
		"SAYLN_OPENSEARCH_URL":      &c.Store.OpenSearch.URL,
		"SAYLN_OPENSEARCH_USERNAME": &c.Store.OpenSearch.Username,
		"SAYLN_OPENSEARCH_PASSWORD": &c.Store.OpenSearch.Password,
		"SAYLN_ADDR":                &c.Server.Addr,
		"SAYLN_LOG_LEVEL":           &c.Server.LogLevel,
		"SAYLN_WAITLIST_PATH":       &c.Waitlist.Path,
		"SAYLN_TELEMETRY_DB":        &c.Telemetry.DBPath,
		"SAYLN_TRANSCRIPTS_DIR":     &c.Ingest.Dir,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SAYLN_SEARCH_WORKERS":  &c.Search.Workers,
		"SAYLN_SEARCH_MAX_SIZE": &c.Search.MaxSize,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: invalid integer %q", key, v)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"SAYLN_SEARCH_TIMEOUT":       &c.Search.SearchTimeout,
		"SAYLN_AUTOCOMPLETE_TIMEOUT": &c.Search.AutocompleteTimeout,
		"SAYLN_ENRICH_TIMEOUT":       &c.Search.EnrichTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: invalid duration %q", key, v)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"SAYLN_OPENSEARCH_VERIFY_CERTS": &c.Store.OpenSearch.VerifyCerts,
		"SAYLN_TELEMETRY_ENABLED":       &c.Telemetry.Enabled,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: invalid boolean %q", key, v)
			}
			*dst = b
		}
	}

	if v := os.Getenv("SAYLN_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}

	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case BackendBleve, BackendSQLite:
	case BackendOpenSearch:
		if c.Store.OpenSearch.URL == "" {
			return fmt.Errorf("store.opensearch.url is required for the opensearch backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'bleve', 'sqlite' or 'opensearch', got %q", c.Store.Backend)
	}
	if strings.TrimSpace(c.Store.Index) == "" {
		return fmt.Errorf("store.index must not be empty")
	}

	s := c.Search
	if s.DefaultSize <= 0 || s.MaxSize <= 0 || s.AutocompleteDefaultSize <= 0 {
		return fmt.Errorf("search sizes must be positive")
	}
	if s.DefaultSize > s.MaxSize {
		return fmt.Errorf("search.default_size (%d) exceeds search.max_size (%d)", s.DefaultSize, s.MaxSize)
	}
	if s.FetchMultiplier < 1 {
		return fmt.Errorf("search.fetch_multiplier must be at least 1, got %d", s.FetchMultiplier)
	}
	if s.Workers < 1 {
		return fmt.Errorf("search.workers must be at least 1, got %d", s.Workers)
	}
	if s.SearchTimeout <= 0 || s.AutocompleteTimeout <= 0 || s.EnrichTimeout <= 0 {
		return fmt.Errorf("search timeouts must be positive")
	}
	if s.MaxExpansions < 1 {
		return fmt.Errorf("search.max_expansions must be at least 1, got %d", s.MaxExpansions)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
