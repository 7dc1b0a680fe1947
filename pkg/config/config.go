package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/choraleia/analyst/pkg/models"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessors.
//
// Example (~/.analyst/config.yaml):
//
//	server:
//	  host: 127.0.0.1
//	  port: 8088
//	database:
//	  default: northwind
//	  max_rows: 1000
//	  query_timeout: 30s
//	  sources:
//	    northwind: {dialect: sqlite, dsn: ./database/Northwind.db}
//	    chinook: {dialect: sqlite, dsn: ./database/Chinook.db}
//	model:
//	  provider: google
//	  model: gemini-2.0-flash
//	agent:
//	  recursion_limit: 50
//	  generate_summary: false
//
// Notes:
//   - If the config file does not exist, Load returns defaults without error.
//   - If the config file exists but cannot be parsed, Load returns an error.
//   - ANALYST_CONFIG points Load at another file; ANALYST_PORT overrides server.port.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Model     ModelConfig     `yaml:"model"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Agent     AgentConfig     `yaml:"agent"`
	History   HistoryConfig   `yaml:"history"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type DatabaseConfig struct {
	Default      *string                 `yaml:"default,omitempty"`
	MaxRows      *int                    `yaml:"max_rows,omitempty"`
	QueryTimeout *string                 `yaml:"query_timeout,omitempty"`
	Sources      map[string]SourceConfig `yaml:"sources,omitempty"`
}

type SourceConfig struct {
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
}

type ModelConfig struct {
	Provider *string `yaml:"provider,omitempty"`
	Model    *string `yaml:"model,omitempty"`
	BaseURL  *string `yaml:"base_url,omitempty"`
	APIKey   *string `yaml:"api_key,omitempty"`
	Region   *string `yaml:"region,omitempty"`
}

// EmbeddingConfig enables the example memory when Provider is set.
type EmbeddingConfig struct {
	Provider *string `yaml:"provider,omitempty"`
	Model    *string `yaml:"model,omitempty"`
	BaseURL  *string `yaml:"base_url,omitempty"`
	APIKey   *string `yaml:"api_key,omitempty"`
	Path     *string `yaml:"path,omitempty"`
}

type AgentConfig struct {
	RecursionLimit  *int  `yaml:"recursion_limit,omitempty"`
	GenerateSummary *bool `yaml:"generate_summary,omitempty"`
	MaxSQLRetries   *int  `yaml:"max_sql_retries,omitempty"`
	MaxChartRetries *int  `yaml:"max_chart_retries,omitempty"`
	DeriveChart     *bool `yaml:"derive_chart,omitempty"`
	TopK            *int  `yaml:"top_k,omitempty"`
	PreviewRows     *int  `yaml:"preview_rows,omitempty"`
}

type HistoryConfig struct {
	Path *string `yaml:"path,omitempty"`
}

type CacheConfig struct {
	RedisAddr     *string `yaml:"redis_addr,omitempty"`
	RedisPassword *string `yaml:"redis_password,omitempty"`
	RedisDB       *int    `yaml:"redis_db,omitempty"`
	TTL           *string `yaml:"ttl,omitempty"`
}

type LogConfig struct {
	Level *string `yaml:"level,omitempty"`
}

// Source is a resolved database source.
type Source struct {
	Name    string
	Dialect string
	DSN     string
}

const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8088
	DefaultSourceName      = "northwind"
	DefaultDialect         = "sqlite"
	DefaultDSN             = "./database/Northwind.db"
	DefaultMaxRows         = 1000
	DefaultQueryTimeout    = 30 * time.Second
	DefaultProvider        = "google"
	DefaultModel           = "gemini-2.0-flash"
	DefaultRecursionLimit  = 50
	DefaultMaxSQLRetries   = 3
	DefaultMaxChartRetries = 1
	DefaultTopK            = 5
	DefaultPreviewRows     = 20
	DefaultCacheTTL        = time.Hour
	DefaultLogLevel        = "info"
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	if v := strings.TrimSpace(os.Getenv("ANALYST_CONFIG")); v != "" {
		return filepath.Dir(v), v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".analyst")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads the config file from DefaultPaths.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}
	return LoadFile(configFile)
}

// LoadFile reads and validates the given config file.
func LoadFile(configFile string) (*AppConfig, string, error) {
	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w in %s", err, configFile)
	}
	return cfg, configFile, nil
}

// Validate checks values that have no sensible fallback.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Host()) == "" {
		return errors.New("invalid server.host (empty)")
	}
	if port := c.Port(); port < 1 || port > 65535 {
		return fmt.Errorf("invalid server.port %d", port)
	}
	if c.Database.QueryTimeout != nil {
		if _, err := time.ParseDuration(*c.Database.QueryTimeout); err != nil {
			return fmt.Errorf("invalid database.query_timeout %q", *c.Database.QueryTimeout)
		}
	}
	if c.Cache.TTL != nil {
		if _, err := time.ParseDuration(*c.Cache.TTL); err != nil {
			return fmt.Errorf("invalid cache.ttl %q", *c.Cache.TTL)
		}
	}
	if _, ok := models.SupportedModelProviders[strings.ToLower(c.ModelProvider())]; !ok {
		return fmt.Errorf("unsupported model.provider %q", c.ModelProvider())
	}
	if p := strings.ToLower(c.EmbeddingProvider()); p != "" {
		if _, ok := models.SupportedModelProviders[p]; !ok {
			return fmt.Errorf("unsupported embedding.provider %q", p)
		}
	}
	if n := c.MaxRows(); n < 1 {
		return fmt.Errorf("invalid database.max_rows %d", n)
	}
	for name, src := range c.Database.Sources {
		switch src.Dialect {
		case "sqlite", "mysql", "postgres":
		default:
			return fmt.Errorf("invalid dialect %q for database source %s", src.Dialect, name)
		}
		if strings.TrimSpace(src.DSN) == "" {
			return fmt.Errorf("empty dsn for database source %s", name)
		}
	}
	if c.Database.Default != nil && len(c.Database.Sources) > 0 {
		if _, ok := c.Database.Sources[*c.Database.Default]; !ok {
			return fmt.Errorf("database.default %q is not a configured source", *c.Database.Default)
		}
	}
	return nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Database: DatabaseConfig{
			Default:      ptr(DefaultSourceName),
			MaxRows:      ptr(DefaultMaxRows),
			QueryTimeout: ptr(DefaultQueryTimeout.String()),
			Sources: map[string]SourceConfig{
				DefaultSourceName: {Dialect: DefaultDialect, DSN: DefaultDSN},
			},
		},
		Model: ModelConfig{Provider: ptr(DefaultProvider), Model: ptr(DefaultModel)},
		Agent: AgentConfig{
			RecursionLimit:  ptr(DefaultRecursionLimit),
			GenerateSummary: ptr(false),
		},
		Log: LogConfig{Level: ptr(DefaultLogLevel)},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

// Port honours ANALYST_PORT before the file value.
func (c *AppConfig) Port() int {
	if v := strings.TrimSpace(os.Getenv("ANALYST_PORT")); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 && p <= 65535 {
			return p
		}
	}
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// Sources returns every configured database source sorted by name.
// With nothing configured the bundled Northwind sqlite file is used.
func (c *AppConfig) Sources() []Source {
	if c == nil || len(c.Database.Sources) == 0 {
		return []Source{{Name: DefaultSourceName, Dialect: DefaultDialect, DSN: DefaultDSN}}
	}
	out := make([]Source, 0, len(c.Database.Sources))
	for name, s := range c.Database.Sources {
		out = append(out, Source{Name: name, Dialect: s.Dialect, DSN: s.DSN})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *AppConfig) DefaultSource() string {
	if c != nil && c.Database.Default != nil && strings.TrimSpace(*c.Database.Default) != "" {
		return strings.TrimSpace(*c.Database.Default)
	}
	sources := c.Sources()
	for _, s := range sources {
		if s.Name == DefaultSourceName {
			return s.Name
		}
	}
	return sources[0].Name
}

func (c *AppConfig) MaxRows() int {
	if c == nil || c.Database.MaxRows == nil {
		return DefaultMaxRows
	}
	return *c.Database.MaxRows
}

func (c *AppConfig) QueryTimeout() time.Duration {
	return parseDuration(c.Database.QueryTimeout, DefaultQueryTimeout)
}

func (c *AppConfig) ModelProvider() string {
	return stringOr(c.Model.Provider, DefaultProvider)
}

func (c *AppConfig) ModelName() string {
	return stringOr(c.Model.Model, DefaultModel)
}

func (c *AppConfig) ModelBaseURL() string { return stringOr(c.Model.BaseURL, "") }
func (c *AppConfig) ModelAPIKey() string  { return stringOr(c.Model.APIKey, "") }
func (c *AppConfig) ModelRegion() string  { return stringOr(c.Model.Region, "") }

func (c *AppConfig) EmbeddingProvider() string { return stringOr(c.Embedding.Provider, "") }
func (c *AppConfig) EmbeddingModel() string    { return stringOr(c.Embedding.Model, "") }
func (c *AppConfig) EmbeddingBaseURL() string  { return stringOr(c.Embedding.BaseURL, "") }
func (c *AppConfig) EmbeddingAPIKey() string   { return stringOr(c.Embedding.APIKey, "") }

// EmbeddingPath is the directory of the persistent example store; empty keeps it in memory.
func (c *AppConfig) EmbeddingPath() string { return expandHome(stringOr(c.Embedding.Path, "")) }

func (c *AppConfig) RecursionLimit() int {
	return positiveOr(c.Agent.RecursionLimit, DefaultRecursionLimit)
}

func (c *AppConfig) GenerateSummary() bool {
	return c.Agent.GenerateSummary != nil && *c.Agent.GenerateSummary
}

func (c *AppConfig) MaxSQLRetries() int {
	if c.Agent.MaxSQLRetries == nil || *c.Agent.MaxSQLRetries < 0 {
		return DefaultMaxSQLRetries
	}
	return *c.Agent.MaxSQLRetries
}

func (c *AppConfig) MaxChartRetries() int {
	if c.Agent.MaxChartRetries == nil || *c.Agent.MaxChartRetries < 0 {
		return DefaultMaxChartRetries
	}
	return *c.Agent.MaxChartRetries
}

func (c *AppConfig) DeriveChart() bool {
	return c.Agent.DeriveChart == nil || *c.Agent.DeriveChart
}

func (c *AppConfig) TopK() int { return positiveOr(c.Agent.TopK, DefaultTopK) }

func (c *AppConfig) PreviewRows() int { return positiveOr(c.Agent.PreviewRows, DefaultPreviewRows) }

// HistoryPath is the sqlite file backing run history.
func (c *AppConfig) HistoryPath() string {
	if c.History.Path != nil && strings.TrimSpace(*c.History.Path) != "" {
		return expandHome(strings.TrimSpace(*c.History.Path))
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(home, ".analyst", "history.db")
}

func (c *AppConfig) RedisAddr() string     { return stringOr(c.Cache.RedisAddr, "") }
func (c *AppConfig) RedisPassword() string { return stringOr(c.Cache.RedisPassword, "") }

func (c *AppConfig) RedisDB() int {
	if c.Cache.RedisDB == nil {
		return 0
	}
	return *c.Cache.RedisDB
}

func (c *AppConfig) CacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, DefaultCacheTTL)
}

func (c *AppConfig) LogLevel() string { return stringOr(c.Log.Level, DefaultLogLevel) }

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return def
	}
	return s
}

func positiveOr(v *int, def int) int {
	if v == nil || *v < 1 {
		return def
	}
	return *v
}

func parseDuration(v *string, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(*v))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func ptr[T any](v T) *T { return &v }
