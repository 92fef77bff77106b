// Package config provides unified configuration loading for the RAG engine.
// Supports YAML files, .env files, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the RAG engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	OCR           OCRConfig           `yaml:"ocr"`
	Translation   TranslationConfig   `yaml:"translation"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	UploadDir        string        `yaml:"upload_dir"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	CORSOrigins      []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds chunk cache settings.
type CacheConfig struct {
	Driver           string        `yaml:"driver"` // memory, redis or sql
	TTL              time.Duration `yaml:"ttl"`
	MaxEntries       int           `yaml:"max_entries"`
	EvictionInterval time.Duration `yaml:"eviction_interval"`
	Redis            RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// ExtractionConfig holds page rasterization settings.
type ExtractionConfig struct {
	DPI         float64 `yaml:"dpi"`
	JPEGQuality int     `yaml:"jpeg_quality"`
	ScratchDir  string  `yaml:"scratch_dir"`
}

// OCRConfig holds OCR engine settings.
type OCRConfig struct {
	Engine         string `yaml:"engine"` // tesseract or none
	Languages      string `yaml:"languages"`
	TessdataPrefix string `yaml:"tessdata_prefix"`
}

// TranslationConfig holds translation collaborator settings.
type TranslationConfig struct {
	Provider     string        `yaml:"provider"` // openrouter, glossary or none
	APIURL       string        `yaml:"api_url"`
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	SourceLang   string        `yaml:"source_lang"`
	TargetLang   string        `yaml:"target_lang"`
	Timeout      time.Duration `yaml:"timeout"`
	GlossaryPath string        `yaml:"glossary_path"` // merged over the built-in glossary
}

// PipelineConfig holds chunk execution settings.
type PipelineConfig struct {
	MaxPagesPerChunk int           `yaml:"max_pages_per_chunk"`
	Workers          int           `yaml:"workers"`
	MaxRetries       int           `yaml:"max_retries"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	ModelVersion     string        `yaml:"model_version"`
}

// JobsConfig holds admission control and retention settings.
type JobsConfig struct {
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	MaxQueueDepth     int           `yaml:"max_queue_depth"`
	Retention         time.Duration `yaml:"retention"`
	JanitorInterval   time.Duration `yaml:"janitor_interval"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory, if present, is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Database.Driver == "sqlite" {
			cfg.Database.SQLite.Path = ResolveRelativePath(path, cfg.Database.SQLite.Path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     0, // SSE streams outlive any fixed write deadline
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			UploadDir:        filepath.Join(os.TempDir(), "rag-engine", "uploads"),
			MaxUploadBytes:   64 << 20,
			CORSOrigins:      []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:5173"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         filepath.Join(os.TempDir(), "rag-engine.db"),
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:           "memory",
			TTL:              30 * 24 * time.Hour,
			MaxEntries:       10000,
			EvictionInterval: time.Hour,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
				Prefix:   "rag:",
			},
		},
		Extraction: ExtractionConfig{
			DPI:         144,
			JPEGQuality: 90,
		},
		OCR: OCRConfig{
			Engine:    "tesseract",
			Languages: "eng+hin+urd",
		},
		Translation: TranslationConfig{
			Provider:   "none",
			APIURL:     "https://openrouter.ai/api/v1/chat/completions",
			Model:      "google/gemini-2.5-flash",
			SourceLang: "ur",
			TargetLang: "en",
			Timeout:    60 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxPagesPerChunk: 10,
			Workers:          4,
			MaxRetries:       2,
			InitialBackoff:   500 * time.Millisecond,
			MaxBackoff:       5 * time.Second,
		},
		Jobs: JobsConfig{
			MaxConcurrentJobs: 2,
			MaxQueueDepth:     16,
			Retention:         time.Hour,
			JanitorInterval:   time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "rag-engine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	switch c.Cache.Driver {
	case "memory", "redis", "sql":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.OCR.Engine != "tesseract" && c.OCR.Engine != "none" {
		return fmt.Errorf("invalid ocr engine: %s", c.OCR.Engine)
	}

	switch c.Translation.Provider {
	case "none", "glossary":
	case "openrouter":
		if c.Translation.APIKey == "" {
			return fmt.Errorf("translation provider openrouter requires an api key")
		}
	default:
		return fmt.Errorf("invalid translation provider: %s", c.Translation.Provider)
	}

	if c.Pipeline.MaxPagesPerChunk < 1 {
		return fmt.Errorf("max_pages_per_chunk must be at least 1")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}

	if c.Jobs.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be at least 1")
	}
	if c.Jobs.MaxQueueDepth < 0 {
		return fmt.Errorf("max_queue_depth must not be negative")
	}

	if c.Extraction.JPEGQuality < 1 || c.Extraction.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// ModelVersion returns the cache versioning tag. An explicit pipeline
// model_version wins; otherwise it is derived from the OCR engine and
// translation model in use.
func (c *Config) ModelVersion() string {
	if c.Pipeline.ModelVersion != "" {
		return c.Pipeline.ModelVersion
	}
	ocr := c.OCR.Engine + ":" + c.OCR.Languages
	switch c.Translation.Provider {
	case "none":
		return ocr + "|passthrough"
	case "glossary":
		glossary := c.Translation.GlossaryPath
		if glossary == "" {
			glossary = "builtin"
		}
		return ocr + "|glossary:" + glossary
	}
	return ocr + "|" + c.Translation.Provider + ":" + c.Translation.Model
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Server.UploadDir = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Translation.APIKey = v
		if cfg.Translation.Provider == "none" {
			cfg.Translation.Provider = "openrouter"
		}
	}

	if v := os.Getenv("TRANSLATION_PROVIDER"); v != "" {
		cfg.Translation.Provider = v
	}

	if v := os.Getenv("GLOSSARY_PATH"); v != "" {
		cfg.Translation.GlossaryPath = v
	}

	if v := os.Getenv("TRANSLATION_MODEL"); v != "" {
		cfg.Translation.Model = v
	}

	if v := os.Getenv("TESSDATA_PREFIX"); v != "" {
		cfg.OCR.TessdataPrefix = v
	}

	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		cfg.OCR.Languages = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
