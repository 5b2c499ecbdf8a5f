package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Database  DatabaseConfig
	Extractor ExtractorConfig
	Cache     CacheConfig
	Index     IndexConfig
	Auth      AuthConfig
	Web       WebConfig
	Log       LogConfig
	Matching  MatchingConfig
}

type DatabaseConfig struct {
	Driver       string // sqlite (default), postgres or mysql
	URL          string // DSN; defaults to face_db.sqlite for the sqlite driver
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type ExtractorConfig struct {
	URL               string  // embedding server, defaults to http://localhost:8000
	Model             string  // model name for reference only
	RequestsPerSecond float64 // 0 disables rate limiting
	MaxImageSize      int     // images are downscaled to fit this dimension before upload
	Concurrency       int     // parallel extractions per enrollment request
	Timeout           time.Duration
}

type CacheConfig struct {
	RedisURL string        // empty disables the extraction cache
	TTL      time.Duration // cache entry lifetime
}

type IndexConfig struct {
	Mode string // exact (default) or hnsw
}

type AuthConfig struct {
	JWTSecret   string // empty disables authentication of write endpoints
	JWTAudience string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS whitelist from WEB_ALLOWED_ORIGINS (comma-separated)
}

type LogConfig struct {
	Level string // debug, info, warn, error
}

// MatchingConfig is the enrollment and recognition policy.
type MatchingConfig struct {
	Threshold      float32 `yaml:"threshold"`
	MaxResults     int     `yaml:"max_results"`
	MaxSearchWidth int     `yaml:"max_search_width"`
	MinImages      int     `yaml:"min_images"`
	MinFaces       int     `yaml:"min_faces"`
	EmbeddingDim   int     `yaml:"embedding_dim"`
}

type policyFile struct {
	Matching MatchingConfig `yaml:"matching"`
}

// DefaultMatching returns the embedded matching policy.
func DefaultMatching() MatchingConfig {
	var policy policyFile
	if err := yaml.Unmarshal(policyYAML, &policy); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	return policy.Matching
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration string.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envString returns the env var value or the default when unset.
func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated env var into trimmed, non-empty items.
func envList(key string) []string {
	var items []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func Load() *Config {
	matching := DefaultMatching()
	matching.Threshold = float32(envFloat("MATCH_THRESHOLD", float64(matching.Threshold)))

	driver := strings.ToLower(envString("DATABASE_DRIVER", "sqlite"))
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" && driver == "sqlite" {
		dbURL = "face_db.sqlite"
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:       driver,
			URL:          dbURL,
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Extractor: ExtractorConfig{
			URL:               os.Getenv("EXTRACTOR_URL"),
			Model:             os.Getenv("EXTRACTOR_MODEL"),
			RequestsPerSecond: envFloat("EXTRACTOR_RPS", 0),
			MaxImageSize:      envInt("EXTRACTOR_MAX_IMAGE_SIZE", 1920),
			Concurrency:       envInt("EXTRACTOR_CONCURRENCY", 4),
			Timeout:           envDuration("EXTRACTOR_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			RedisURL: os.Getenv("REDIS_URL"),
			TTL:      envDuration("CACHE_TTL", 24*time.Hour),
		},
		Index: IndexConfig{
			Mode: envString("INDEX_MODE", "exact"),
		},
		Auth: AuthConfig{
			JWTSecret:   os.Getenv("API_JWT_SECRET"),
			JWTAudience: os.Getenv("API_JWT_AUDIENCE"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
		},
		Matching: matching,
	}
}
