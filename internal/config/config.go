package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Store   StoreConfig
	Cache   CacheConfig
	Match   MatchConfig
	Image   ImageConfig
	Vision  VisionConfig
	Enroll  EnrollConfig
	API     APIConfig
	Logging LoggingConfig
}

type StoreConfig struct {
	Driver       string // postgres, sqlite or redis (default postgres)
	EmbeddingDim int    // width of the vector column (default 128)
	Database     DatabaseConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type SQLiteConfig struct {
	Path string // defaults to data/faces.db
}

type RedisConfig struct {
	URL    string // defaults to redis://localhost:6379/0
	Prefix string // key prefix (default "faces:")
}

type CacheConfig struct {
	TTL time.Duration // maximum snapshot age before reload (default 60s)
}

type MatchConfig struct {
	Tolerance float64 // maximum euclidean distance for a match (default 0.6)
	Index     string  // linear or hnsw (default linear)
}

type ImageConfig struct {
	Width  int // working resolution width (default 160)
	Height int // working resolution height (default 120)
}

type VisionConfig struct {
	Driver         string        // http or dlib (default http)
	URL            string        // face service URL, defaults to http://localhost:8000
	ModelsDir      string        // dlib model directory (default models)
	MaxConcurrency int           // concurrent primitive invocations (default NumCPU)
	Timeout        time.Duration // per-call HTTP timeout (default 30s)
}

type EnrollConfig struct {
	Workers int // images processed in parallel per request (default 4)
}

type APIConfig struct {
	Host            string
	Port            int
	VerifyRateLimit float64 // verify requests per second, 0 disables limiting
	MaxUploadBytes  int64   // multipart memory limit (default 32 MiB)
	Token           string  // bearer token for write endpoints, empty disables the check
	AllowedOrigins  []string
}

type LoggingConfig struct {
	Debug bool
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

// envFloat reads a non-negative float, falling back to defaultVal.
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

// envNumber reads a float without range checks. An unparsable value yields
// NaN so that Validate reports it instead of a default taking its place.
func envNumber(key string, defaultVal float64) float64 {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// envSeconds reads a whole number of seconds (CACHE_DURATION=60) or a Go
// duration string (CACHE_DURATION=90s).
func envSeconds(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:       strings.ToLower(envString("STORE_DRIVER", "postgres")),
			EmbeddingDim: envInt("EMBEDDING_DIM", 128),
			Database: DatabaseConfig{
				URL:          os.Getenv("DATABASE_URL"),
				MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
				MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			},
			SQLite: SQLiteConfig{
				Path: envString("SQLITE_PATH", "data/faces.db"),
			},
			Redis: RedisConfig{
				URL:    envString("REDIS_URL", "redis://localhost:6379/0"),
				Prefix: envString("REDIS_PREFIX", "faces:"),
			},
		},
		Cache: CacheConfig{
			TTL: envSeconds("CACHE_DURATION", 60*time.Second),
		},
		Match: MatchConfig{
			Tolerance: envNumber("MATCH_TOLERANCE", 0.6),
			Index:     strings.ToLower(envString("MATCH_INDEX", "linear")),
		},
		Image: ImageConfig{
			Width:  envInt("IMAGE_WIDTH", 160),
			Height: envInt("IMAGE_HEIGHT", 120),
		},
		Vision: VisionConfig{
			Driver:         strings.ToLower(envString("VISION_DRIVER", "http")),
			URL:            os.Getenv("VISION_URL"),
			ModelsDir:      envString("VISION_MODELS_DIR", "models"),
			MaxConcurrency: envInt("VISION_MAX_CONCURRENCY", runtime.NumCPU()),
			Timeout:        envSeconds("VISION_TIMEOUT", 30*time.Second),
		},
		Enroll: EnrollConfig{
			Workers: envInt("ENROLL_WORKERS", 4),
		},
		API: APIConfig{
			Host:            envString("API_HOST", "0.0.0.0"),
			Port:            envInt("API_PORT", 8000),
			VerifyRateLimit: envFloat("VERIFY_RATE_LIMIT", 0),
			MaxUploadBytes:  int64(envInt("API_MAX_UPLOAD_BYTES", 32<<20)),
			Token:           os.Getenv("API_TOKEN"),
			AllowedOrigins:  envList("WEB_ALLOWED_ORIGINS"),
		},
		Logging: LoggingConfig{
			Debug: envBool("LOG_DEBUG"),
		},
	}
}

// Validate rejects settings that would otherwise be replaced by a default
// without notice.
func (c *Config) Validate() error {
	var errs []error
	if !(c.Match.Tolerance > 0) || math.IsInf(c.Match.Tolerance, 1) {
		errs = append(errs, fmt.Errorf("MATCH_TOLERANCE must be a positive number, got %v", c.Match.Tolerance))
	}
	switch c.Match.Index {
	case "linear", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("MATCH_INDEX must be linear or hnsw, got %q", c.Match.Index))
	}
	return errors.Join(errs...)
}
