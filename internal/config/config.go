package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Optional remote publish sink
	PathstoreURL    string
	PathstoreAPIKey string

	// Local chunk store
	DatabasePath string

	// Rendered markdown + report output (empty disables persistence)
	PersistDir string

	// Worker pool
	WorkerCount          int
	MaxQueueSize         int
	MaxConcurrentPublish int

	// Upload limits
	MaxUploadBytes int64

	// Chunking defaults
	DefaultChunkMode    string
	DefaultChunkSize    int
	DefaultChunkOverlap int

	// Recognition
	DefaultRecognitionPolicy string
	OCRBinary                string

	// Job state
	JobTTL time.Duration

	// Optional YAML overlay for Pipeline
	ConfigFile string

	Pipeline Options
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("DOCSTRUCT_API_KEY"),

		PathstoreURL:    os.Getenv("PATHSTORE_URL"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		DatabasePath: envOr("DB_PATH", "docstruct.db"),
		PersistDir:   os.Getenv("PERSIST_DIR"),

		WorkerCount:          envInt("WORKER_COUNT", 4),
		MaxQueueSize:         envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentPublish: envInt("MAX_CONCURRENT_PUBLISH", 10),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		DefaultChunkMode:    envOr("DEFAULT_CHUNK_MODE", "header"),
		DefaultChunkSize:    envInt("DEFAULT_CHUNK_SIZE", 1024),
		DefaultChunkOverlap: envInt("DEFAULT_CHUNK_OVERLAP", 128),

		DefaultRecognitionPolicy: envOr("RECOGNITION_POLICY", "auto"),
		OCRBinary:                envOr("OCRMYPDF_BIN", "ocrmypdf"),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		ConfigFile: os.Getenv("CONFIG_FILE"),

		Pipeline: optionsFromEnv(DefaultOptions()),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentPublish <= 0 {
		cfg.MaxConcurrentPublish = 10
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = 1024
	}
	if cfg.DefaultChunkOverlap < 0 {
		cfg.DefaultChunkOverlap = 128
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCSTRUCT_API_KEY is required")
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	switch c.DefaultChunkMode {
	case "header", "fixed_window":
	default:
		return fmt.Errorf("DEFAULT_CHUNK_MODE must be header or fixed_window, got %q", c.DefaultChunkMode)
	}
	if c.DefaultChunkOverlap >= c.DefaultChunkSize {
		return fmt.Errorf("DEFAULT_CHUNK_OVERLAP (%d) must be less than DEFAULT_CHUNK_SIZE (%d)", c.DefaultChunkOverlap, c.DefaultChunkSize)
	}
	switch c.DefaultRecognitionPolicy {
	case "auto", "force", "skip":
	default:
		return fmt.Errorf("RECOGNITION_POLICY must be auto, force or skip, got %q", c.DefaultRecognitionPolicy)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline options: %w", err)
	}
	return nil
}

// optionsFromEnv overrides pipeline defaults with any environment settings.
func optionsFromEnv(o Options) Options {
	if v := os.Getenv("MARGINS"); v != "" {
		if m, err := ParseMargins(v); err == nil {
			o.Margins = m
		}
	}
	o.MaxHeaderLevels = envInt("MAX_HEADER_LEVELS", o.MaxHeaderLevels)
	o.BodyFontSizeThreshold = envFloat("BODY_FONT_SIZE_THRESHOLD", o.BodyFontSizeThreshold)
	o.DensityThreshold = envFloat("SCAN_DENSITY_THRESHOLD", o.DensityThreshold)
	o.MinChunkChars = envInt("MIN_CHUNK_CHARS", o.MinChunkChars)
	o.RecognitionTimeout = envDuration("RECOGNITION_TIMEOUT", o.RecognitionTimeout)
	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		o.OCRLanguages = splitList(v, "+,")
	}
	if v := os.Getenv("SUBTOPIC_TERMS"); v != "" {
		o.SubtopicTerms = splitList(v, ",")
	}
	return o
}

// ParseMargins reads "left,top,right,bottom".
func ParseMargins(s string) (Margins, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Margins{}, fmt.Errorf("margins: want 4 comma-separated values, got %d", len(parts))
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Margins{}, fmt.Errorf("margins: %w", err)
		}
		vals[i] = f
	}
	return Margins{Left: vals[0], Top: vals[1], Right: vals[2], Bottom: vals[3]}, nil
}

func splitList(s, seps string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
