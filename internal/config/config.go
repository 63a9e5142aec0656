package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Gemini API
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiAPIVersion string
	ClassifierModel  string
	GeneratorModel   string
	HTTPTimeout      time.Duration

	// Pipeline
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration

	// Studio plates
	StudioDir     string
	PlateBucket   string
	PreloadPlates bool

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string
	PlateTTL time.Duration

	// Server
	Port        string
	Environment string
	LogLevel    string
	MaxUploadMB int
}

func Load() (*Config, error) {
	cfg := &Config{
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiAPIVersion: getEnv("GEMINI_API_VERSION", "v1beta"),
		ClassifierModel:  getEnv("GEMINI_CLASSIFIER_MODEL", "gemini-2.5-flash"),
		GeneratorModel:   getEnv("GEMINI_IMAGE_MODEL", "gemini-3-pro-image-preview"),
		HTTPTimeout:      getEnvSeconds("HTTP_TIMEOUT_SECONDS", 180),

		ClassifyTimeout: getEnvSeconds("CLASSIFY_TIMEOUT_SECONDS", 30),
		GenerateTimeout: getEnvSeconds("GENERATE_TIMEOUT_SECONDS", 150),

		StudioDir:     getEnv("STUDIO_DIR", "./studios"),
		PlateBucket:   getEnv("SUPABASE_PLATE_BUCKET", ""),
		PreloadPlates: getEnvBool("PRELOAD_PLATES", true),

		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "processed-images"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL: getEnv("REDIS_URL", ""),
		PlateTTL: time.Duration(getEnvInt("PLATE_CACHE_TTL_HOURS", 24)) * time.Hour,

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 64),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.ClassifyTimeout <= 0 || c.GenerateTimeout <= 0 {
		return fmt.Errorf("pipeline timeouts must be positive")
	}
	if c.PlateBucket != "" && !c.SupabaseEnabled() {
		return fmt.Errorf("SUPABASE_PLATE_BUCKET requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be at least 1")
	}
	return nil
}

// SupabaseEnabled reports whether storage and realtime publishing can be used.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
