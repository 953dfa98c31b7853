// Package config loads process configuration from environment variables,
// the same env-var-with-default shape the teacher's ai and sandbox services
// use. There is no config file beyond the declarative policy/rubric YAML
// (see internal/policy), which is loaded separately.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the single struct every component constructor is handed a
// pointer into, mirroring the teacher's ai/internal/config shape.
type Config struct {
	Port string

	DatabaseURL string

	MongoURI       string
	CuratedDBName  string

	AuthSecret string

	CookieSecure bool
	CookieDomain string

	AllowedOrigins []string

	AIProvider    string
	GeminiAPIKey  string
	GeminiModel   string

	UploadDir     string
	RetentionDays int

	SandboxImagePython string
	SandboxImageJava   string
	SandboxImageCPP    string
}

// Load reads Config from the environment, applying the same defaults the
// teacher ships for local development.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=postgres port=5432 sslmode=disable"),

		MongoURI:      os.Getenv("MONGO_URI"),
		CuratedDBName: getEnv("CURATED_DB_NAME", "peerprep"),

		AuthSecret: getEnv("AUTH_SECRET", "dev"),

		CookieSecure: getEnv("COOKIE_SECURE", "false") == "true",
		CookieDomain: os.Getenv("COOKIE_DOMAIN"),

		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		AIProvider:   getEnv("AI_PROVIDER", "gemini"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		UploadDir:     getEnv("UPLOAD_DIR", "./uploads"),
		RetentionDays: getEnvInt("RETENTION_DAYS", 90),

		SandboxImagePython: getEnv("SANDBOX_IMAGE_PYTHON", "python:3.11-slim"),
		SandboxImageJava:   getEnv("SANDBOX_IMAGE_JAVA", "eclipse-temurin:17-jdk"),
		SandboxImageCPP:    getEnv("SANDBOX_IMAGE_CPP", "gcc:13"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AIProvider != "gemini" && cfg.AIProvider != "deterministic" {
		return errors.New("unsupported AI provider: " + cfg.AIProvider + ". Currently supported: gemini, deterministic")
	}
	if cfg.RetentionDays <= 0 {
		return errors.New("RETENTION_DAYS must be positive")
	}
	return nil
}

// RetentionWindow is RetentionDays expressed as a duration, for the
// retention sweeper.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
