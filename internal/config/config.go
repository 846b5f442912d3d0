package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"variance-analysis-backend/internal/services/variance"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port          string
	StorageDriver string
	DatabaseURL   string
	CORSOrigins   []string
	LogLevel      string
	MaxUploadSize int64
	Thresholds    variance.ThresholdConfig
}

// Load reads configuration from the environment. Call godotenv first if a
// .env file should be honoured.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
		DatabaseURL:   databaseURL(),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
	if cfg.StorageDriver != StoragePostgres && cfg.StorageDriver != StorageMemory {
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.StorageDriver)
	}

	uploadMB, err := getInt("MAX_UPLOAD_MB", 20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadSize = int64(uploadMB) << 20

	materiality, err := getFloat("DEFAULT_MATERIALITY_THRESHOLD", variance.DefaultMaterialityThreshold)
	if err != nil {
		return nil, err
	}
	significant, err := getFloat("DEFAULT_SIGNIFICANT_THRESHOLD", variance.DefaultSignificantThreshold)
	if err != nil {
		return nil, err
	}
	cfg.Thresholds = variance.ThresholdConfig{
		MaterialityThreshold: materiality,
		SignificantThreshold: significant,
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("default thresholds: %w", err)
	}

	return cfg, nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles a DSN from the
// individual DB_* variables.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "variance_analysis"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
