package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultServerPort       = 8080
	defaultHalfTimeSeconds  = 300
	defaultTickIntervalMS   = 100
	defaultAutoSaveDelayMS  = 500
	defaultStoreTimeoutSecs = 10
	defaultLiveStreamKey    = "games.live.basketball"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int
	CORSOrigins  []string

	Scorer ScorerConfig

	RedisURL      string
	LiveStreamKey string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// ScorerConfig holds the timing knobs of a scorer session.
type ScorerConfig struct {
	HalfTimeSeconds int
	TickInterval    time.Duration
	AutoSaveDelay   time.Duration
	StoreTimeout    time.Duration
}

// ArchiveEnabled reports whether every R2 setting is present.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := getEnvAsInt("SERVER_PORT", defaultServerPort)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	scorer, err := loadScorerConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,
		CORSOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		Scorer:       scorer,

		RedisURL:      os.Getenv("REDIS_URL"),
		LiveStreamKey: getEnv("LIVE_STREAM_KEY", defaultLiveStreamKey),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func loadScorerConfig() (ScorerConfig, error) {
	half, err := getEnvAsInt("HALF_TIME_DURATION_SECONDS", defaultHalfTimeSeconds)
	if err != nil {
		return ScorerConfig{}, err
	}
	if half <= 0 {
		return ScorerConfig{}, fmt.Errorf("HALF_TIME_DURATION_SECONDS must be positive, got %d", half)
	}

	tickMS, err := getEnvAsInt("SCORER_TICK_INTERVAL_MS", defaultTickIntervalMS)
	if err != nil {
		return ScorerConfig{}, err
	}
	if tickMS <= 0 || tickMS > 1000 {
		// Тик реже секунды ломает отображение обратного отсчёта.
		return ScorerConfig{}, fmt.Errorf("SCORER_TICK_INTERVAL_MS must be between 1 and 1000, got %d", tickMS)
	}

	delayMS, err := getEnvAsInt("SCORER_AUTOSAVE_DELAY_MS", defaultAutoSaveDelayMS)
	if err != nil {
		return ScorerConfig{}, err
	}
	if delayMS < 0 {
		return ScorerConfig{}, fmt.Errorf("SCORER_AUTOSAVE_DELAY_MS must not be negative, got %d", delayMS)
	}

	timeoutSecs, err := getEnvAsInt("STORE_TIMEOUT_SECONDS", defaultStoreTimeoutSecs)
	if err != nil {
		return ScorerConfig{}, err
	}
	if timeoutSecs <= 0 {
		return ScorerConfig{}, fmt.Errorf("STORE_TIMEOUT_SECONDS must be positive, got %d", timeoutSecs)
	}

	return ScorerConfig{
		HalfTimeSeconds: half,
		TickInterval:    time.Duration(tickMS) * time.Millisecond,
		AutoSaveDelay:   time.Duration(delayMS) * time.Millisecond,
		StoreTimeout:    time.Duration(timeoutSecs) * time.Second,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
