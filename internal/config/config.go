package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	Env         string
	LogLevel    string

	JWTSecret          string
	AllowedEmailDomain string

	StorageURL        string
	StorageServiceKey string
	PhotoBucket       string
	PhotoMaxBytes     int64
	PhotoMaxDimension int

	RedisAddress     string
	RedisPassword    string
	InflightTTL      time.Duration
	ListLimit        int
	HostelAliases    string
	StatusPageURL    string
	CleanupSchedule  string
	CleanupTimeout   time.Duration
	ShutdownTimeout  time.Duration
	MaxUploadBytes   int64

	RateLimitPerMinute     int
	RateLimitBurst         int
	UserRateLimitPerMinute int
	UserRateLimitBurst     int
	TrustProxy             bool
}

// Load reads the environment, after merging a .env file when one exists.
// Variables already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	photoMax := int64(readInt("PHOTO_MAX_BYTES", 5*1024*1024))

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		Env:         readString("APP_ENV", "production"),
		LogLevel:    readString("LOG_LEVEL", "info"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AllowedEmailDomain: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(os.Getenv("ALLOWED_EMAIL_DOMAIN"))), "@"),

		StorageURL:        strings.TrimRight(os.Getenv("STORAGE_URL"), "/"),
		StorageServiceKey: os.Getenv("STORAGE_SERVICE_KEY"),
		PhotoBucket:       readString("PHOTO_BUCKET", "maintenance-images"),
		PhotoMaxBytes:     photoMax,
		PhotoMaxDimension: readInt("PHOTO_MAX_DIMENSION", 1600),

		RedisAddress:    os.Getenv("REDIS_ADDRESS"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		InflightTTL:     readDurationSeconds("INFLIGHT_TTL_SECONDS", 30),
		ListLimit:       readInt("LIST_LIMIT", 1000),
		HostelAliases:   os.Getenv("HOSTEL_ALIASES"),
		StatusPageURL:   os.Getenv("STATUS_PAGE_URL"),
		CleanupSchedule: readString("PHOTO_CLEANUP_SCHEDULE", "30 3 * * *"),
		CleanupTimeout:  readDurationSeconds("PHOTO_CLEANUP_TIMEOUT_SECONDS", 240),
		ShutdownTimeout: readDurationSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10),
		MaxUploadBytes:  photoMax + 512*1024,

		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		UserRateLimitPerMinute: readInt("USER_RATE_LIMIT_PER_MIN", 60),
		UserRateLimitBurst:     readInt("USER_RATE_LIMIT_BURST", 20),
		TrustProxy:             readBool("TRUST_PROXY", false),
	}
}

func (c Config) Development() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
