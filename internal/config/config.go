package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	VerifierModeRecaptcha = "recaptcha"
	VerifierModeStatic    = "static"

	CalendarModeGoogle = "google"
	CalendarModeLog    = "log"

	ReplayStoreNone     = "none"
	ReplayStoreRedis    = "redis"
	ReplayStoreDynamoDB = "dynamodb"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Bot verification (reCAPTCHA v3)
	VerifierMode            string
	RecaptchaSecretKey      string
	RecaptchaVerifyURL      string
	RecaptchaMinScore       float64
	RecaptchaExpectedAction string
	VerifierTimeout         time.Duration

	// Google Calendar
	CalendarMode          string
	GoogleCalendarID      string
	GoogleClientEmail     string
	GooglePrivateKey      string
	GoogleCredentialsJSON string

	// Booking pipeline
	BookingTimezone   string
	InsertConcurrency int

	// HTTP surface
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Replay protection
	ReplayStore   string
	ReplayTTL     time.Duration
	ReplayTable   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		VerifierMode:            strings.ToLower(strings.TrimSpace(getEnv("VERIFIER_MODE", VerifierModeRecaptcha))),
		RecaptchaSecretKey:      getEnv("RECAPTCHA_SECRET_KEY", ""),
		RecaptchaVerifyURL:      getEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
		RecaptchaMinScore:       getEnvAsFloat("RECAPTCHA_MIN_SCORE", 0.5),
		RecaptchaExpectedAction: getEnv("RECAPTCHA_EXPECTED_ACTION", ""),
		VerifierTimeout:         getEnvAsDuration("VERIFIER_TIMEOUT", 5*time.Second),

		CalendarMode:          strings.ToLower(strings.TrimSpace(getEnv("CALENDAR_MODE", CalendarModeGoogle))),
		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", ""),
		GoogleClientEmail:     getEnv("GOOGLE_CLIENT_EMAIL", ""),
		GooglePrivateKey:      getEnv("GOOGLE_PRIVATE_KEY", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),

		BookingTimezone:   getEnv("BOOKING_TIMEZONE", "America/New_York"),
		InsertConcurrency: getEnvAsInt("INSERT_CONCURRENCY", 4),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 5),

		ReplayStore:   strings.ToLower(strings.TrimSpace(getEnv("REPLAY_STORE", ReplayStoreNone))),
		ReplayTTL:     getEnvAsDuration("REPLAY_TTL", 24*time.Hour),
		ReplayTable:   getEnv("REPLAY_TABLE", "booking_replays"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Validate checks the settings every entrypoint needs before wiring clients.
func (c *Config) Validate() error {
	var errs []error

	switch c.VerifierMode {
	case VerifierModeRecaptcha:
		if strings.TrimSpace(c.RecaptchaSecretKey) == "" {
			errs = append(errs, errors.New("RECAPTCHA_SECRET_KEY is required"))
		}
	case VerifierModeStatic:
		if c.IsProduction() {
			errs = append(errs, errors.New("VERIFIER_MODE=static is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VERIFIER_MODE %q", c.VerifierMode))
	}
	if c.RecaptchaMinScore < 0 || c.RecaptchaMinScore > 1 {
		errs = append(errs, fmt.Errorf("RECAPTCHA_MIN_SCORE must be within [0,1], got %v", c.RecaptchaMinScore))
	}

	switch c.CalendarMode {
	case CalendarModeGoogle:
		if strings.TrimSpace(c.GoogleCalendarID) == "" {
			errs = append(errs, errors.New("GOOGLE_CALENDAR_ID is required"))
		}
		hasKeyPair := strings.TrimSpace(c.GoogleClientEmail) != "" && strings.TrimSpace(c.GooglePrivateKey) != ""
		if !hasKeyPair && strings.TrimSpace(c.GoogleCredentialsJSON) == "" {
			errs = append(errs, errors.New("GOOGLE_CLIENT_EMAIL/GOOGLE_PRIVATE_KEY or GOOGLE_CREDENTIALS_JSON is required"))
		}
	case CalendarModeLog:
		if c.IsProduction() {
			errs = append(errs, errors.New("CALENDAR_MODE=log is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CALENDAR_MODE %q", c.CalendarMode))
	}

	if _, err := time.LoadLocation(c.BookingTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.BookingTimezone, err))
	}

	switch c.ReplayStore {
	case ReplayStoreNone, "":
	case ReplayStoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when REPLAY_STORE=redis"))
		}
	case ReplayStoreDynamoDB:
		if strings.TrimSpace(c.ReplayTable) == "" {
			errs = append(errs, errors.New("REPLAY_TABLE is required when REPLAY_STORE=dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REPLAY_STORE %q", c.ReplayStore))
	}

	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
