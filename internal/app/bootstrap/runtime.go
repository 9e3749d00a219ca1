package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-webhook/internal/appointments"
	"github.com/wolfman30/booking-webhook/internal/booking"
	"github.com/wolfman30/booking-webhook/internal/calendar"
	appconfig "github.com/wolfman30/booking-webhook/internal/config"
	"github.com/wolfman30/booking-webhook/internal/observability/metrics"
	"github.com/wolfman30/booking-webhook/internal/replay"
	"github.com/wolfman30/booking-webhook/internal/verification"
	"github.com/wolfman30/booking-webhook/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildVerifier returns the bot-check implementation selected by config.
func BuildVerifier(cfg *appconfig.Config, logger *logging.Logger) (verification.Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	switch cfg.VerifierMode {
	case appconfig.VerifierModeStatic:
		if cfg.IsProduction() {
			return nil, fmt.Errorf("bootstrap: static verifier is not allowed in production")
		}
		if logger != nil {
			logger.Warn("bot verification disabled; every token is accepted")
		}
		return verification.StaticVerifier{}, nil
	case appconfig.VerifierModeRecaptcha, "":
		return verification.NewRecaptchaVerifier(verification.RecaptchaConfig{
			Secret:         cfg.RecaptchaSecretKey,
			VerifyURL:      cfg.RecaptchaVerifyURL,
			MinScore:       cfg.RecaptchaMinScore,
			ExpectedAction: cfg.RecaptchaExpectedAction,
			Timeout:        cfg.VerifierTimeout,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("bootstrap: unknown verifier mode %q", cfg.VerifierMode)
	}
}

// BuildCalendarWriter returns the calendar backend selected by config.
func BuildCalendarWriter(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (calendar.Writer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	switch cfg.CalendarMode {
	case appconfig.CalendarModeLog:
		if cfg.IsProduction() {
			return nil, fmt.Errorf("bootstrap: log calendar is not allowed in production")
		}
		return calendar.NewLogWriter(logger), nil
	case appconfig.CalendarModeGoogle, "":
		return calendar.NewGoogleWriter(ctx, calendar.GoogleCredentials{
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			ClientEmail:     cfg.GoogleClientEmail,
			PrivateKey:      cfg.GooglePrivateKey,
		}, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown calendar mode %q", cfg.CalendarMode)
	}
}

// BuildReplayStore returns the configured replay store, or nil when replay
// protection is off. The client for the selected backend must be non-nil.
func BuildReplayStore(cfg *appconfig.Config, redisClient *redis.Client, dynamoClient *dynamodb.Client, logger *logging.Logger) (replay.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	opts := replay.Options{TTL: cfg.ReplayTTL, PendingTTL: pendingTTL(cfg.InsertConcurrency)}
	switch cfg.ReplayStore {
	case appconfig.ReplayStoreNone, "":
		return nil, nil
	case appconfig.ReplayStoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: replay store %q needs a redis client", cfg.ReplayStore)
		}
		return replay.NewRedisStore(redisClient, opts), nil
	case appconfig.ReplayStoreDynamoDB:
		if dynamoClient == nil {
			return nil, fmt.Errorf("bootstrap: replay store %q needs a dynamodb client", cfg.ReplayStore)
		}
		return replay.NewDynamoStore(dynamoClient, cfg.ReplayTable, opts, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown replay store %q", cfg.ReplayStore)
	}
}

// pendingTTL keeps a reservation alive for the slowest possible batch plus
// time for verification and the response.
func pendingTTL(concurrency int) time.Duration {
	ttl := booking.MaxBatchDuration(concurrency) + 30*time.Second
	if ttl < replay.DefaultPendingTTL {
		return replay.DefaultPendingTTL
	}
	return ttl
}

// BuildOrchestrator assembles the booking pipeline around its collaborators.
func BuildOrchestrator(cfg *appconfig.Config, verifier verification.Verifier, writer calendar.Writer, m *metrics.BookingMetrics, logger *logging.Logger) (*booking.Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	parser, err := appointments.NewParserForZone(cfg.BookingTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	calendarID := strings.TrimSpace(cfg.GoogleCalendarID)
	if calendarID == "" && cfg.CalendarMode == appconfig.CalendarModeLog {
		calendarID = "local"
	}
	return booking.NewOrchestrator(booking.OrchestratorConfig{
		Verifier:          verifier,
		Writer:            writer,
		Parser:            parser,
		CalendarID:        calendarID,
		InsertConcurrency: cfg.InsertConcurrency,
		Metrics:           m,
		Logger:            logger,
	})
}
