package mainconfig

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-webhook/internal/api/router"
	"github.com/wolfman30/booking-webhook/internal/app/bootstrap"
	"github.com/wolfman30/booking-webhook/internal/booking"
	appconfig "github.com/wolfman30/booking-webhook/internal/config"
	httpmiddleware "github.com/wolfman30/booking-webhook/internal/http/middleware"
	"github.com/wolfman30/booking-webhook/internal/observability/metrics"
	"github.com/wolfman30/booking-webhook/internal/replay"
	"github.com/wolfman30/booking-webhook/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so both binaries share the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				if service == dynamodb.ServiceID {
					return aws.Endpoint{
						URL:           endpoint,
						PartitionID:   "aws",
						SigningRegion: cfg.AWSRegion,
					}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			},
		)
	}

	return awsCfg, nil
}

// App is the fully wired HTTP surface shared by the server and the Lambda.
type App struct {
	Handler http.Handler

	limiter     *httpmiddleware.RateLimiter
	redisClient *redis.Client
}

// Close releases background resources.
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
}

// Build constructs every collaborator once and returns the routed handler.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(reg)

	verifier, err := bootstrap.BuildVerifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	writer, err := bootstrap.BuildCalendarWriter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	orchestrator, err := bootstrap.BuildOrchestrator(cfg, verifier, writer, bookingMetrics, logger)
	if err != nil {
		return nil, err
	}

	app := &App{}
	replayStore, err := buildReplayStore(ctx, cfg, app, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.RateLimitRPS > 0 {
		app.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	app.Handler = router.New(&router.Config{
		Logger:             logger,
		BookingHandler:     booking.NewHandler(orchestrator, replayStore, bookingMetrics, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        app.limiter,
	})
	return app, nil
}

// buildReplayStore degrades to no replay protection when Redis is
// unreachable at startup; misconfiguration is still an error.
func buildReplayStore(ctx context.Context, cfg *appconfig.Config, app *App, logger *logging.Logger) (replay.Store, error) {
	var dynamoClient *dynamodb.Client
	switch cfg.ReplayStore {
	case appconfig.ReplayStoreRedis:
		app.redisClient = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if app.redisClient == nil {
			logger.Warn("replay protection disabled: redis unreachable", "addr", cfg.RedisAddr)
			return nil, nil
		}
	case appconfig.ReplayStoreDynamoDB:
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	}
	return bootstrap.BuildReplayStore(cfg, app.redisClient, dynamoClient, logger)
}
