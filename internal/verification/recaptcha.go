package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/booking-webhook/pkg/logging"
)

const defaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var recaptchaTracer = otel.Tracer("booking.internal.verification.recaptcha")

// RecaptchaConfig controls how the reCAPTCHA v3 verifier behaves.
type RecaptchaConfig struct {
	Secret    string
	VerifyURL string
	// MinScore is the lowest score that is still accepted, within [0,1].
	MinScore float64
	// ExpectedAction, when set, must match the action bound to the token.
	ExpectedAction string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Logger         *logging.Logger
}

// RecaptchaVerifier checks tokens against Google's siteverify endpoint.
type RecaptchaVerifier struct {
	secret         string
	verifyURL      string
	minScore       float64
	expectedAction string
	httpClient     *http.Client
	logger         *logging.Logger
}

var _ Verifier = (*RecaptchaVerifier)(nil)

type siteverifyResponse struct {
	Success     bool     `json:"success"`
	Score       float64  `json:"score"`
	Action      string   `json:"action"`
	Hostname    string   `json:"hostname"`
	ChallengeTS string   `json:"challenge_ts"`
	ErrorCodes  []string `json:"error-codes"`
}

// NewRecaptchaVerifier builds a verifier with sane defaults.
func NewRecaptchaVerifier(cfg RecaptchaConfig) (*RecaptchaVerifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("verification: recaptcha secret is required")
	}
	if cfg.MinScore < 0 || cfg.MinScore > 1 {
		return nil, fmt.Errorf("verification: min score %v outside [0,1]", cfg.MinScore)
	}
	verifyURL := strings.TrimSpace(cfg.VerifyURL)
	if verifyURL == "" {
		verifyURL = defaultVerifyURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &RecaptchaVerifier{
		secret:         cfg.Secret,
		verifyURL:      verifyURL,
		minScore:       cfg.MinScore,
		expectedAction: strings.TrimSpace(cfg.ExpectedAction),
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// Verify performs exactly one siteverify call. Transport failures, non-2xx
// answers and undecodable bodies are reported as ErrUnavailable; anything
// the upstream answered coherently becomes a Result.
func (v *RecaptchaVerifier) Verify(ctx context.Context, token string) (Result, error) {
	if strings.TrimSpace(token) == "" {
		return Result{}, ErrMissingToken
	}

	ctx, span := recaptchaTracer.Start(ctx, "verification.recaptcha.verify")
	defer span.End()

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "siteverify call failed")
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, "siteverify non-2xx")
		return Result{}, fmt.Errorf("%w: siteverify status %d", ErrUnavailable, resp.StatusCode)
	}

	var sv siteverifyResponse
	if err := json.Unmarshal(body, &sv); err != nil {
		return Result{}, fmt.Errorf("%w: decode body: %v", ErrUnavailable, err)
	}

	result := v.evaluate(sv)
	span.SetAttributes(
		attribute.Bool("booking.verification.success", sv.Success),
		attribute.Float64("booking.verification.score", sv.Score),
		attribute.Bool("booking.verification.accepted", result.Accepted),
	)
	if !result.Accepted {
		v.logger.Info("verification rejected",
			"score", sv.Score,
			"min_score", v.minScore,
			"action", sv.Action,
			"error_codes", sv.ErrorCodes,
		)
	}
	return result, nil
}

func (v *RecaptchaVerifier) evaluate(sv siteverifyResponse) Result {
	result := Result{
		Success:    sv.Success,
		Score:      clampScore(sv.Score),
		Action:     sv.Action,
		Hostname:   sv.Hostname,
		ErrorCodes: sv.ErrorCodes,
	}
	switch {
	case !sv.Success:
		result.Reason = "verification failed"
		if len(sv.ErrorCodes) > 0 {
			result.Reason = "verification failed: " + strings.Join(sv.ErrorCodes, ", ")
		}
	case result.Score < v.minScore:
		result.Reason = fmt.Sprintf("verification score %.2f below threshold %.2f", result.Score, v.minScore)
	case v.expectedAction != "" && sv.Action != v.expectedAction:
		result.Reason = fmt.Sprintf("unexpected verification action %q", sv.Action)
	default:
		result.Accepted = true
	}
	return result
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
