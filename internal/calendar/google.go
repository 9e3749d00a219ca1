package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/booking-webhook/pkg/logging"
)

const googleTokenURI = "https://oauth2.googleapis.com/token"

var googleTracer = otel.Tracer("booking.internal.calendar.google")

// GoogleCredentials identifies the service account used to write events.
// Either CredentialsJSON or the ClientEmail/PrivateKey pair must be set.
type GoogleCredentials struct {
	CredentialsJSON string
	ClientEmail     string
	PrivateKey      string
}

// JSON returns a service-account credentials document. Private keys copied
// from environment variables often carry literal "\n" sequences; they are
// expanded here.
func (c GoogleCredentials) JSON() ([]byte, error) {
	if raw := strings.TrimSpace(c.CredentialsJSON); raw != "" {
		return []byte(raw), nil
	}
	email := strings.TrimSpace(c.ClientEmail)
	key := strings.TrimSpace(c.PrivateKey)
	if email == "" || key == "" {
		return nil, errors.New("calendar: service account email and private key are required")
	}
	key = strings.ReplaceAll(key, `\n`, "\n")
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": email,
		"private_key":  key,
		"token_uri":    googleTokenURI,
	})
}

// GoogleWriter inserts events through the Google Calendar v3 API.
type GoogleWriter struct {
	events *gcal.EventsService
	logger *logging.Logger
}

var _ Writer = (*GoogleWriter)(nil)

// NewGoogleWriter authenticates with the service account and scopes the
// client to event writes.
func NewGoogleWriter(ctx context.Context, creds GoogleCredentials, logger *logging.Logger) (*GoogleWriter, error) {
	raw, err := creds.JSON()
	if err != nil {
		return nil, err
	}
	return NewGoogleWriterWithOptions(ctx, logger,
		option.WithCredentialsJSON(raw),
		option.WithScopes(gcal.CalendarEventsScope),
	)
}

// NewGoogleWriterWithOptions builds a writer from raw client options.
func NewGoogleWriterWithOptions(ctx context.Context, logger *logging.Logger, opts ...option.ClientOption) (*GoogleWriter, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create google service: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleWriter{events: svc.Events, logger: logger}, nil
}

// Insert creates the event and returns the provider's event id.
func (w *GoogleWriter) Insert(ctx context.Context, calendarID string, event Event) (string, error) {
	if strings.TrimSpace(calendarID) == "" {
		return "", errors.New("calendar: calendar id required")
	}

	ctx, span := googleTracer.Start(ctx, "calendar.google.insert")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("booking.event.all_day", event.AllDay),
		attribute.String("booking.event.start", event.Start.Format(time.RFC3339)),
	)

	created, err := w.events.Insert(calendarID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return "", toWriteError(err)
	}
	span.SetAttributes(attribute.String("booking.event.id", created.Id))
	return created.Id, nil
}

// toGoogleEvent maps an Event onto the API shape. Google treats the end
// date of an all-day event as exclusive, so the inclusive single-day End
// is pushed to the following day.
func toGoogleEvent(event Event) *gcal.Event {
	out := &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
	}
	if event.AllDay {
		out.Start = &gcal.EventDateTime{Date: event.Start.Format(time.DateOnly)}
		out.End = &gcal.EventDateTime{Date: event.End.AddDate(0, 0, 1).Format(time.DateOnly)}
		return out
	}
	out.Start = &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339), TimeZone: event.TimeZone}
	out.End = &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339), TimeZone: event.TimeZone}
	return out
}

func toWriteError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := strings.TrimSpace(gerr.Message)
		if msg == "" {
			msg = strings.TrimSpace(gerr.Body)
		}
		if msg == "" {
			msg = fmt.Sprintf("http %d", gerr.Code)
		}
		return &WriteError{StatusCode: gerr.Code, Message: msg, Err: err}
	}
	return &WriteError{Message: err.Error(), Err: err}
}
