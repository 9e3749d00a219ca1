package calendar

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-webhook/pkg/logging"
)

// LogWriter records events in the log instead of a real calendar. Used for
// local development only.
type LogWriter struct {
	logger *logging.Logger
}

var _ Writer = (*LogWriter)(nil)

func NewLogWriter(logger *logging.Logger) *LogWriter {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Insert(_ context.Context, calendarID string, event Event) (string, error) {
	if strings.TrimSpace(calendarID) == "" {
		return "", errors.New("calendar: calendar id required")
	}
	id := "local-" + uuid.NewString()
	w.logger.Info("calendar event recorded",
		"calendar_id", calendarID,
		"event_id", id,
		"start", event.Start.Format(time.RFC3339),
		"end", event.End.Format(time.RFC3339),
		"all_day", event.AllDay,
	)
	return id, nil
}
