// Package calendar writes booking events to an external calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Event is the provider-neutral event this service creates. For all-day
// events Start and End carry the same calendar date (inclusive).
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	TimeZone    string
}

// Writer inserts events. Providers may deliver at least once; no dedup key
// is sent, so a retried insert can create a duplicate event.
type Writer interface {
	Insert(ctx context.Context, calendarID string, event Event) (string, error)
}

// WriteError carries the provider's own message for a rejected insert.
type WriteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *WriteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("calendar: insert failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("calendar: insert failed: %s", e.Message)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Reason returns the upstream message for err, suitable for callers.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var werr *WriteError
	if errors.As(err, &werr) && werr.Message != "" {
		return werr.Message
	}
	return err.Error()
}
