package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrVerificationRejected means the bot check explicitly failed or
	// scored below the threshold.
	ErrVerificationRejected = errors.New("verification failed")
	// ErrVerificationUnavailable means the bot check could not be completed.
	ErrVerificationUnavailable = errors.New("verification service unavailable")
	// ErrNoValidAppointments means every appointment was skipped as unparseable.
	ErrNoValidAppointments = errors.New("no valid appointment could be read")
	// ErrNothingBooked means at least one insert was attempted and none succeeded.
	ErrNothingBooked = errors.New("no appointments could be booked")
)

// Check names a validation step, in the order they run.
type Check string

const (
	CheckPayload      Check = "payload"
	CheckToken        Check = "verification_token"
	CheckContact      Check = "contact"
	CheckAppointments Check = "appointments"
)

// ValidationError reports the first failed validation check.
type ValidationError struct {
	Check  Check
	Reason string
	// Fields lists missing contact fields for CheckContact.
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking: %s invalid: %s", e.Check, e.Reason)
}

func publicMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		if len(verr.Fields) > 0 {
			return verr.Reason + ": " + strings.Join(verr.Fields, ", ")
		}
		return verr.Reason
	case errors.Is(err, ErrVerificationRejected):
		return ErrVerificationRejected.Error()
	case errors.Is(err, ErrVerificationUnavailable):
		return ErrVerificationUnavailable.Error()
	case errors.Is(err, ErrNoValidAppointments):
		return ErrNoValidAppointments.Error()
	case errors.Is(err, ErrNothingBooked):
		return ErrNothingBooked.Error()
	default:
		return "internal error"
	}
}
