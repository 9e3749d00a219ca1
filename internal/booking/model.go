// Package booking turns verified booking-form submissions into calendar
// events, one per selected appointment, and reports a per-appointment
// outcome.
package booking

import (
	"errors"
	"net/http"

	"github.com/wolfman30/booking-webhook/internal/verification"
)

// Contact holds the submitter's details. FirstName, LastName, Phone and
// Email are required; the rest are optional.
type Contact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Garments  string `json:"garments,omitempty"`
	EventInfo string `json:"eventInfo,omitempty"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Request is one decoded booking-form submission. Appointments keep the
// order the client sent them in.
type Request struct {
	Contact           Contact
	VerificationToken string
	Appointments      []string
}

// Status is the per-appointment result.
type Status string

const (
	StatusCreated Status = "created"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// AppointmentResult reports what happened to one appointment text.
type AppointmentResult struct {
	Appointment string `json:"appointment"`
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
	EventID     string `json:"eventId,omitempty"`
}

// State tracks a request through the pipeline.
type State string

const (
	StateValidating             State = "validating"
	StateVerifying              State = "verifying"
	StateProcessingAppointments State = "processing_appointments"
	StateResponding             State = "responding"

	// Terminal states.
	StateSucceeded State = "succeeded"
	StateRejected  State = "rejected"
	StateErrored   State = "errored"
)

// Outcome is the result of processing one Request.
type Outcome struct {
	State        State
	Err          error
	Verification *verification.Result
	Results      []AppointmentResult
}

// Rejected builds a terminal outcome for a request-level rejection.
func Rejected(err error) *Outcome {
	return &Outcome{State: StateRejected, Err: err}
}

// Counts tallies per-appointment statuses.
func (o *Outcome) Counts() (created, skipped, failed int) {
	for _, r := range o.Results {
		switch r.Status {
		case StatusCreated:
			created++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return created, skipped, failed
}

// WritesAttempted reports whether any calendar insert was issued.
func (o *Outcome) WritesAttempted() bool {
	created, _, failed := o.Counts()
	return created+failed > 0
}

// StatusCode maps the outcome onto the HTTP contract.
func (o *Outcome) StatusCode() int {
	if o.State == StateSucceeded {
		return http.StatusOK
	}
	var verr *ValidationError
	switch {
	case errors.As(o.Err, &verr):
		return http.StatusBadRequest
	case errors.Is(o.Err, ErrNoValidAppointments):
		return http.StatusBadRequest
	case errors.Is(o.Err, ErrVerificationRejected):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Response is the JSON body returned to the booking form.
type Response struct {
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Details []AppointmentResult `json:"details,omitempty"`
}

// Response renders the outcome for the caller.
func (o *Outcome) Response() Response {
	resp := Response{
		Success: o.State == StateSucceeded,
		Details: o.Results,
	}
	if !resp.Success {
		resp.Error = publicMessage(o.Err)
	}
	return resp
}
