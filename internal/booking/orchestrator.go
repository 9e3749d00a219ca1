package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/booking-webhook/internal/appointments"
	"github.com/wolfman30/booking-webhook/internal/calendar"
	"github.com/wolfman30/booking-webhook/internal/observability/metrics"
	"github.com/wolfman30/booking-webhook/internal/verification"
	"github.com/wolfman30/booking-webhook/pkg/logging"
)

const (
	defaultInsertConcurrency = 4
	insertTimeout            = 15 * time.Second
)

var orchestratorTracer = otel.Tracer("booking.internal.booking.orchestrator")

// Processor runs one decoded request through the pipeline.
type Processor interface {
	Process(ctx context.Context, req *Request) *Outcome
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Verifier   verification.Verifier
	Writer     calendar.Writer
	Parser     *appointments.Parser
	CalendarID string
	// InsertConcurrency bounds parallel inserts within one request.
	InsertConcurrency int
	Metrics           *metrics.BookingMetrics
	Logger            *logging.Logger
}

// Orchestrator sequences verification, validation and per-appointment
// event creation for a single request.
type Orchestrator struct {
	verifier    verification.Verifier
	writer      calendar.Writer
	parser      *appointments.Parser
	builder     *EventBuilder
	calendarID  string
	concurrency int
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
}

var _ Processor = (*Orchestrator)(nil)

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("booking: verifier is required")
	}
	if cfg.Writer == nil {
		return nil, errors.New("booking: calendar writer is required")
	}
	if cfg.Parser == nil {
		return nil, errors.New("booking: appointment parser is required")
	}
	if strings.TrimSpace(cfg.CalendarID) == "" {
		return nil, errors.New("booking: calendar id is required")
	}
	concurrency := cfg.InsertConcurrency
	if concurrency <= 0 {
		concurrency = defaultInsertConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		verifier:    cfg.Verifier,
		writer:      cfg.Writer,
		parser:      cfg.Parser,
		builder:     NewEventBuilder(cfg.Parser.Location().String()),
		calendarID:  cfg.CalendarID,
		concurrency: concurrency,
		metrics:     cfg.Metrics,
		logger:      logger,
	}, nil
}

// Process runs the request to a terminal state. It never returns nil.
//
// Checks run in a fixed order and stop at the first failure: token
// presence, contact fields, verification, appointment list. A submission
// with incomplete contact details never reaches the verifier, and no
// calendar write happens before all checks pass.
func (o *Orchestrator) Process(ctx context.Context, req *Request) *Outcome {
	ctx, span := orchestratorTracer.Start(ctx, "booking.process")
	defer span.End()

	out := &Outcome{State: StateValidating}
	if err := ValidateToken(req); err != nil {
		return o.finish(span, out, StateRejected, err)
	}
	if err := ValidateContact(req); err != nil {
		return o.finish(span, out, StateRejected, err)
	}

	out.State = StateVerifying
	result, err := o.verifier.Verify(ctx, req.VerificationToken)
	if err != nil {
		o.metrics.ObserveVerification("error")
		o.logger.Error("verification call failed", "error", err)
		return o.finish(span, out, StateErrored, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err))
	}
	out.Verification = &result
	if !result.Accepted {
		o.metrics.ObserveVerification("rejected")
		return o.finish(span, out, StateRejected, fmt.Errorf("%w: %s", ErrVerificationRejected, result.Reason))
	}
	o.metrics.ObserveVerification("accepted")

	if err := ValidateAppointments(req); err != nil {
		return o.finish(span, out, StateRejected, err)
	}

	out.State = StateProcessingAppointments
	out.Results = o.processAppointments(ctx, req)

	out.State = StateResponding
	created, skipped, failed := out.Counts()
	span.SetAttributes(
		attribute.Int("booking.appointments.created", created),
		attribute.Int("booking.appointments.skipped", skipped),
		attribute.Int("booking.appointments.failed", failed),
	)
	o.logger.Info("booking processed",
		"email", logging.RedactEmail(req.Contact.Email),
		"created", created,
		"skipped", skipped,
		"failed", failed,
	)
	switch {
	case created > 0:
		return o.finish(span, out, StateSucceeded, nil)
	case failed > 0:
		return o.finish(span, out, StateErrored, ErrNothingBooked)
	default:
		return o.finish(span, out, StateRejected, ErrNoValidAppointments)
	}
}

// processAppointments parses every appointment in order and issues inserts
// for the parseable ones concurrently. Results stay in input order. A
// failed insert never cancels its siblings, and inserts outlive a caller
// that goes away mid-batch because created events cannot be retracted.
func (o *Orchestrator) processAppointments(ctx context.Context, req *Request) []AppointmentResult {
	results := make([]AppointmentResult, len(req.Appointments))
	insertCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, text := range req.Appointments {
		results[i].Appointment = text

		interval, err := o.parser.Parse(text)
		if err != nil {
			results[i].Status = StatusSkipped
			results[i].Reason = skipReason(err)
			o.metrics.ObserveAppointment(string(StatusSkipped))
			o.logger.Debug("appointment skipped", "index", i, "error", err)
			continue
		}

		event := o.builder.Build(req, interval)
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(insertCtx, insertTimeout)
			defer cancel()

			id, err := o.writer.Insert(callCtx, o.calendarID, event)
			if err != nil {
				results[i].Status = StatusFailed
				results[i].Reason = calendar.Reason(err)
				o.metrics.ObserveAppointment(string(StatusFailed))
				o.logger.Warn("calendar insert failed", "index", i, "error", err)
				return nil
			}
			results[i].Status = StatusCreated
			results[i].EventID = id
			o.metrics.ObserveAppointment(string(StatusCreated))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MaxBatchDuration bounds how long the insert phase of one request can run
// at the given concurrency. Replay reservations must outlive it.
func MaxBatchDuration(concurrency int) time.Duration {
	if concurrency <= 0 {
		concurrency = defaultInsertConcurrency
	}
	rounds := (MaxAppointments + concurrency - 1) / concurrency
	return time.Duration(rounds) * insertTimeout
}

func (o *Orchestrator) finish(span trace.Span, out *Outcome, state State, err error) *Outcome {
	out.State = state
	out.Err = err
	span.SetAttributes(attribute.String("booking.state", string(state)))
	if err != nil && state == StateRejected {
		o.logger.Info("booking rejected", "reason", err.Error())
	}
	return out
}

func skipReason(err error) string {
	var perr *appointments.ParseError
	if errors.As(err, &perr) {
		return "could not read appointment: " + perr.Err.Error()
	}
	return err.Error()
}
