package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wolfman30/booking-webhook/internal/observability/metrics"
	"github.com/wolfman30/booking-webhook/internal/replay"
	"github.com/wolfman30/booking-webhook/pkg/logging"
)

const (
	// IdempotencyKeyHeader lets clients name a submission explicitly.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the replay store.
	ReplayedHeader = "Idempotent-Replayed"
)

// Handler exposes the booking pipeline over HTTP.
type Handler struct {
	processor Processor
	store     replay.Store
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

// NewHandler wires the handler. store may be nil to disable replay.
func NewHandler(processor Processor, store replay.Store, m *metrics.BookingMetrics, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("booking: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{processor: processor, store: store, metrics: m, logger: logger}
}

// Book handles POST /api/book.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()

	req, err := DecodeRequest(r)
	if err != nil {
		out := Rejected(err)
		h.logger.Info("booking payload rejected", "error", err)
		h.write(w, out.StatusCode(), out.Response())
		h.metrics.ObserveRequest(string(out.State), time.Since(started).Seconds())
		return
	}

	key, done := h.reserve(ctx, w, r, req)
	if done {
		return
	}

	out := h.processor.Process(ctx, req)
	status := out.StatusCode()
	body, err := json.Marshal(out.Response())
	if err != nil {
		h.logger.Error("failed to encode booking response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"internal error"}`)
	}

	if key != "" {
		h.settle(ctx, key, out, status, body)
	}

	writeRaw(w, status, body)
	h.metrics.ObserveRequest(string(out.State), time.Since(started).Seconds())
}

// Preflight answers CORS preflight with no body. Headers come from the
// CORS middleware.
func (h *Handler) Preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// MethodNotAllowed rejects every verb other than POST and OPTIONS.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	h.write(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
}

// reserve claims the replay key for req. done reports that a replayed or
// conflict response was already written. key is "" when replay is off or
// unavailable, so processing continues without it.
func (h *Handler) reserve(ctx context.Context, w http.ResponseWriter, r *http.Request, req *Request) (key string, done bool) {
	if h.store == nil {
		return "", false
	}
	key = replay.Key(r.Header.Get(IdempotencyKeyHeader), req.VerificationToken)
	if key == "" {
		return "", false
	}

	rec, err := h.store.Reserve(ctx, key)
	switch {
	case err != nil:
		h.metrics.ObserveReplay("error")
		h.logger.Warn("replay store unavailable, processing without replay protection", "error", err)
		return "", false
	case rec == nil:
		h.metrics.ObserveReplay("reserved")
		return key, false
	case rec.Status == replay.StatusCompleted:
		h.metrics.ObserveReplay("replayed")
		w.Header().Set(ReplayedHeader, "true")
		writeRaw(w, rec.StatusCode, []byte(rec.Body))
		return "", true
	default:
		h.metrics.ObserveReplay("in_progress")
		h.write(w, http.StatusConflict, Response{Error: "request already in progress"})
		return "", true
	}
}

// settle stores the response once calendar writes were attempted; any
// other outcome is safe to retry, so the reservation is dropped.
func (h *Handler) settle(ctx context.Context, key string, out *Outcome, status int, body []byte) {
	ctx = context.WithoutCancel(ctx)
	if out.WritesAttempted() {
		if err := h.store.Complete(ctx, key, status, body); err != nil {
			h.logger.Warn("failed to store booking response for replay", "error", err)
		}
		return
	}
	if err := h.store.Release(ctx, key); err != nil {
		h.logger.Warn("failed to release replay reservation", "error", err)
	}
}

func (h *Handler) write(w http.ResponseWriter, status int, resp Response) {
	body, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to encode response", "error", err)
		body = []byte(`{"success":false,"error":"internal error"}`)
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
