// Package replay makes booking submissions safe to retry. The first
// request for a key reserves it; once calendar writes were attempted the
// final response is stored and served verbatim to any replay of the key.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultPendingTTL = 2 * time.Minute

	keyPrefix = "booking:replay:"
)

// ErrNotReserved is returned when completing a key nobody reserved.
var ErrNotReserved = errors.New("replay: key not reserved")

// Status is the lifecycle of a replay record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Record is what the store keeps per key. Only the rendered response is
// kept, never the submitted contact details.
type Record struct {
	Key        string `json:"key" dynamodbav:"replayKey"`
	Status     Status `json:"status" dynamodbav:"status"`
	StatusCode int    `json:"statusCode,omitempty" dynamodbav:"statusCode,omitempty"`
	Body       string `json:"body,omitempty" dynamodbav:"body,omitempty"`
	CreatedAt  string `json:"createdAt" dynamodbav:"createdAt"`
	ExpiresAt  int64  `json:"expiresAt" dynamodbav:"expiresAt"`
}

// Store reserves keys and remembers completed responses.
type Store interface {
	// Reserve claims key for the caller. It returns (nil, nil) when the
	// caller now owns the key, or the existing record otherwise.
	Reserve(ctx context.Context, key string) (*Record, error)
	// Complete stores the final response for a reserved key.
	Complete(ctx context.Context, key string, statusCode int, body []byte) error
	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error
}

// Options tune record lifetimes.
type Options struct {
	// TTL is how long completed responses are replayed.
	TTL time.Duration
	// PendingTTL bounds how long an unfinished reservation blocks retries.
	PendingTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.PendingTTL <= 0 {
		o.PendingTTL = DefaultPendingTTL
	}
	return o
}

// Key derives the replay key for a submission. An explicit idempotency
// key wins; otherwise the verification token is used, since tokens are
// single-use and a retried submission carries the same one. The raw value
// is hashed so tokens are never stored. Empty inputs yield "".
func Key(idempotencyKey, verificationToken string) string {
	source := strings.TrimSpace(idempotencyKey)
	kind := "idem:"
	if source == "" {
		source = strings.TrimSpace(verificationToken)
		kind = "token:"
	}
	if source == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(kind + source))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func newRecord(key string, status Status, ttl time.Duration, now time.Time) Record {
	return Record{
		Key:       key,
		Status:    status,
		CreatedAt: now.UTC().Format(time.RFC3339Nano),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}
