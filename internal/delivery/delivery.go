// Package delivery hands composed check-ins to the channel fabric. Every
// Deliverer is fire-and-forget: Deliver returns once the request is enqueued.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/rapport/internal/checkin"
	"github.com/rcliao/rapport/internal/model"
)

// Request is one check-in handed to the channel fabric.
type Request struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"createdAt"`
	Destination string        `json:"destination"`
	Message     string        `json:"message"`
	Hint        *checkin.Hint `json:"hint,omitempty"`
}

// Result reports whether the request was accepted for delivery. Kind reuses
// the collaborator error kinds.
type Result struct {
	ID   string
	Kind model.ErrorKind
}

// Deliverer accepts check-in requests.
type Deliverer interface {
	Deliver(ctx context.Context, r Request) Result
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewRequest builds a request with a fresh ULID.
func NewRequest(now time.Time, destination string, h checkin.Hint) Request {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy).String()
	entropyMu.Unlock()

	return Request{
		ID:          id,
		CreatedAt:   now.UTC(),
		Destination: destination,
		Message:     h.Render(),
		Hint:        &h,
	}
}

// Options selects and configures a Deliverer.
type Options struct {
	Kind       string // outbox, log or webhook
	OutboxPath string
	WebhookURL string
	Timeout    time.Duration
}

// New returns the configured Deliverer.
func New(o Options, log *slog.Logger) (Deliverer, error) {
	switch o.Kind {
	case "", "outbox":
		return NewOutbox(o.OutboxPath, log), nil
	case "log":
		return NewLog(log), nil
	case "webhook":
		return NewWebhook(o.WebhookURL, o.Timeout, log), nil
	default:
		return nil, fmt.Errorf("unknown delivery %q", o.Kind)
	}
}

// Log writes the request to the logger only.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log { return &Log{log: log} }

func (l *Log) Deliver(_ context.Context, r Request) Result {
	l.log.Info("check-in (dry run)", "id", r.ID, "destination", r.Destination, "message", r.Message)
	return Result{ID: r.ID, Kind: model.KindNone}
}

func encode(r Request) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return b, nil
}
