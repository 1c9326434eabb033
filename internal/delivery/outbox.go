package delivery

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rcliao/rapport/internal/model"
)

// OutboxFile is the JSON-lines queue an agent runtime drains.
const OutboxFile = "outbox.jsonl"

// Outbox appends one JSON line per request.
type Outbox struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

func NewOutbox(path string, log *slog.Logger) *Outbox {
	return &Outbox{path: path, log: log}
}

func (o *Outbox) Path() string { return o.path }

func (o *Outbox) Deliver(_ context.Context, r Request) Result {
	b, err := encode(r)
	if err != nil {
		o.log.Warn("outbox encode failed", "id", r.ID, "err", err)
		return Result{ID: r.ID, Kind: model.KindInvalid}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		o.log.Warn("outbox unavailable", "path", o.path, "err", err)
		return Result{ID: r.ID, Kind: model.KindUnavailable}
	}
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		o.log.Warn("outbox unavailable", "path", o.path, "err", err)
		return Result{ID: r.ID, Kind: model.KindUnavailable}
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		o.log.Warn("outbox write failed", "path", o.path, "err", err)
		return Result{ID: r.ID, Kind: model.KindUnavailable}
	}
	o.log.Debug("check-in queued", "id", r.ID, "path", o.path)
	return Result{ID: r.ID, Kind: model.KindNone}
}
