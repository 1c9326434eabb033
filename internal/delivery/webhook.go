package delivery

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rcliao/rapport/internal/model"
)

// DefaultWebhookTimeout bounds a single POST.
const DefaultWebhookTimeout = 10 * time.Second

// Webhook POSTs each request as JSON from a background goroutine.
type Webhook struct {
	url    string
	client *http.Client
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewWebhook(url string, timeout time.Duration, log *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, log: log}
}

// Timeout bounds each POST.
func (w *Webhook) Timeout() time.Duration { return w.client.Timeout }

// Deliver returns immediately; the outcome is only logged.
func (w *Webhook) Deliver(_ context.Context, r Request) Result {
	b, err := encode(r)
	if err != nil {
		w.log.Warn("webhook encode failed", "id", r.ID, "err", err)
		return Result{ID: r.ID, Kind: model.KindInvalid}
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.post(r.ID, b)
	}()
	return Result{ID: r.ID, Kind: model.KindNone}
}

func (w *Webhook) post(id string, body []byte) {
	// detached from the tick's context so the tick can finish first
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.log.Warn("webhook request invalid", "id", id, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Warn("webhook delivery failed", "id", id, "err", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		w.log.Warn("webhook rejected check-in", "id", id, "status", resp.StatusCode)
		return
	}
	w.log.Debug("webhook delivered", "id", id, "status", resp.StatusCode)
}

// Wait blocks until in-flight posts finish. Used on shutdown.
func (w *Webhook) Wait() { w.wg.Wait() }
