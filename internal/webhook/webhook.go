// Package webhook fires fire-and-forget HTTP callbacks to resident
// webhook URLs and the configured system collector, off the tick
// scheduler's hot path.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/havenport/worldserver/internal/config"
)

// Dispatcher bounds outbound webhook concurrency and enforces a fixed
// per-request timeout. Fire is safe to call from the scheduler
// goroutine: it never blocks past acquiring a semaphore slot — the
// actual HTTP call runs on its own goroutine.
type Dispatcher struct {
	client  *http.Client
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *zap.Logger
}

func New(cfg config.WebhookConfig, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		timeout: cfg.Timeout,
		log:     log,
	}
}

// Deliver posts kind/payload to a specific resident's configured
// webhook URL. A no-op if url is empty.
func (d *Dispatcher) Deliver(url, kind string, payload map[string]any) {
	if url == "" {
		return
	}
	d.post(url, kind, payload)
}

// Fire posts to the process-wide system webhook, if configured. Most
// domain systems depend on this narrower signature via their own local
// Webhook interface rather than importing this package directly.
func (d *Dispatcher) Fire(kind string, payload map[string]any) {
	d.post("", kind, payload)
}

func (d *Dispatcher) post(url, kind string, payload map[string]any) {
	if !d.sem.TryAcquire(1) {
		d.log.Warn("webhook dropped, dispatcher saturated", zap.String("kind", kind))
		return
	}

	// deliveryID correlates this attempt across log lines on both ends;
	// it has to exist before the request is built, well before any DB
	// round-trip could mint one.
	deliveryID := uuid.NewString()
	body, err := json.Marshal(map[string]any{"type": kind, "delivery_id": deliveryID, "payload": payload})
	if err != nil {
		d.sem.Release(1)
		d.log.Error("webhook marshal failed", zap.String("kind", kind), zap.Error(err))
		return
	}

	go func() {
		defer d.sem.Release(1)
		d.send(url, kind, deliveryID, body)
	}()
}

func (d *Dispatcher) send(url, kind, deliveryID string, body []byte) {
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.log.Error("webhook request build failed", zap.String("kind", kind), zap.String("delivery_id", deliveryID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warn("webhook delivery failed", zap.String("kind", kind), zap.String("delivery_id", deliveryID), zap.String("url", url), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.log.Warn("webhook rejected", zap.String("kind", kind), zap.String("delivery_id", deliveryID), zap.String("url", url), zap.Int("status", resp.StatusCode))
	}
}
