// Package notify pushes "context updated" events to an external consumer
// endpoint, so a dashboard backend can long-poll its own process instead of
// the engine. Delivery is best effort with bounded retries; the in-process
// subscription on the manager remains the authoritative signal.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event is the webhook payload. It carries no snapshot data: receivers are
// expected to re-query the engine.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Delivery records one delivery attempt, kept for inspection.
type Delivery struct {
	EventID    string    `json:"event_id"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier posts update events to a single configured URL.
type Notifier struct {
	mu         sync.Mutex
	url        string
	logger     *slog.Logger
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	counter    int
	deliveries []Delivery
}

// Config configures a Notifier.
type Config struct {
	URL        string
	Logger     *slog.Logger
	MaxRetries int
	RetryDelay time.Duration
}

// New creates a notifier. An empty URL yields a notifier that drops events.
func New(cfg Config) *Notifier {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Notifier{
		url:        cfg.URL,
		logger:     cfg.Logger,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Updated fires a "context.updated" event asynchronously. It is safe to
// call from a manager subscription callback.
func (n *Notifier) Updated() {
	n.mu.Lock()
	if n.url == "" {
		n.mu.Unlock()
		return
	}
	n.counter++
	evt := Event{
		ID:        fmt.Sprintf("evt_%06d", n.counter),
		Type:      "context.updated",
		CreatedAt: time.Now(),
	}
	n.mu.Unlock()

	go n.deliver(evt)
}

func (n *Notifier) deliver(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		n.logger.Error("notify marshal failed", slog.Any("error", err))
		return
	}

	for attempt := 1; attempt <= n.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			n.logger.Error("notify request failed", slog.Any("error", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		delivery := Delivery{
			EventID:   evt.ID,
			URL:       n.url,
			Attempt:   attempt,
			Timestamp: time.Now(),
		}
		if err != nil {
			delivery.Error = err.Error()
		} else {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			delivery.StatusCode = resp.StatusCode
		}

		n.mu.Lock()
		n.deliveries = append(n.deliveries, delivery)
		n.mu.Unlock()

		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		if attempt < n.maxRetries {
			time.Sleep(n.retryDelay)
		}
	}
	n.logger.Warn("notify delivery gave up", slog.String("event", evt.ID))
}

// Deliveries returns a copy of the delivery log.
func (n *Notifier) Deliveries() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Delivery, len(n.deliveries))
	copy(out, n.deliveries)
	return out
}
