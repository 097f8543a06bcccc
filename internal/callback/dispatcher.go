// Package callback implements the Callback Dispatcher (spec.md §4.5): a
// bounded worker pool that posts task-transition payloads to
// user-configured notify_hook URLs, retrying transient failures with
// exponential backoff.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/rs/zerolog"

	"github.com/mjproxy/core/internal/model"
)

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
	notifySecretHeader = "X-Notify-Secret"
)

// Record is a queued (url, payload) pair (spec.md §3 "Callback record"
// — transient, not persisted).
type Record struct {
	URL     string
	Secret  string
	Payload Payload
}

// Payload is the JSON body posted to notify_hook (spec.md §4.5).
type Payload struct {
	ID           string            `json:"id"`
	Status       model.Status      `json:"status"`
	Action       model.Action      `json:"action"`
	Progress     string            `json:"progress"`
	ImageURL     string            `json:"imageUrl,omitempty"`
	ThumbnailURL string            `json:"thumbnailUrl,omitempty"`
	FailReason   string            `json:"failReason,omitempty"`
	SubmitTime   int64             `json:"submitTime"`
	StartTime    int64             `json:"startTime,omitempty"`
	FinishTime   int64             `json:"finishTime,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
}

// PayloadFromTask builds the outbound payload for a terminal task.
func PayloadFromTask(t *model.Task) Payload {
	return Payload{
		ID:           t.ID,
		Status:       t.Status,
		Action:       t.Action,
		Progress:     t.Progress,
		ImageURL:     t.ImageURL,
		ThumbnailURL: t.ThumbnailURL,
		FailReason:   t.FailReason,
		SubmitTime:   t.SubmitTime,
		StartTime:    t.StartTime,
		FinishTime:   t.FinishTime,
		Properties:   t.Properties,
	}
}

// Dispatcher owns a bounded pool of workers draining a queue of
// Records.
type Dispatcher struct {
	queue   chan Record
	client  heimdall.Doer
	log     zerolog.Logger
	done    chan struct{}
}

// New builds a Dispatcher with the given worker count and queue depth
// (spec.md §4.5 "bounded worker pool of configurable size").
func New(workers, queueDepth int, log zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = workers * 4
	}

	backoff := heimdall.NewExponentialBackoff(500*time.Millisecond, 8*time.Second, 2.0, 2*time.Millisecond)
	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(requestTimeout),
		httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		httpclient.WithRetryCount(maxAttempts-1),
	)

	d := &Dispatcher{
		queue:  make(chan Record, queueDepth),
		client: client,
		log:    log.With().Str("component", "callback").Logger(),
		done:   make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		go d.worker(i)
	}
	return d
}

// Enqueue submits a notify_hook delivery without ever blocking the
// caller: when the bounded queue is full the new record is dropped and
// a warning is logged (spec.md §4.5 is silent on overflow behavior).
func (d *Dispatcher) Enqueue(r Record) {
	select {
	case d.queue <- r:
	default:
		d.log.Warn().Str("task", r.Payload.ID).Msg("callback queue full, dropping")
	}
}

// EnqueueTask is the convenience entry point the Account Runtime uses
// to satisfy account.Notifier.
func (d *Dispatcher) EnqueueTask(url, secret string, t *model.Task) {
	d.Enqueue(Record{URL: url, Secret: secret, Payload: PayloadFromTask(t)})
}

// Close signals the workers to stop; a delivery already in progress
// finishes on its own. Records still queued are not delivered, and
// Enqueue keeps accepting records after Close.
func (d *Dispatcher) Close() {
	close(d.done)
}

// notifySecretProperty is the task.Properties key a submitter can set
// to have its value echoed back as the X-Notify-Secret header, since
// model.Task has no dedicated secret field.
const notifySecretProperty = "notify_secret"

// NotifierAdapter satisfies account.Notifier over a Dispatcher, reading
// the delivery URL and secret off the task itself (spec.md §4.5: every
// terminal transition is handed to the callback dispatcher).
type NotifierAdapter struct {
	Dispatcher *Dispatcher
}

// Enqueue implements account.Notifier.
func (a NotifierAdapter) Enqueue(t *model.Task) {
	a.Dispatcher.EnqueueTask(t.NotifyHook, t.Properties[notifySecretProperty], t)
}

func (d *Dispatcher) worker(id int) {
	for {
		select {
		case <-d.done:
			return
		case r := <-d.queue:
			d.deliver(r)
		}
	}
}

func (d *Dispatcher) deliver(r Record) {
	if r.URL == "" {
		return
	}

	body, err := json.Marshal(r.Payload)
	if err != nil {
		d.log.Error().Err(err).Str("task", r.Payload.ID).Msg("failed to marshal callback payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		d.log.Error().Err(err).Str("task", r.Payload.ID).Msg("failed to build callback request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Secret != "" {
		req.Header.Set(notifySecretHeader, r.Secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// heimdall's retrier already exhausted maxAttempts-1 retries
		// internally; this is the final failure (spec.md §4.5 "final
		// failure is logged").
		d.log.Warn().Err(err).Str("task", r.Payload.ID).Str("url", r.URL).Msg("callback delivery failed after retries")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.log.Warn().Int("status", resp.StatusCode).Str("task", r.Payload.ID).Str("url", r.URL).Msg("callback receiver rejected delivery")
	}
}
