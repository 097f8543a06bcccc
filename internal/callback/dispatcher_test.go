package callback

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mjproxy/core/internal/model"
)

func TestEnqueueTaskDeliversWithSecretHeader(t *testing.T) {
	var mu sync.Mutex
	var gotSecret string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotSecret = r.Header.Get(notifySecretHeader)
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(2, 4, zerolog.Nop())
	defer d.Close()

	task := &model.Task{ID: "t1", Status: model.StatusSuccess, Action: model.ActionImagine}
	d.EnqueueTask(srv.URL, "s3cr3t", task)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := gotSecret
		mu.Unlock()
		if got != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotSecret != "s3cr3t" {
		t.Fatalf("expected secret header s3cr3t, got %q", gotSecret)
	}
	if len(gotBody) == 0 {
		t.Fatalf("expected non-empty callback body")
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	d := &Dispatcher{
		queue: make(chan Record, 1),
		log:   zerolog.Nop(),
		done:  make(chan struct{}),
	}
	d.queue <- Record{URL: "http://example.invalid", Payload: Payload{ID: "blocker"}}

	// Does not panic or block.
	d.Enqueue(Record{URL: "http://example.invalid", Payload: Payload{ID: "dropped"}})

	if len(d.queue) != 1 {
		t.Fatalf("expected queue to stay at capacity 1, got %d", len(d.queue))
	}
}
