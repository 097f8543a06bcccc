package transport

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/task"
)

type fakeSession struct {
	lastRoute string
	lastData  interface{}
}

func (f *fakeSession) RequestWithBucketID(method, urlStr string, data interface{}, bucketID string, options ...discordgo.RequestOption) ([]byte, error) {
	f.lastRoute = urlStr
	f.lastData = data
	return []byte(`{}`), nil
}

func TestDispatchSendsImagineInteraction(t *testing.T) {
	fake := &fakeSession{}
	tr := New(func(botToken string) (Session, error) { return fake, nil })

	tk := model.NewTask("t1")
	tk.Action = model.ActionImagine
	tk.PromptFull = "a cat --ar 16:9"
	tk.InstanceID = "chan-1"
	tk.Properties = map[string]string{"botToken": "abc"}

	if err := tr.Dispatch(context.Background(), task.DispatchRequest{Task: tk, Nonce: "nonce-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.lastRoute != "/interactions" {
		t.Fatalf("expected /interactions route, got %s", fake.lastRoute)
	}
	payload, ok := fake.lastData.(interactionPayload)
	if !ok {
		t.Fatalf("expected interactionPayload, got %T", fake.lastData)
	}
	if payload.Nonce != "nonce-1" || payload.ChannelID != "chan-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDispatchDescribeDecodesInlineAttachment(t *testing.T) {
	fake := &fakeSession{}
	tr := New(func(botToken string) (Session, error) { return fake, nil })

	tk := model.NewTask("t2")
	tk.Action = model.ActionDescribe
	tk.InstanceID = "chan-1"
	tk.Properties = map[string]string{
		"botToken": "abc",
		"image":    "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII=",
	}

	if err := tr.Dispatch(context.Background(), task.DispatchRequest{Task: tk, Nonce: "nonce-2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := fake.lastData.(interactionPayload)
	attachments, ok := payload.Data["attachments"].([]map[string]interface{})
	if !ok || len(attachments) != 1 {
		t.Fatalf("expected 1 decoded attachment, got %#v", payload.Data["attachments"])
	}
	if attachments[0]["content_type"] != "image/png" {
		t.Fatalf("unexpected content type: %v", attachments[0]["content_type"])
	}
}
