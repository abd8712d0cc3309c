package jobs

import (
	"context"
	"testing"

	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

type captureSender struct {
	to   []int64
	text []string
}

func (c *captureSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.to = append(c.to, to.ChatID)
	c.text = append(c.text, text)
	return transport.MessageRef{}, nil
}

func (c *captureSender) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}

func (c *captureSender) AnswerCallback(context.Context, string, string) error { return nil }

func TestNotifyExecutor(t *testing.T) {
	t.Parallel()
	sender := &captureSender{}
	ex := NewNotifyExecutor(sender)

	job := storage.Job{ID: "j1", Description: "notify", Payload: `{"chat_id":-5,"text":"ping"}`}
	if err := ex.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(sender.to) != 1 || sender.to[0] != -5 || sender.text[0] != "ping" {
		t.Fatalf("sent = %v %v", sender.to, sender.text)
	}
}

func TestNotifyExecutorRejectsBadPayload(t *testing.T) {
	t.Parallel()
	ex := NewNotifyExecutor(&captureSender{})
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "hello"},
		{name: "missing chat", payload: `{"text":"x"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := storage.Job{ID: "j", Description: "notify", Payload: tt.payload}
			if err := ex.Execute(context.Background(), job); err == nil {
				t.Fatalf("payload %q accepted", tt.payload)
			}
		})
	}
}

func TestRegistryUnknownType(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if _, err := reg.Get("nope"); err == nil {
		t.Fatal("unknown type resolved")
	}
	reg.Register("noop", NewNoopExecutor())
	if _, err := reg.Get("noop"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "noop" {
		t.Fatalf("Names = %v", names)
	}
}
