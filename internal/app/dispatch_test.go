package app

import (
	"context"
	"testing"

	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

func groupMsg(chatID int64, title string) *transport.Message {
	return &transport.Message{
		ChatKind:  transport.ChatGroup,
		ChatID:    chatID,
		ChatTitle: title,
		FromID:    7,
		Text:      "morning",
	}
}

func TestDispatchFirstContactThroughApproval(t *testing.T) {
	t.Parallel()
	a, adapter, store := newTestApp(t)
	ctx := context.Background()

	// First contact: the chat is registered pending and the operator is
	// asked once, with approve/reject actions attached.
	a.handleMessage(ctx, groupMsg(-100200, "Ops Room"))
	ident, err := store.FindIdentity(ctx, storage.KindGroup, "-100200")
	if err != nil {
		t.Fatalf("identity not registered: %v", err)
	}
	if ident.Status != storage.StatusPending {
		t.Fatalf("status = %q, want pending", ident.Status)
	}
	if len(adapter.sent) != 1 {
		t.Fatalf("got %d notifications, want 1", len(adapter.sent))
	}
	rows := adapter.buttons[0]
	if len(rows) != 1 || len(rows[0]) != 2 {
		t.Fatalf("notification buttons = %v", rows)
	}

	// More traffic while pending changes nothing and stays silent.
	a.handleMessage(ctx, groupMsg(-100200, "Ops Room"))
	if len(adapter.sent) != 1 {
		t.Fatalf("pending chat re-notified: %d sends", len(adapter.sent))
	}

	// The operator presses approve.
	a.handleCallback(ctx, &transport.Callback{
		ID:     "cb1",
		FromID: testOperator,
		Data:   rows[0][0].Data,
	})
	ident, err = store.FindIdentity(ctx, storage.KindGroup, "-100200")
	if err != nil {
		t.Fatalf("find after approve: %v", err)
	}
	if ident.Status != storage.StatusAllowed {
		t.Fatalf("status after approve = %q", ident.Status)
	}
	if len(adapter.answers) != 1 {
		t.Fatalf("callback not answered: %v", adapter.answers)
	}

	// Approved traffic flows without any further notification.
	a.handleMessage(ctx, groupMsg(-100200, "Ops Room"))
	if len(adapter.sent) != 1 {
		t.Fatalf("approved chat triggered a send: %d", len(adapter.sent))
	}
}

func TestDispatchCallbackFromStranger(t *testing.T) {
	t.Parallel()
	a, adapter, store := newTestApp(t)
	ctx := context.Background()

	seed := &storage.Identity{Kind: storage.KindGroup, ExternalID: "-5", Status: storage.StatusPending}
	if err := store.CreateIdentity(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a.handleCallback(ctx, &transport.Callback{
		ID:     "cb1",
		FromID: 666,
		Data:   "gate:approve:group:-5",
	})
	if got := adapter.answers[len(adapter.answers)-1]; got != "Not authorized" {
		t.Fatalf("answer = %q", got)
	}
	ident, err := store.FindIdentity(ctx, storage.KindGroup, "-5")
	if err != nil || ident.Status != storage.StatusPending {
		t.Fatalf("stranger mutated identity: %+v, %v", ident, err)
	}
}

func TestDispatchCallbackBadData(t *testing.T) {
	t.Parallel()
	a, adapter, _ := newTestApp(t)
	ctx := context.Background()

	for _, data := range []string{"", "gate:nuke:group:-5", "other:approve:group:-5"} {
		a.handleCallback(ctx, &transport.Callback{ID: "cb", FromID: testOperator, Data: data})
	}
	if len(adapter.answers) != 3 {
		t.Fatalf("answers = %v", adapter.answers)
	}
	for _, got := range adapter.answers {
		if got != "Unknown action" {
			t.Fatalf("answer = %q, want Unknown action", got)
		}
	}
}
