package approval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

const operatorID int64 = 7

type fakeStore struct {
	mu     sync.Mutex
	idents map[string]*storage.Identity
}

func key(kind storage.IdentityKind, externalID string) string {
	return string(kind) + "/" + externalID
}

func (f *fakeStore) FindIdentity(_ context.Context, kind storage.IdentityKind, externalID string) (*storage.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.idents[key(kind, externalID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (f *fakeStore) UpdateIdentityStatus(_ context.Context, kind storage.IdentityKind, externalID string, status storage.IdentityStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.idents[key(kind, externalID)]
	if !ok {
		return false, storage.ErrNotFound
	}
	if ident.Status == status {
		return false, nil
	}
	ident.Status = status
	return true, nil
}

func (f *fakeStore) DeleteIdentity(_ context.Context, kind storage.IdentityKind, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.idents, key(kind, externalID))
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	edits []string
}

func (f *fakeSender) SendText(context.Context, transport.ChatTarget, string, *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}

func (f *fakeSender) EditText(_ context.Context, _ transport.MessageRef, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeSender) AnswerCallback(context.Context, string, string) error { return nil }

func newResolver() (*Resolver, *fakeStore, *fakeSender) {
	store := &fakeStore{idents: map[string]*storage.Identity{
		key(storage.KindGroup, "-100"): {
			Kind: storage.KindGroup, ExternalID: "-100", DisplayName: "G1",
			Status: storage.StatusPending, NotifyChatID: 1, NotifyMessageID: 10,
		},
	}}
	sender := &fakeSender{}
	return New(store, sender, operatorID, zerolog.Nop()), store, sender
}

func TestResolveUnauthorized(t *testing.T) {
	t.Parallel()
	r, store, _ := newResolver()
	_, err := r.Resolve(context.Background(), ActionApprove, storage.KindGroup, "-100", 999)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if store.idents[key(storage.KindGroup, "-100")].Status != storage.StatusPending {
		t.Fatal("unauthorized request mutated the identity")
	}
}

func TestResolveApproveIdempotent(t *testing.T) {
	t.Parallel()
	r, store, sender := newResolver()
	ctx := context.Background()

	if _, err := r.Resolve(ctx, ActionApprove, storage.KindGroup, "-100", operatorID); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if got := store.idents[key(storage.KindGroup, "-100")].Status; got != storage.StatusAllowed {
		t.Fatalf("status = %q, want allowed", got)
	}
	if len(sender.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(sender.edits))
	}

	// Double click: same terminal state, no second edit.
	msg, err := r.Resolve(ctx, ActionApprove, storage.KindGroup, "-100", operatorID)
	if err != nil {
		t.Fatalf("replayed approve: %v", err)
	}
	if !strings.Contains(msg, "already") {
		t.Fatalf("replay confirmation = %q, want an already-resolved hint", msg)
	}
	if len(sender.edits) != 1 {
		t.Fatalf("edits after replay = %d, want 1", len(sender.edits))
	}
}

func TestResolveReject(t *testing.T) {
	t.Parallel()
	r, store, _ := newResolver()
	if _, err := r.Resolve(context.Background(), ActionReject, storage.KindGroup, "-100", operatorID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := store.idents[key(storage.KindGroup, "-100")].Status; got != storage.StatusRejected {
		t.Fatalf("status = %q, want rejected", got)
	}
}

func TestResolveRemoveIdempotent(t *testing.T) {
	t.Parallel()
	r, store, _ := newResolver()
	ctx := context.Background()

	if _, err := r.Resolve(ctx, ActionRemove, storage.KindGroup, "-100", operatorID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := store.idents[key(storage.KindGroup, "-100")]; ok {
		t.Fatal("identity still present after remove")
	}

	msg, err := r.Resolve(ctx, ActionRemove, storage.KindGroup, "-100", operatorID)
	if err != nil {
		t.Fatalf("remove of absent: %v", err)
	}
	if !strings.Contains(msg, "already removed") {
		t.Fatalf("confirmation = %q", msg)
	}
}

func TestResolveMissingIdentity(t *testing.T) {
	t.Parallel()
	r, _, _ := newResolver()
	_, err := r.Resolve(context.Background(), ActionApprove, storage.KindGroup, "nope", operatorID)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCallbackRoundTrip(t *testing.T) {
	t.Parallel()
	data := EncodeCallback(ActionApprove, storage.KindGroup, "-100")
	a, kind, id, ok := DecodeCallback(data)
	if !ok || a != ActionApprove || kind != storage.KindGroup || id != "-100" {
		t.Fatalf("DecodeCallback(%q) = %v %v %v %v", data, a, kind, id, ok)
	}

	for _, bad := range []string{"", "gate", "gate:approve", "gate:frobnicate:group:1", "other:approve:group:1", "gate:approve:robot:1", "gate:approve:group:"} {
		if _, _, _, ok := DecodeCallback(bad); ok {
			t.Fatalf("DecodeCallback(%q) accepted", bad)
		}
	}
}
