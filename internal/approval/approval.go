// Package approval applies operator decisions to managed identities.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

// ErrUnauthorized is returned when anyone but the designated operator
// attempts a resolution.
var ErrUnauthorized = errors.New("approval: requester is not the operator")

// IdentityStore is the slice of the store the resolver mutates.
type IdentityStore interface {
	FindIdentity(ctx context.Context, kind storage.IdentityKind, externalID string) (*storage.Identity, error)
	UpdateIdentityStatus(ctx context.Context, kind storage.IdentityKind, externalID string, status storage.IdentityStatus) (bool, error)
	DeleteIdentity(ctx context.Context, kind storage.IdentityKind, externalID string) error
}

type Resolver struct {
	store    IdentityStore
	sender   transport.Sender
	operator int64
	log      zerolog.Logger
}

func New(store IdentityStore, sender transport.Sender, operatorID int64, log zerolog.Logger) *Resolver {
	return &Resolver{store: store, sender: sender, operator: operatorID, log: log}
}

// Resolve applies one operator decision. It is idempotent: approving an
// already-allowed identity (a double-clicked button, a replayed callback)
// succeeds without touching the row or re-editing the notification, and
// removing an absent identity succeeds.
//
// The returned string is a short human confirmation for the requester.
func (r *Resolver) Resolve(ctx context.Context, action Action, kind storage.IdentityKind, externalID string, requesterID int64) (string, error) {
	if requesterID != r.operator {
		return "", ErrUnauthorized
	}

	switch action {
	case ActionApprove:
		return r.setStatus(ctx, kind, externalID, storage.StatusAllowed)
	case ActionReject:
		return r.setStatus(ctx, kind, externalID, storage.StatusRejected)
	case ActionRemove:
		return r.remove(ctx, kind, externalID)
	default:
		return "", fmt.Errorf("approval: unknown action %q", action)
	}
}

func (r *Resolver) setStatus(ctx context.Context, kind storage.IdentityKind, externalID string, status storage.IdentityStatus) (string, error) {
	ident, err := r.store.FindIdentity(ctx, kind, externalID)
	if err != nil {
		return "", err
	}

	changed, err := r.store.UpdateIdentityStatus(ctx, kind, externalID, status)
	if err != nil {
		return "", err
	}
	if !changed {
		// Replay: the notification already shows the terminal decision.
		return fmt.Sprintf("%s %s already %s", kind, displayOf(ident), status), nil
	}

	r.editNotification(ctx, ident, string(status))
	return fmt.Sprintf("%s %s %s", kind, displayOf(ident), status), nil
}

func (r *Resolver) remove(ctx context.Context, kind storage.IdentityKind, externalID string) (string, error) {
	ident, err := r.store.FindIdentity(ctx, kind, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("%s %s already removed", kind, externalID), nil
	}
	if err != nil {
		return "", err
	}
	if err := r.store.DeleteIdentity(ctx, kind, externalID); err != nil {
		return "", err
	}
	r.editNotification(ctx, ident, "removed")
	return fmt.Sprintf("%s %s removed", kind, displayOf(ident)), nil
}

// editNotification rewrites the original approval message so its action
// buttons disappear and the decision is visible in the operator channel.
// Best-effort: a failed edit never fails the resolution, the store already
// holds the truth.
func (r *Resolver) editNotification(ctx context.Context, ident *storage.Identity, decision string) {
	if ident.NotifyChatID == 0 || ident.NotifyMessageID == 0 {
		return
	}
	ref := transport.MessageRef{ChatID: ident.NotifyChatID, MessageID: ident.NotifyMessageID}
	text := fmt.Sprintf("%s %s (%s): %s", ident.Kind, displayOf(ident), ident.ExternalID, decision)
	if err := r.sender.EditText(ctx, ref, text, nil); err != nil {
		r.log.Warn().Err(err).
			Str("kind", string(ident.Kind)).
			Str("external_id", ident.ExternalID).
			Msg("failed to edit approval notification")
	}
}

func displayOf(ident *storage.Identity) string {
	if ident.DisplayName != "" {
		return ident.DisplayName
	}
	return ident.ExternalID
}
