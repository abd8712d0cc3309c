// Package discovery registers newly-seen identities as pending and asks the
// operator to decide on them.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"wardenbot/internal/approval"
	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

// IdentityRegistrar is the slice of the store discovery writes through.
type IdentityRegistrar interface {
	CreateIdentity(ctx context.Context, ident *storage.Identity) error
	FindIdentity(ctx context.Context, kind storage.IdentityKind, externalID string) (*storage.Identity, error)
	UpdateIdentityNotification(ctx context.Context, kind storage.IdentityKind, externalID string, chatID int64, messageID int) error
}

type Coordinator struct {
	store    IdentityRegistrar
	sender   transport.Sender
	operator transport.ChatTarget
	log      zerolog.Logger
}

func New(store IdentityRegistrar, sender transport.Sender, operatorChat transport.ChatTarget, log zerolog.Logger) *Coordinator {
	return &Coordinator{store: store, sender: sender, operator: operatorChat, log: log}
}

// Discover registers an unknown identity and notifies the operator once.
//
// Two near-simultaneous first-contact events race on the store's uniqueness
// constraint; the loser sees ErrConflict and walks away without a second
// notification. That constraint, not any in-process lock, is what keeps the
// "one notification per new identity" promise.
func (c *Coordinator) Discover(ctx context.Context, kind storage.IdentityKind, externalID, displayName string) error {
	ident := &storage.Identity{
		Kind:        kind,
		ExternalID:  externalID,
		DisplayName: displayName,
		Status:      storage.StatusPending,
	}
	if err := c.store.CreateIdentity(ctx, ident); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			c.log.Debug().Str("kind", string(kind)).Str("external_id", externalID).
				Msg("identity already registered; skipping notification")
			return nil
		}
		return fmt.Errorf("register identity: %w", err)
	}

	c.log.Info().Str("kind", string(kind)).Str("external_id", externalID).
		Str("name", displayName).Msg("new identity registered as pending")

	return c.notify(ctx, ident)
}

// Renotify re-sends the approval request for a still-pending identity whose
// original notification was lost (delivery failure, operator cleared chat).
func (c *Coordinator) Renotify(ctx context.Context, kind storage.IdentityKind, externalID string) error {
	ident, err := c.store.FindIdentity(ctx, kind, externalID)
	if err != nil {
		return err
	}
	if ident.Status != storage.StatusPending {
		return fmt.Errorf("identity %s/%s is %s, nothing to approve", kind, externalID, ident.Status)
	}
	return c.notify(ctx, ident)
}

func (c *Coordinator) notify(ctx context.Context, ident *storage.Identity) error {
	text := fmt.Sprintf("New %s awaiting approval\n\nName: %s\nID: %s",
		ident.Kind, displayOf(ident), ident.ExternalID)
	opt := &transport.SendOptions{
		Buttons: [][]transport.Button{{
			{Text: "Approve", Data: approval.EncodeCallback(approval.ActionApprove, ident.Kind, ident.ExternalID)},
			{Text: "Reject", Data: approval.EncodeCallback(approval.ActionReject, ident.Kind, ident.ExternalID)},
		}},
	}
	ref, err := c.sender.SendText(ctx, c.operator, text, opt)
	if err != nil {
		// The row stays pending; the operator can /rediscover it later.
		return fmt.Errorf("send approval request: %w", err)
	}

	if err := c.store.UpdateIdentityNotification(ctx, ident.Kind, ident.ExternalID, ref.ChatID, ref.MessageID); err != nil {
		// The notification is out; losing its coordinates only costs the
		// in-place edit on resolution.
		c.log.Warn().Err(err).Str("external_id", ident.ExternalID).
			Msg("failed to persist notification reference")
	}
	return nil
}

func displayOf(ident *storage.Identity) string {
	if ident.DisplayName != "" {
		return ident.DisplayName
	}
	return ident.ExternalID
}
