// Package gate decides, per inbound event, whether the sender may pass.
package gate

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

type Decision int

const (
	// Drop is the zero value: anything that cannot be positively admitted
	// stays out.
	Drop Decision = iota
	Forward
	NeedsDiscovery
)

func (d Decision) String() string {
	switch d {
	case Forward:
		return "forward"
	case NeedsDiscovery:
		return "needs_discovery"
	default:
		return "drop"
	}
}

// Event is the slice of an inbound message the gate needs.
type Event struct {
	ChatKind    transport.ChatKind
	SenderID    int64
	ChatID      int64
	DisplayName string
}

// IdentityFinder is the read side of the identity store.
type IdentityFinder interface {
	FindIdentity(ctx context.Context, kind storage.IdentityKind, externalID string) (*storage.Identity, error)
}

type Gate struct {
	store IdentityFinder
	log   zerolog.Logger
}

func New(store IdentityFinder, log zerolog.Logger) *Gate {
	return &Gate{store: store, log: log}
}

// Admit classifies the event's origin.
//
// Private chats are always forwarded; privileged operations downstream
// re-check the operator id themselves, so the gate does not need to.
//
// Group chats are admitted by the chat's identity row. Unknown groups go to
// discovery, non-allowed groups are dropped silently (no hint to the sender
// that the bot is even deciding). A store failure is a Drop, never a
// Forward.
func (g *Gate) Admit(ctx context.Context, ev Event) Decision {
	if ev.ChatKind == transport.ChatPrivate {
		return Forward
	}

	ident, err := g.store.FindIdentity(ctx, storage.KindGroup, externalID(ev.ChatID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NeedsDiscovery
		}
		g.log.Error().Err(err).Int64("chat_id", ev.ChatID).
			Msg("identity lookup failed; dropping event")
		return Drop
	}
	if ident.Status != storage.StatusAllowed {
		return Drop
	}
	return Forward
}

func externalID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
