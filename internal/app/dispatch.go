package app

import (
	"context"
	"errors"
	"strconv"

	"wardenbot/internal/approval"
	"wardenbot/internal/gate"
	"wardenbot/internal/metrics"
	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

// dispatch consumes updates one at a time. Per-sender ordering follows
// arrival order; an error in one update never stops the loop.
func (a *App) dispatch(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-updates:
			switch up.Kind {
			case transport.UpdateMessage:
				if up.Message != nil {
					a.handleMessage(ctx, up.Message)
				}
			case transport.UpdateCallback:
				if up.Callback != nil {
					a.handleCallback(ctx, up.Callback)
				}
			}
		}
	}
}

func (a *App) handleMessage(ctx context.Context, m *transport.Message) {
	ev := gate.Event{
		ChatKind:    m.ChatKind,
		SenderID:    m.FromID,
		ChatID:      m.ChatID,
		DisplayName: m.ChatTitle,
	}
	decision := a.gate.Admit(ctx, ev)
	metrics.UpdatesTotal.WithLabelValues(decision.String()).Inc()

	switch decision {
	case gate.Drop:
		// Unapproved senders get no reply at all.
		return

	case gate.NeedsDiscovery:
		err := a.discovery.Discover(ctx, storage.KindGroup,
			strconv.FormatInt(m.ChatID, 10), m.ChatTitle)
		switch {
		case err != nil:
			metrics.DiscoveriesTotal.WithLabelValues("error").Inc()
			a.log.Error().Err(err).Int64("chat_id", m.ChatID).Msg("discovery failed")
		default:
			metrics.DiscoveriesTotal.WithLabelValues("ok").Inc()
		}
		return

	case gate.Forward:
		if m.ChatKind == transport.ChatPrivate {
			a.router.handle(ctx, m)
			return
		}
		// Allowed group traffic passes through to downstream consumers;
		// none are wired in this build.
		a.log.Debug().Int64("chat_id", m.ChatID).Int64("from", m.FromID).
			Msg("group message admitted")
	}
}

func (a *App) handleCallback(ctx context.Context, cb *transport.Callback) {
	action, kind, externalID, ok := approval.DecodeCallback(cb.Data)
	if !ok {
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "Unknown action")
		return
	}

	result, err := a.resolver.Resolve(ctx, action, kind, externalID, cb.FromID)
	switch {
	case errors.Is(err, approval.ErrUnauthorized):
		metrics.ResolutionsTotal.WithLabelValues(string(action), "unauthorized").Inc()
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "Not authorized")
	case errors.Is(err, storage.ErrNotFound):
		metrics.ResolutionsTotal.WithLabelValues(string(action), "not_found").Inc()
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "Unknown identity")
	case err != nil:
		metrics.ResolutionsTotal.WithLabelValues(string(action), "error").Inc()
		a.log.Error().Err(err).Str("data", cb.Data).Msg("resolution failed")
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "Failed, try again")
	default:
		metrics.ResolutionsTotal.WithLabelValues(string(action), "ok").Inc()
		_ = a.adapter.AnswerCallback(ctx, cb.ID, result)
	}
}
