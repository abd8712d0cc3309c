package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"wardenbot/internal/approval"
	"wardenbot/internal/jobs"
	"wardenbot/internal/session"
	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

// router handles private-chat traffic: operator commands and the multi-turn
// input flows. Group traffic never reaches it.
type router struct {
	app      *App
	sessions *session.Store
	log      zerolog.Logger
}

func newRouter(a *App, log zerolog.Logger) *router {
	return &router{app: a, sessions: session.NewStore(), log: log}
}

func (r *router) handle(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)
	isCommand := strings.HasPrefix(text, "/")

	// The gate forwards all private chat; privilege is checked here.
	if m.FromID != r.app.cfg.Telegram.OperatorID {
		if isCommand {
			r.reply(ctx, m, "Not authorized.")
		}
		return
	}

	if !isCommand {
		if sess := r.sessions.Get(m.FromID); sess != nil {
			r.continueFlow(ctx, m, sess, text)
			return
		}
		return
	}

	cmd, args := splitCommand(text)

	// Any command abandons a half-finished flow; stale input must never
	// leak into an unrelated action.
	hadFlow := r.sessions.Get(m.FromID) != nil
	r.sessions.Clear(m.FromID)

	switch cmd {
	case "/start", "/help":
		r.reply(ctx, m, helpText)
	case "/list":
		r.cmdList(ctx, m)
	case "/approve":
		r.cmdResolve(ctx, m, approval.ActionApprove, args)
	case "/reject":
		r.cmdResolve(ctx, m, approval.ActionReject, args)
	case "/remove":
		r.cmdResolve(ctx, m, approval.ActionRemove, args)
	case "/rediscover":
		r.cmdRediscover(ctx, m, args)
	case "/add":
		r.sessions.Begin(m.FromID, session.FlowAddIdentity)
		r.reply(ctx, m, "Adding an identity. Kind? (group or user)")
	case "/schedule":
		r.sessions.Begin(m.FromID, session.FlowScheduleJob)
		r.reply(ctx, m, "Scheduling a job. Type? (one of: "+strings.Join(r.app.registry.Names(), ", ")+")")
	case "/jobs":
		r.cmdJobs(ctx, m)
	case "/retire":
		r.cmdRetire(ctx, m, args)
	case "/cancel":
		if hadFlow {
			r.reply(ctx, m, "Cancelled.")
		} else {
			r.reply(ctx, m, "Nothing in progress.")
		}
	default:
		r.reply(ctx, m, "Unknown command. Try /help.")
	}
}

const helpText = `Commands:
/list - identities grouped by status
/approve <kind> <external-id>
/reject <kind> <external-id>
/remove <kind> <external-id>
/rediscover <kind> <external-id> - resend a lost approval request
/add - register an identity (multi-step)
/schedule - enqueue a job (multi-step)
/jobs - pending and failed jobs
/retire <job-id> - delete a job
/cancel - abandon the current flow`

func splitCommand(text string) (cmd string, args []string) {
	fields := strings.Fields(text)
	cmd = strings.ToLower(fields[0])
	// Strip a @botname suffix (Telegram appends it in some clients).
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}

func (r *router) reply(ctx context.Context, m *transport.Message, text string) {
	if _, err := r.app.adapter.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID}, text, nil); err != nil {
		r.log.Warn().Err(err).Msg("reply failed")
	}
}

// ---- identity commands ----

func (r *router) cmdList(ctx context.Context, m *transport.Message) {
	idents, err := r.app.store.ListIdentities(ctx)
	if err != nil {
		r.reply(ctx, m, "Storage unavailable, try again.")
		return
	}
	r.reply(ctx, m, formatIdentities(idents))
}

func (r *router) cmdResolve(ctx context.Context, m *transport.Message, action approval.Action, args []string) {
	kind, externalID, err := parseIdentityArgs(args)
	if err != nil {
		r.reply(ctx, m, err.Error())
		return
	}
	result, err := r.app.resolver.Resolve(ctx, action, kind, externalID, m.FromID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		r.reply(ctx, m, fmt.Sprintf("No %s with id %s.", kind, externalID))
	case err != nil:
		r.log.Error().Err(err).Msg("resolve command failed")
		r.reply(ctx, m, "Failed, try again.")
	default:
		r.reply(ctx, m, result)
	}
}

func (r *router) cmdRediscover(ctx context.Context, m *transport.Message, args []string) {
	kind, externalID, err := parseIdentityArgs(args)
	if err != nil {
		r.reply(ctx, m, err.Error())
		return
	}
	if err := r.app.discovery.Renotify(ctx, kind, externalID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.reply(ctx, m, fmt.Sprintf("No %s with id %s.", kind, externalID))
			return
		}
		r.reply(ctx, m, err.Error())
		return
	}
	r.reply(ctx, m, "Approval request re-sent.")
}

func parseIdentityArgs(args []string) (storage.IdentityKind, string, error) {
	if len(args) != 2 {
		return "", "", errors.New("usage: <kind> <external-id>, e.g. group -100123")
	}
	kind, ok := storage.ParseKind(strings.ToLower(args[0]))
	if !ok {
		return "", "", errors.New("kind must be group or user")
	}
	return kind, args[1], nil
}

// ---- job commands ----

func (r *router) cmdJobs(ctx context.Context, m *transport.Message) {
	list, err := r.app.store.ListJobs(ctx)
	if err != nil {
		r.reply(ctx, m, "Storage unavailable, try again.")
		return
	}
	r.reply(ctx, m, formatJobs(list))
}

func (r *router) cmdRetire(ctx context.Context, m *transport.Message, args []string) {
	if len(args) != 1 {
		r.reply(ctx, m, "usage: /retire <job-id>")
		return
	}
	if err := r.app.store.DeleteJob(ctx, args[0]); err != nil {
		r.reply(ctx, m, "Failed, try again.")
		return
	}
	r.reply(ctx, m, "Job deleted.")
}

// ---- multi-turn flows ----

func (r *router) continueFlow(ctx context.Context, m *transport.Message, sess *session.Session, input string) {
	switch sess.Flow {
	case session.FlowAddIdentity:
		r.stepAddIdentity(ctx, m, sess, input)
	case session.FlowScheduleJob:
		r.stepScheduleJob(ctx, m, sess, input)
	default:
		r.sessions.Clear(m.FromID)
	}
}

func (r *router) stepAddIdentity(ctx context.Context, m *transport.Message, sess *session.Session, input string) {
	switch sess.Step {
	case 0:
		kind, ok := storage.ParseKind(strings.ToLower(input))
		if !ok {
			r.reply(ctx, m, "Kind must be group or user.")
			return
		}
		sess.Fields["kind"] = string(kind)
		sess.Step++
		r.reply(ctx, m, "External id?")
	case 1:
		sess.Fields["external_id"] = input
		sess.Step++
		r.reply(ctx, m, "Display name? (send - for none)")
	case 2:
		if input != "-" {
			sess.Fields["display_name"] = input
		}
		sess.Step++
		r.reply(ctx, m, "Status? (pending, allowed or rejected)")
	case 3:
		status, ok := storage.ParseStatus(strings.ToLower(input))
		if !ok {
			r.reply(ctx, m, "Status must be pending, allowed or rejected.")
			return
		}
		kind, _ := storage.ParseKind(sess.Fields["kind"])
		ident := &storage.Identity{
			Kind:        kind,
			ExternalID:  sess.Fields["external_id"],
			DisplayName: sess.Fields["display_name"],
			Status:      status,
		}
		r.sessions.Clear(m.FromID)
		err := r.app.store.CreateIdentity(ctx, ident)
		switch {
		case errors.Is(err, storage.ErrConflict):
			r.reply(ctx, m, "That identity already exists.")
		case err != nil:
			r.reply(ctx, m, "Failed, try again.")
		default:
			r.reply(ctx, m, fmt.Sprintf("Created %s %s (%s).", ident.Kind, ident.ExternalID, ident.Status))
		}
	}
}

func (r *router) stepScheduleJob(ctx context.Context, m *transport.Message, sess *session.Session, input string) {
	switch sess.Step {
	case 0:
		if _, err := r.app.registry.Get(input); err != nil {
			r.reply(ctx, m, "Unknown job type. One of: "+strings.Join(r.app.registry.Names(), ", "))
			return
		}
		sess.Fields["description"] = input
		sess.Step++
		r.reply(ctx, m, "Payload? (send - for none)")
	case 1:
		if input != "-" {
			sess.Fields["payload"] = input
		}
		sess.Step++
		r.reply(ctx, m, "When? (duration like 10m, RFC3339 time, or cron:<expr> for recurring)")
	case 2:
		dueAt, recur, err := parseWhen(input, time.Now())
		if err != nil {
			r.reply(ctx, m, err.Error())
			return
		}
		r.sessions.Clear(m.FromID)
		job, err := jobs.Enqueue(ctx, r.app.store, sess.Fields["description"], sess.Fields["payload"], dueAt, recur)
		if err != nil {
			r.reply(ctx, m, "Failed, try again.")
			return
		}
		r.reply(ctx, m, fmt.Sprintf("Job %s enqueued, due %s.", job.ID, job.DueAt.Format(time.RFC3339)))
	}
}

// parseWhen accepts a relative duration, an absolute RFC3339 time, or a
// cron:<expr> recurrence whose first due time is the next occurrence.
func parseWhen(input string, now time.Time) (dueAt time.Time, recur string, err error) {
	if expr, ok := strings.CutPrefix(input, "cron:"); ok {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("bad cron expression: %v", err)
		}
		return sched.Next(now), expr, nil
	}
	if d, err := time.ParseDuration(input); err == nil {
		if d <= 0 {
			return time.Time{}, "", errors.New("duration must be positive")
		}
		return now.Add(d), "", nil
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, "", nil
	}
	return time.Time{}, "", errors.New("send a duration (10m), an RFC3339 time, or cron:<expr>")
}
