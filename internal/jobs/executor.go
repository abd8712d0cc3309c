package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
)

// Executor performs one job's effect. An error marks the job failed; there
// is no automatic retry.
type Executor interface {
	Execute(ctx context.Context, job storage.Job) error
}

type ExecutorFunc func(ctx context.Context, job storage.Job) error

func (f ExecutorFunc) Execute(ctx context.Context, job storage.Job) error { return f(ctx, job) }

// Registry maps a job's description to its executor. Registration happens at
// wiring time; lookups during ticks are read-only, so no locking.
type Registry struct {
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: map[string]Executor{}}
}

func (r *Registry) Register(description string, ex Executor) {
	r.executors[description] = ex
}

func (r *Registry) Get(description string) (Executor, error) {
	ex, ok := r.executors[description]
	if !ok {
		return nil, fmt.Errorf("no executor for job type %q", description)
	}
	return ex, nil
}

// Names returns the registered job types (for operator help output).
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.executors))
	for name := range r.executors {
		out = append(out, name)
	}
	return out
}

// notifyPayload is the payload shape of the built-in "notify" job.
type notifyPayload struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// NewNotifyExecutor sends a message to the chat named in the payload.
// Payload: {"chat_id": -100123, "text": "hello"}.
func NewNotifyExecutor(sender transport.Sender) Executor {
	return ExecutorFunc(func(ctx context.Context, job storage.Job) error {
		var p notifyPayload
		if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
			return fmt.Errorf("notify payload: %w", err)
		}
		if p.ChatID == 0 {
			return fmt.Errorf("notify payload: chat_id is required")
		}
		_, err := sender.SendText(ctx, transport.ChatTarget{ChatID: p.ChatID}, p.Text, nil)
		return err
	})
}

// NewNoopExecutor does nothing; useful for exercising the queue.
func NewNoopExecutor() Executor {
	return ExecutorFunc(func(context.Context, storage.Job) error { return nil })
}
