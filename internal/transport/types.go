// Package transport defines the platform-neutral shapes the core works
// with. The telegram subpackage is the only adapter today; the core never
// imports telebot directly so it stays testable with fakes.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID        int
	ChatKind  ChatKind
	ChatID    int64
	ChatTitle string
	FromID    int64
	FromName  string // username if set, else first name
	Text      string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline action attached to a message. Data round-trips through
// the platform and comes back in Callback.Data.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	DisablePreview bool
	// Buttons lays out inline actions row by row. Nil on EditText removes
	// any existing actions from the message.
	Buttons [][]Button
}

// Sender is the outbound half of an adapter; core components that only talk
// (discovery, approval, job executors) depend on this instead of Adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
