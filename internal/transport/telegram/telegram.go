// Package telegram adapts telebot's long-poll loop to the transport types
// the core consumes.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"wardenbot/internal/transport"
)

type Config struct {
	Token       string
	PollTimeout time.Duration

	// SendRate caps outbound API calls. Telegram allows ~30 msg/s overall;
	// the default of 20/s leaves headroom for callback answers.
	SendRate rate.Limit
}

type Adapter struct {
	cfg Config
	log zerolog.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- transport.Update)
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Reported periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	sendRate := cfg.SendRate
	if sendRate <= 0 {
		sendRate = 20
	}

	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(sendRate, int(sendRate)),
	}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		kind, ok := chatKind(m.Chat.Type)
		if !ok {
			return nil // channels and other chat types are out of scope
		}
		a.push(transport.Update{
			Kind: transport.UpdateMessage,
			Message: &transport.Message{
				ID:        m.ID,
				ChatKind:  kind,
				ChatID:    m.Chat.ID,
				ChatTitle: chatTitle(m.Chat),
				FromID:    m.Sender.ID,
				FromName:  senderName(m.Sender),
				Text:      m.Text,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || cb.Sender == nil || m == nil || m.Chat == nil {
			return nil
		}
		a.push(transport.Update{
			Kind: transport.UpdateCallback,
			Callback: &transport.Callback{
				ID:        cb.ID,
				FromID:    cb.Sender.ID,
				ChatID:    m.Chat.ID,
				MessageID: m.ID,
				// telebot prefixes unique-handler callbacks with \f.
				Data: strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})
}

func chatKind(t tele.ChatType) (transport.ChatKind, bool) {
	switch t {
	case tele.ChatPrivate:
		return transport.ChatPrivate, true
	case tele.ChatGroup, tele.ChatSuperGroup:
		return transport.ChatGroup, true
	}
	return "", false
}

func chatTitle(c *tele.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func senderName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

func (a *Adapter) push(up transport.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store(out)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Stop telebot when the adapter context is cancelled.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-runCtx.Done()
		a.bot.Stop()
	}()

	// Periodic summary for dropped updates.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn().Uint64("count", n).Int("chan_cap", cap(out)).
					Msg("incoming updates dropped (channel full)")
			}
		}
		for {
			select {
			case <-runCtx.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info().Msg("polling started")
		a.bot.Start() // blocks until Stop()
		a.log.Info().Msg("polling stopped")
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel := a.cancel
	a.cancel = nil
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	cancel()

	// Keep shutdown snappy even if a getUpdates long-poll is still waiting.
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		a.log.Warn().Msg("telegram stop timed out")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}

	chunks := splitText(text, textLimit)
	chat := &tele.Chat{ID: to.ChatID}

	var first transport.MessageRef
	for i, chunk := range chunks {
		sendOpt := &tele.SendOptions{DisableWebPagePreview: opt.DisablePreview}
		// Attach actions only to the first message.
		if i == 0 {
			sendOpt.ReplyMarkup = markupFor(opt.Buttons)
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			if first.ChatID != 0 {
				return first, err
			}
			return transport.MessageRef{}, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	sendOpt := &tele.SendOptions{DisableWebPagePreview: opt.DisablePreview}
	sendOpt.ReplyMarkup = markupFor(opt.Buttons)

	_, err := a.bot.Edit(m, clampText(text, textLimit), sendOpt)
	if err != nil {
		// Editing to identical content happens on replayed resolutions; the
		// message already shows the right thing.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func markupFor(rows [][]transport.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		keyboard = append(keyboard, btns)
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}
