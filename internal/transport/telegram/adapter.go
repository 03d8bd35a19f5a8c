package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"quiz-bot/internal/app"
)

// Dispatcher handles one normalized chat event.
type Dispatcher interface {
	Handle(ctx context.Context, ev app.Event) []app.Reply
}

// API is the part of *tgbotapi.BotAPI the adapter uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// Adapter turns Telegram updates into bot events and renders the replies.
// Updates are sharded by user onto a fixed set of workers, so one user's
// updates keep their order while different users proceed in parallel.
type Adapter struct {
	bot    Dispatcher
	api    API
	logger *slog.Logger
	queues []chan tgbotapi.Update
}

func NewAdapter(bot Dispatcher, api API, workers int, logger *slog.Logger) *Adapter {
	if workers <= 0 {
		workers = 1
	}
	queues := make([]chan tgbotapi.Update, workers)
	for i := range queues {
		queues[i] = make(chan tgbotapi.Update, 64)
	}
	return &Adapter{bot: bot, api: api, logger: logger, queues: queues}
}

// Run processes enqueued updates until ctx is done.
func (a *Adapter) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, queue := range a.queues {
		queue := queue
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case update := <-queue:
					a.HandleUpdate(ctx, update)
				}
			}
		})
	}
	return g.Wait()
}

// Enqueue hands the update to its user's worker. It reports false when ctx
// ended first.
func (a *Adapter) Enqueue(ctx context.Context, update tgbotapi.Update) bool {
	shard := 0
	if from := sender(update); from != nil {
		shard = int(uint64(from.ID) % uint64(len(a.queues)))
	}
	select {
	case a.queues[shard] <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

// Poll feeds long-polled updates into the workers until ctx is done.
func (a *Adapter) Poll(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			a.Enqueue(ctx, update)
		}
	}
}

// WebhookHandler accepts updates pushed by Telegram.
func (a *Adapter) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		update, err := a.api.HandleUpdate(r)
		if err != nil {
			a.logger.Warn("decode webhook update", "error", err)
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		if !a.Enqueue(r.Context(), *update) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

// HandleUpdate processes one update synchronously.
func (a *Adapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		a.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		a.handleMessage(ctx, update.Message)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	user := toUser(msg.From)
	var ev app.Event
	switch {
	case msg.IsCommand():
		ev = app.CommandEvent(user, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
	case msg.Text != "":
		ev = app.TextEvent(user, msg.Text)
	default:
		return
	}
	a.render(msg.Chat.ID, a.bot.Handle(ctx, ev))
}

func (a *Adapter) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := a.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		a.logger.Debug("ack callback", "error", err)
	}
	if cb.From == nil {
		return
	}
	action, ok := app.DecodeAction(cb.Data)
	if !ok {
		a.logger.Debug("malformed callback data dropped", "user_id", cb.From.ID, "data", cb.Data)
		return
	}
	chatID := cb.From.ID
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	a.render(chatID, a.bot.Handle(ctx, app.ActionEvent(toUser(cb.From), action)))
}

func (a *Adapter) render(chatID int64, replies []app.Reply) {
	for _, reply := range replies {
		msg := tgbotapi.NewMessage(chatID, reply.Text)
		if len(reply.Keyboard) > 0 {
			msg.ReplyMarkup = keyboard(reply.Keyboard)
		}
		if _, err := a.api.Send(msg); err != nil {
			a.logger.Error("send reply", "chat_id", chatID, "error", err)
			return
		}
	}
}

func keyboard(rows [][]app.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, app.EncodeAction(b.Action)))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func toUser(u *tgbotapi.User) app.User {
	return app.User{
		ID:       u.ID,
		Username: u.UserName,
		FullName: strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
}

func sender(update tgbotapi.Update) *tgbotapi.User {
	switch {
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From
	case update.Message != nil:
		return update.Message.From
	}
	return nil
}
