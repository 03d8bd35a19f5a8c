package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"quiz-bot/internal/domain"
)

// Bot routes transport events to the teacher panel and the two conversation
// machines. Events of one user are handled one at a time; distinct users run
// in parallel.
type Bot struct {
	panel     *Panel
	authoring *Authoring
	taking    *Taking
	logger    *slog.Logger
	locks     userLocks
}

func NewBot(panel *Panel, authoring *Authoring, taking *Taking, logger *slog.Logger) *Bot {
	return &Bot{
		panel:     panel,
		authoring: authoring,
		taking:    taking,
		logger:    logger,
		locks:     userLocks{m: make(map[int64]*userLock)},
	}
}

// Handle processes one event and returns the replies to render, in order.
func (b *Bot) Handle(ctx context.Context, ev Event) []Reply {
	unlock := b.locks.lock(ev.User.ID)
	defer unlock()

	var (
		replies []Reply
		err     error
	)
	switch ev.Kind {
	case EventCommand:
		replies, err = b.command(ctx, ev)
	case EventText:
		replies, err = b.text(ctx, ev)
	case EventAction:
		replies, err = b.action(ctx, ev)
	}
	b.logOutcome(ctx, ev, err)
	return replies
}

func (b *Bot) command(ctx context.Context, ev Event) ([]Reply, error) {
	switch strings.ToLower(ev.Command) {
	case "start":
		teacher, err := b.panel.IsTeacher(ctx, ev.User.ID)
		if err != nil {
			return []Reply{textReply(welcomeText)}, err
		}
		if teacher {
			return b.panel.Show(ctx, ev.User)
		}
		return []Reply{textReply(welcomeText)}, nil
	case "admin":
		return b.panel.Show(ctx, ev.User)
	case "create":
		return b.startAuthoring(ctx, ev.User)
	case "join":
		if fields := strings.Fields(ev.Args); len(fields) > 0 {
			return b.taking.Join(ctx, ev.User, fields[0])
		}
		return b.taking.RequestCode(ctx, ev.User)
	case "history":
		return b.taking.History(ctx, ev.User)
	case "help":
		return []Reply{textReply(helpText)}, nil
	case "cancel":
		return b.cancel(ctx, ev.User)
	default:
		return []Reply{textReply("Unknown command. Send /help to see what I can do.")}, nil
	}
}

func (b *Bot) text(ctx context.Context, ev Event) ([]Reply, error) {
	// a pending /join claims the next message even over an open draft
	awaiting, err := b.taking.AwaitingCode(ctx, ev.User.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, err
	}
	if awaiting {
		return b.taking.HandleText(ctx, ev.User, ev.Text)
	}

	authoring, err := b.authoring.Active(ctx, ev.User.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, err
	}
	if authoring {
		return b.authoring.HandleText(ctx, ev.User, ev.Text)
	}

	taking, err := b.taking.Active(ctx, ev.User.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, err
	}
	if taking {
		return b.taking.HandleText(ctx, ev.User, ev.Text)
	}
	return []Reply{textReply("I did not understand that. Send /join CODE to take a quiz, /create to start a new quiz (an unfinished one may have been lost) or /help for help.")}, nil
}

func (b *Bot) action(ctx context.Context, ev Event) ([]Reply, error) {
	switch ev.Action.Kind {
	case ActionQuestionType, ActionCorrectAnswer, ActionAddAnother, ActionDeleteLast, ActionFinish:
		return b.authoring.HandleAction(ctx, ev.User, ev.Action)
	case ActionAnswer:
		return b.taking.Answer(ctx, ev.User, ev.Action)
	}

	teacher, err := b.panel.IsTeacher(ctx, ev.User.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, err
	}
	if !teacher {
		return registrationFailed(domain.ErrNotTeacher), domain.ErrNotTeacher
	}
	switch ev.Action.Kind {
	case ActionPanel:
		return b.panel.Show(ctx, ev.User)
	case ActionCreateQuiz:
		return b.startAuthoring(ctx, ev.User)
	case ActionListQuizzes:
		return b.panel.ListQuizzes(ctx, ev.User)
	case ActionStats:
		return b.panel.Stats(ctx, ev.User)
	case ActionTeacherHelp:
		return b.panel.Help(), nil
	case ActionCloseQuiz:
		return b.panel.CloseQuiz(ctx, ev.User, ev.Action.QuizID)
	default:
		return nil, domain.ErrStaleAction
	}
}

func (b *Bot) startAuthoring(ctx context.Context, user User) ([]Reply, error) {
	teacher, err := b.panel.Register(ctx, user)
	if err != nil {
		return registrationFailed(err), err
	}
	return b.authoring.Start(ctx, user, teacher)
}

func (b *Bot) cancel(ctx context.Context, user User) ([]Reply, error) {
	drafted, err := b.authoring.Cancel(ctx, user.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, err
	}
	taking, err := b.taking.Cancel(ctx, user.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, err
	}
	if !drafted && !taking {
		return []Reply{textReply("Nothing to cancel.")}, nil
	}
	return []Reply{textReply("✅ Cancelled.")}, nil
}

func (b *Bot) logOutcome(ctx context.Context, ev Event, err error) {
	attrs := []any{"user_id", ev.User.ID, "kind", ev.Kind}
	switch ev.Kind {
	case EventCommand:
		attrs = append(attrs, "command", ev.Command)
	case EventAction:
		attrs = append(attrs, "action", ev.Action.Kind)
	}

	switch {
	case err == nil:
		b.logger.DebugContext(ctx, "event handled", attrs...)
	case errors.Is(err, domain.ErrStaleAction):
		b.logger.DebugContext(ctx, "stale action dropped", append(attrs, "reason", err)...)
	case errors.Is(err, domain.ErrSessionLost),
		errors.Is(err, domain.ErrEmptyText),
		errors.Is(err, domain.ErrTooFewOptions),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrEmptyQuiz),
		errors.Is(err, domain.ErrNotTeacher):
		b.logger.InfoContext(ctx, "event rejected", append(attrs, "reason", err)...)
	default:
		b.logger.ErrorContext(ctx, "event failed", append(attrs, "error", err)...)
	}
}

// userLocks hands out one mutex per user and forgets it once nobody holds it.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}
