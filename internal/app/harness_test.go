package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"quiz-bot/internal/app"
	"quiz-bot/internal/domain"
	"quiz-bot/internal/infra/memory"
)

var errBackendDown = errors.New("backend down")

type harness struct {
	store     *memory.Store
	quizzes   *flakyQuizzes
	attempts  *flakyAttempts
	drafts    *flakySessions[app.AuthoringSession]
	runs      *flakySessions[app.AttemptSession]
	panel     *app.Panel
	authoring *app.Authoring
	taking    *app.Taking
	bot       *app.Bot
}

func newHarness(t *testing.T, policy app.RegistrationPolicy) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	h := &harness{
		store:    store,
		quizzes:  &flakyQuizzes{QuizRepository: store},
		attempts: &flakyAttempts{AttemptRepository: store},
		drafts:   &flakySessions[app.AuthoringSession]{SessionStore: memory.NewSessionStore[app.AuthoringSession](0)},
		runs:     &flakySessions[app.AttemptSession]{SessionStore: memory.NewSessionStore[app.AttemptSession](0)},
	}
	h.panel = app.NewPanel(store, h.quizzes, policy, logger)
	h.authoring = app.NewAuthoring(h.quizzes, h.drafts, logger)
	h.taking = app.NewTaking(h.quizzes, h.attempts, h.runs, logger)
	h.bot = app.NewBot(h.panel, h.authoring, h.taking, logger)
	return h
}

func openHarness(t *testing.T) *harness {
	return newHarness(t, app.RegistrationPolicy{Open: true})
}

func (h *harness) command(user app.User, name, args string) []app.Reply {
	return h.bot.Handle(context.Background(), app.CommandEvent(user, name, args))
}

func (h *harness) text(user app.User, text string) []app.Reply {
	return h.bot.Handle(context.Background(), app.TextEvent(user, text))
}

func (h *harness) press(user app.User, action app.Action) []app.Reply {
	return h.bot.Handle(context.Background(), app.ActionEvent(user, action))
}

func (h *harness) draft(t *testing.T, user app.User) (app.AuthoringSession, bool) {
	t.Helper()
	session, ok, err := h.drafts.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	return session, ok
}

func (h *harness) run(t *testing.T, user app.User) (app.AttemptSession, bool) {
	t.Helper()
	session, ok, err := h.runs.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	return session, ok
}

// publish authors a two question quiz through the bot: a true/false question
// answered true and a multiple-choice question answered b.
func (h *harness) publish(t *testing.T, teacher app.User, title string) domain.Quiz {
	t.Helper()
	h.command(teacher, "create", "")
	h.text(teacher, title)
	h.text(teacher, "Warm-up questions")
	h.text(teacher, "The sun is a star.")
	h.press(teacher, app.Action{Kind: app.ActionQuestionType, Label: "tf"})
	h.press(teacher, app.Action{Kind: app.ActionCorrectAnswer, Label: "t"})
	h.press(teacher, app.Action{Kind: app.ActionAddAnother})
	h.text(teacher, "Capital of France?")
	h.press(teacher, app.Action{Kind: app.ActionQuestionType, Label: "mcq"})
	h.text(teacher, "London\nParis\nRome")
	h.press(teacher, app.Action{Kind: app.ActionCorrectAnswer, Label: "b"})
	replies := h.press(teacher, app.Action{Kind: app.ActionFinish})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Quiz created") {
		t.Fatalf("expected publish confirmation, got %+v", replies)
	}
	return h.latestQuiz(t, teacher)
}

func (h *harness) latestQuiz(t *testing.T, teacher app.User) domain.Quiz {
	t.Helper()
	ctx := context.Background()
	record, err := h.store.UpsertTeacher(ctx, teacher.ID, teacher.Username, teacher.DisplayName())
	if err != nil {
		t.Fatalf("teacher: %v", err)
	}
	quizzes, err := h.store.ListQuizzesByTeacher(ctx, record.ID)
	if err != nil || len(quizzes) == 0 {
		t.Fatalf("expected a published quiz, got %d err=%v", len(quizzes), err)
	}
	return quizzes[0]
}

func lastText(t *testing.T, replies []app.Reply) string {
	t.Helper()
	if len(replies) == 0 {
		t.Fatalf("expected replies, got none")
	}
	return replies[len(replies)-1].Text
}

func hasButton(replies []app.Reply, kind app.ActionKind) bool {
	for _, r := range replies {
		for _, row := range r.Keyboard {
			for _, b := range row {
				if b.Action.Kind == kind {
					return true
				}
			}
		}
	}
	return false
}

type flakyQuizzes struct {
	app.QuizRepository
	createErr error
}

func (f *flakyQuizzes) CreateQuiz(ctx context.Context, teacherID int64, title, description string, questions []domain.Question) (domain.Quiz, error) {
	if f.createErr != nil {
		return domain.Quiz{}, f.createErr
	}
	return f.QuizRepository.CreateQuiz(ctx, teacherID, title, description, questions)
}

type flakyAttempts struct {
	app.AttemptRepository
	recordErr   error
	finalizeErr error
}

func (f *flakyAttempts) RecordAnswer(ctx context.Context, attemptID int64, ordinal int, answer string, isCorrect bool) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	return f.AttemptRepository.RecordAnswer(ctx, attemptID, ordinal, answer, isCorrect)
}

func (f *flakyAttempts) FinalizeAttempt(ctx context.Context, attemptID int64, score, total int) (domain.Attempt, error) {
	if f.finalizeErr != nil {
		return domain.Attempt{}, f.finalizeErr
	}
	return f.AttemptRepository.FinalizeAttempt(ctx, attemptID, score, total)
}

type flakySessions[T any] struct {
	app.SessionStore[T]
	putErr error
}

func (f *flakySessions[T]) Put(ctx context.Context, userID int64, session T) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.SessionStore.Put(ctx, userID, session)
}

var (
	teacherAnn = app.User{ID: 100, Username: "ann", FullName: "Ann Smith"}
	studentBo  = app.User{ID: 200, Username: "bo", FullName: "Bo Lee"}
	studentCy  = app.User{ID: 300, FullName: "Cy"}
)
