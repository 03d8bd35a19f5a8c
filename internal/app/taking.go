package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"quiz-bot/internal/domain"
)

// TakingStep is the state of a student's quiz run.
type TakingStep string

const (
	StepAwaitCode TakingStep = "await_code"
	StepAnswering TakingStep = "answering"
)

const historyLimit = 10

// AnsweredQuestion is one entry of a session's answer log.
type AnsweredQuestion struct {
	Ordinal       int    `json:"ordinal"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// AttemptSession is the per-student quiz run. CurrentIndex only moves forward,
// by one per answer, and Score equals the number of correct answers.
type AttemptSession struct {
	Step         TakingStep         `json:"step"`
	QuizID       int64              `json:"quizId,omitempty"`
	QuizCode     string             `json:"quizCode,omitempty"`
	QuizTitle    string             `json:"quizTitle,omitempty"`
	AttemptID    int64              `json:"attemptId,omitempty"`
	CurrentIndex int                `json:"currentIndex"`
	Questions    []domain.Question  `json:"questions,omitempty"`
	Score        int                `json:"score"`
	Answers      []AnsweredQuestion `json:"answers,omitempty"`
}

// Taking drives students through a quiz. Like Authoring, each transition
// returns the replies to render plus an error classifying any failure.
type Taking struct {
	quizzes  QuizRepository
	attempts AttemptRepository
	sessions SessionStore[AttemptSession]
	logger   *slog.Logger
}

func NewTaking(quizzes QuizRepository, attempts AttemptRepository, sessions SessionStore[AttemptSession], logger *slog.Logger) *Taking {
	return &Taking{quizzes: quizzes, attempts: attempts, sessions: sessions, logger: logger}
}

// RequestCode waits for the quiz code in the user's next message.
func (m *Taking) RequestCode(ctx context.Context, user User) ([]Reply, error) {
	if err := m.sessions.Put(ctx, user.ID, AttemptSession{Step: StepAwaitCode}); err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("await code: %w", err)
	}
	return []Reply{textReply("📝 Join a quiz\n\nSend the quiz code, for example ABC123.")}, nil
}

// Active reports whether the user is entering a code or answering a quiz.
func (m *Taking) Active(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := m.sessions.Get(ctx, userID)
	return ok, err
}

// AwaitingCode reports whether the user's next message is expected to be a quiz code.
func (m *Taking) AwaitingCode(ctx context.Context, userID int64) (bool, error) {
	session, ok, err := m.sessions.Get(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	return session.Step == StepAwaitCode, nil
}

// Cancel discards the user's run. It reports whether one existed.
func (m *Taking) Cancel(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := m.sessions.Get(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	return true, m.sessions.Delete(ctx, userID)
}

// HandleText treats the message as a quiz code when one is expected.
func (m *Taking) HandleText(ctx context.Context, user User, text string) ([]Reply, error) {
	session, ok, err := m.sessions.Get(ctx, user.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("load attempt session: %w", err)
	}
	if !ok {
		return failureReplies(domain.ErrSessionLost, "/join"), domain.ErrSessionLost
	}
	if session.Step == StepAwaitCode {
		return m.Join(ctx, user, text)
	}
	return []Reply{textReply("Please answer with the buttons below."), presentQuestion(session)}, nil
}

// Join starts a run of the quiz with the given code, replacing any run the user had.
func (m *Taking) Join(ctx context.Context, user User, rawCode string) ([]Reply, error) {
	code := domain.NormalizeCode(rawCode)
	logger := m.logger.With("user_id", user.ID, "code", code)

	quiz, err := m.findQuiz(ctx, code)
	if errors.Is(err, domain.ErrQuizNotFound) || errors.Is(err, domain.ErrEmptyQuiz) {
		m.dropCodeRequest(ctx, logger, user.ID)
		if errors.Is(err, domain.ErrEmptyQuiz) {
			return []Reply{textReply("❌ This quiz has no questions yet.")}, err
		}
		return []Reply{textReply(fmt.Sprintf("❌ No active quiz has the code %s. Check the code and send /join again.", code))}, err
	}
	if err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("find quiz: %w", err)
	}

	attempt, err := m.attempts.StartAttempt(ctx, quiz.ID, user.ID, user.DisplayName())
	if err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("start attempt: %w", err)
	}

	session := AttemptSession{
		Step:      StepAnswering,
		QuizID:    quiz.ID,
		QuizCode:  quiz.Code,
		QuizTitle: quiz.Title,
		AttemptID: attempt.ID,
		Questions: quiz.Questions,
	}
	if err := m.sessions.Put(ctx, user.ID, session); err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("save attempt session: %w", err)
	}
	logger.InfoContext(ctx, "attempt started", "quiz_id", quiz.ID, "attempt_id", attempt.ID)

	intro := fmt.Sprintf("🎯 %s\n", quiz.Title)
	if quiz.Description != "" {
		intro += quiz.Description + "\n"
	}
	intro += fmt.Sprintf("\nQuestions: %d\nGood luck!", len(quiz.Questions))
	return []Reply{textReply(intro), presentQuestion(session)}, nil
}

// dropCodeRequest ends a pending code request. A run already in progress is
// kept so a mistyped /join does not discard it.
func (m *Taking) dropCodeRequest(ctx context.Context, logger *slog.Logger, userID int64) {
	awaiting, err := m.AwaitingCode(ctx, userID)
	if err != nil {
		logger.WarnContext(ctx, "load attempt session", "error", err)
		return
	}
	if !awaiting {
		return
	}
	if err := m.sessions.Delete(ctx, userID); err != nil {
		logger.WarnContext(ctx, "reset attempt session", "error", err)
	}
}

func (m *Taking) findQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	if !domain.ValidCode(code) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz, err := m.quizzes.FindQuizByCode(ctx, code)
	if err != nil {
		return domain.Quiz{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.Quiz{}, domain.ErrEmptyQuiz
	}
	return quiz, nil
}

// Answer scores the chosen label against the question under the session cursor.
// The index carried by the button is informational: the cursor decides which
// question is answered. Labels the current question does not offer are dropped.
func (m *Taking) Answer(ctx context.Context, user User, action Action) ([]Reply, error) {
	session, ok, err := m.sessions.Get(ctx, user.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("load attempt session: %w", err)
	}
	if !ok {
		return []Reply{textReply("You have no quiz in progress. Join one with /join CODE.")}, domain.ErrSessionLost
	}
	if session.Step != StepAnswering || session.CurrentIndex >= len(session.Questions) {
		return nil, fmt.Errorf("%w: answer during %s", domain.ErrStaleAction, session.Step)
	}

	question := session.Questions[session.CurrentIndex]
	label := domain.NormalizeLabel(action.Label)
	if !question.HasLabel(label) {
		return nil, fmt.Errorf("%w: label %q not offered by question %d", domain.ErrStaleAction, label, question.Ordinal)
	}
	if action.Index != session.CurrentIndex {
		m.logger.DebugContext(ctx, "answer for another question index", "user_id", user.ID, "button_index", action.Index, "cursor", session.CurrentIndex)
	}

	correct := question.IsCorrect(label)
	if err := m.attempts.RecordAnswer(ctx, session.AttemptID, question.Ordinal, label, correct); err != nil {
		return []Reply{saveFailedReply(), presentQuestion(session)}, fmt.Errorf("record answer: %w", err)
	}

	previous := session
	session.Answers = append(append([]AnsweredQuestion(nil), session.Answers...), AnsweredQuestion{
		Ordinal:       question.Ordinal,
		UserAnswer:    label,
		CorrectAnswer: question.CorrectAnswer,
		IsCorrect:     correct,
	})
	if correct {
		session.Score++
	}
	session.CurrentIndex++

	feedback := textReply("✅ Correct!")
	if !correct {
		feedback = textReply("❌ Wrong. The correct answer is: " + question.AnswerText(question.CorrectAnswer))
	}

	if session.CurrentIndex >= len(session.Questions) {
		return m.finish(ctx, user, previous, session, feedback)
	}
	if err := m.sessions.Put(ctx, user.ID, session); err != nil {
		return []Reply{saveFailedReply(), presentQuestion(previous)}, fmt.Errorf("save attempt session: %w", err)
	}
	return []Reply{feedback, presentQuestion(session)}, nil
}

func (m *Taking) finish(ctx context.Context, user User, previous, session AttemptSession, feedback Reply) ([]Reply, error) {
	total := len(session.Questions)
	attempt, err := m.attempts.FinalizeAttempt(ctx, session.AttemptID, session.Score, total)
	if err != nil {
		return []Reply{saveFailedReply(), presentQuestion(previous)}, fmt.Errorf("finalize attempt: %w", err)
	}
	if err := m.sessions.Delete(ctx, user.ID); err != nil {
		m.logger.WarnContext(ctx, "drop finished attempt session", "user_id", user.ID, "error", err)
	}
	m.logger.InfoContext(ctx, "attempt completed",
		"user_id", user.ID, "quiz_id", session.QuizID, "attempt_id", attempt.ID,
		"score", attempt.Score, "total", attempt.TotalQuestions)
	return []Reply{feedback, summaryReply(session)}, nil
}

// History lists the user's completed attempts.
func (m *Taking) History(ctx context.Context, user User) ([]Reply, error) {
	attempts, err := m.attempts.ListAttemptsByStudent(ctx, user.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("list attempts: %w", err)
	}
	if len(attempts) == 0 {
		return []Reply{textReply("📊 You have not completed any quiz yet.\n\nJoin one with /join CODE.")}, nil
	}

	var b strings.Builder
	b.WriteString("📊 Your results:\n\n")
	for i, attempt := range attempts {
		if i == historyLimit {
			break
		}
		title := "(unknown quiz)"
		quiz, err := m.quizzes.FindQuizByID(ctx, attempt.QuizID)
		switch {
		case err == nil:
			title = quiz.Title
		case !errors.Is(err, domain.ErrQuizNotFound):
			return []Reply{saveFailedReply()}, fmt.Errorf("find quiz %d: %w", attempt.QuizID, err)
		}
		fmt.Fprintf(&b, "• %s: %d/%d (%d%%, %s)", title, attempt.Score, attempt.TotalQuestions, attempt.Percentage,
			domain.BandFor(attempt.Score, attempt.TotalQuestions))
		if attempt.CompletedAt != nil {
			fmt.Fprintf(&b, " - %s", attempt.CompletedAt.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	return []Reply{textReply(b.String())}, nil
}

func presentQuestion(session AttemptSession) Reply {
	q := session.Questions[session.CurrentIndex]
	index := session.CurrentIndex

	var b strings.Builder
	fmt.Fprintf(&b, "❓ Question %d/%d\n\n%s", index+1, len(session.Questions), q.Text)
	keyboard := make([][]Button, 0, len(q.Options))
	if q.Kind == domain.KindTrueFalse {
		keyboard = append(keyboard, row(
			Button{Text: "✅ True", Action: Action{Kind: ActionAnswer, Label: domain.AnswerTrue, Index: index}},
			Button{Text: "❌ False", Action: Action{Kind: ActionAnswer, Label: domain.AnswerFalse, Index: index}},
		))
	} else {
		b.WriteString("\n")
		for _, opt := range q.Options {
			fmt.Fprintf(&b, "\n%s) %s", strings.ToUpper(opt.Label), opt.Text)
			keyboard = append(keyboard, row(Button{
				Text:   strings.ToUpper(opt.Label) + ") " + opt.Text,
				Action: Action{Kind: ActionAnswer, Label: opt.Label, Index: index},
			}))
		}
	}
	return Reply{Text: b.String(), Keyboard: keyboard}
}

func summaryReply(session AttemptSession) Reply {
	total := len(session.Questions)
	incorrect := make([]AnsweredQuestion, 0, len(session.Answers))
	for _, a := range session.Answers {
		if !a.IsCorrect {
			incorrect = append(incorrect, a)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Quiz finished: %s\n\n", session.QuizTitle)
	fmt.Fprintf(&b, "Score: %d/%d\n", session.Score, total)
	fmt.Fprintf(&b, "Percentage: %d%%\n", domain.Percentage(session.Score, total))
	fmt.Fprintf(&b, "Rating: %s\n", domain.BandFor(session.Score, total))
	fmt.Fprintf(&b, "✅ Correct: %d\n❌ Incorrect: %d\n", session.Score, len(incorrect))

	if len(incorrect) > 0 {
		b.WriteString("\nReview:\n")
		for i, a := range incorrect {
			if i == 3 {
				break
			}
			q := session.Questions[a.Ordinal-1]
			fmt.Fprintf(&b, "• Q%d: your answer %s, correct %s\n", a.Ordinal, q.AnswerText(a.UserAnswer), q.AnswerText(a.CorrectAnswer))
		}
	}
	b.WriteString("\nSee all your results with /history.")
	return textReply(b.String())
}
