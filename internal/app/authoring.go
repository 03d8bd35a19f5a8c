package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"quiz-bot/internal/domain"
)

// AuthoringStep is the state of a teacher's quiz wizard.
type AuthoringStep string

const (
	StepAwaitTitle         AuthoringStep = "await_title"
	StepAwaitDescription   AuthoringStep = "await_description"
	StepAwaitQuestionText  AuthoringStep = "await_question_text"
	StepAwaitQuestionType  AuthoringStep = "await_question_type"
	StepAwaitOptions       AuthoringStep = "await_options"
	StepAwaitCorrectAnswer AuthoringStep = "await_correct_answer"
	StepReviewQuestion     AuthoringStep = "review_question"
)

// PendingQuestion holds the question being entered before its correct answer is known.
type PendingQuestion struct {
	Text    string              `json:"text"`
	Kind    domain.QuestionKind `json:"kind"`
	Options []domain.Option     `json:"options,omitempty"`
}

// AuthoringSession is the per-teacher wizard state.
type AuthoringSession struct {
	Step      AuthoringStep    `json:"step"`
	TeacherID int64            `json:"teacherId"`
	Draft     domain.QuizDraft `json:"draft"`
	Pending   PendingQuestion  `json:"pending"`
}

// Authoring drives teachers through quiz creation.
//
// Every transition returns the replies to render. A non-nil error classifies
// what went wrong; the replies already tell the user how to continue.
type Authoring struct {
	quizzes  QuizRepository
	sessions SessionStore[AuthoringSession]
	logger   *slog.Logger
}

func NewAuthoring(quizzes QuizRepository, sessions SessionStore[AuthoringSession], logger *slog.Logger) *Authoring {
	return &Authoring{quizzes: quizzes, sessions: sessions, logger: logger}
}

// Start opens a fresh draft for the teacher, discarding any unfinished one.
func (m *Authoring) Start(ctx context.Context, user User, teacher domain.Teacher) ([]Reply, error) {
	session := AuthoringSession{Step: StepAwaitTitle, TeacherID: teacher.ID}
	if err := m.sessions.Put(ctx, user.ID, session); err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("start draft: %w", err)
	}
	return []Reply{textReply("📝 New quiz\n\nStep 1: send the quiz title.\nExample: Algebra - chapter one")}, nil
}

// Active reports whether the user has a draft in progress.
func (m *Authoring) Active(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := m.sessions.Get(ctx, userID)
	return ok, err
}

// Cancel discards the user's draft. It reports whether a draft existed.
func (m *Authoring) Cancel(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := m.sessions.Get(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	return true, m.sessions.Delete(ctx, userID)
}

// HandleText feeds a text message into the wizard.
func (m *Authoring) HandleText(ctx context.Context, user User, text string) ([]Reply, error) {
	session, err := m.load(ctx, user.ID)
	if err != nil {
		return failureReplies(err, "/create"), err
	}
	text = strings.TrimSpace(text)

	switch session.Step {
	case StepAwaitTitle:
		if text == "" {
			return []Reply{textReply("The title cannot be empty. Send the quiz title:")}, domain.ErrEmptyText
		}
		session.Draft.Title = text
		session.Step = StepAwaitDescription
		return m.save(ctx, user, session, textReply(fmt.Sprintf("✅ Title saved: %s\n\nStep 2: send a short description of the quiz.", text)))

	case StepAwaitDescription:
		if text == "" {
			return []Reply{textReply("The description cannot be empty. Send the quiz description:")}, domain.ErrEmptyText
		}
		session.Draft.Description = text
		session.Step = StepAwaitQuestionText
		return m.save(ctx, user, session, textReply("✅ Description saved\n\nStep 3: send the text of question 1."))

	case StepAwaitQuestionText:
		if text == "" {
			return []Reply{textReply("The question cannot be empty. Send the question text:")}, domain.ErrEmptyText
		}
		session.Pending = PendingQuestion{Text: text}
		session.Step = StepAwaitQuestionType
		return m.save(ctx, user, session, questionTypePrompt(text))

	case StepAwaitOptions:
		options, err := domain.ParseOptions(text)
		if err != nil {
			return []Reply{textReply("❌ Enter at least two options, one per line. Send the options again:")}, err
		}
		session.Pending.Options = options
		session.Step = StepAwaitCorrectAnswer
		return m.save(ctx, user, session, correctAnswerPrompt(session.Pending))

	default:
		// The step waits for a button; show it again.
		return []Reply{stepPrompt(session)}, nil
	}
}

// HandleAction feeds a button press into the wizard. Presses that do not belong
// to the current step are dropped with domain.ErrStaleAction.
func (m *Authoring) HandleAction(ctx context.Context, user User, action Action) ([]Reply, error) {
	session, err := m.load(ctx, user.ID)
	if err != nil {
		return failureReplies(err, "/create"), err
	}

	switch {
	case action.Kind == ActionQuestionType && session.Step == StepAwaitQuestionType:
		session.Pending.Kind = domain.QuestionKind(action.Label)
		if session.Pending.Kind == domain.KindTrueFalse {
			session.Step = StepAwaitCorrectAnswer
			return m.save(ctx, user, session, correctAnswerPrompt(session.Pending))
		}
		session.Step = StepAwaitOptions
		return m.save(ctx, user, session, optionsPrompt())

	case action.Kind == ActionCorrectAnswer && session.Step == StepAwaitCorrectAnswer:
		p := session.Pending
		question, err := domain.NewQuestion(session.Draft.NextOrdinal(), p.Text, p.Kind, p.Options, action.Label)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStaleAction, err)
		}
		question = session.Draft.AddQuestion(question)
		session.Pending = PendingQuestion{}
		session.Step = StepReviewQuestion
		return m.save(ctx, user, session, questionAddedReply(question, len(session.Draft.Questions)))

	case action.Kind == ActionAddAnother && session.Step == StepReviewQuestion:
		session.Step = StepAwaitQuestionText
		return m.save(ctx, user, session, textReply(fmt.Sprintf("📝 Question %d\n\nSend the question text:", session.Draft.NextOrdinal())))

	case action.Kind == ActionDeleteLast && session.Step == StepReviewQuestion:
		session.Draft.RemoveLast()
		return m.save(ctx, user, session, Reply{
			Text:     fmt.Sprintf("🗑 Last question removed\n\nQuestions so far: %d\n\nWhat next?", len(session.Draft.Questions)),
			Keyboard: reviewKeyboard(len(session.Draft.Questions) > 0),
		})

	case action.Kind == ActionFinish && session.Step == StepReviewQuestion:
		return m.finish(ctx, user, session)

	default:
		return nil, fmt.Errorf("%w: %s during %s", domain.ErrStaleAction, action.Kind, session.Step)
	}
}

func (m *Authoring) finish(ctx context.Context, user User, session AuthoringSession) ([]Reply, error) {
	if len(session.Draft.Questions) == 0 {
		return []Reply{{
			Text:     "A quiz needs at least one question. Add a question first.",
			Keyboard: reviewKeyboard(false),
		}}, domain.ErrEmptyQuiz
	}

	draft := session.Draft
	quiz, err := m.quizzes.CreateQuiz(ctx, session.TeacherID, draft.Title, draft.Description, draft.Freeze())
	if err != nil {
		return []Reply{{
			Text:     "⚠️ The quiz could not be saved right now. Your questions are kept, press Finish to try again.",
			Keyboard: reviewKeyboard(true),
		}}, fmt.Errorf("create quiz: %w", err)
	}
	if err := m.sessions.Delete(ctx, user.ID); err != nil {
		m.logger.WarnContext(ctx, "drop finished draft", "user_id", user.ID, "error", err)
	}
	m.logger.InfoContext(ctx, "quiz published", "user_id", user.ID, "quiz_id", quiz.ID, "code", quiz.Code, "questions", len(quiz.Questions))

	return []Reply{textReply(fmt.Sprintf(
		"🎉 Quiz created!\n\nTitle: %s\nDescription: %s\nCode: %s\nQuestions: %d\n\nShare the code with your students. They join with:\n/join %s",
		quiz.Title, quiz.Description, quiz.Code, len(quiz.Questions), quiz.Code,
	))}, nil
}

func (m *Authoring) load(ctx context.Context, userID int64) (AuthoringSession, error) {
	session, ok, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return AuthoringSession{}, fmt.Errorf("load draft: %w", err)
	}
	if !ok {
		return AuthoringSession{}, domain.ErrSessionLost
	}
	return session, nil
}

// save stores the advanced session; on failure the stored state stays as it was.
func (m *Authoring) save(ctx context.Context, user User, session AuthoringSession, replies ...Reply) ([]Reply, error) {
	if err := m.sessions.Put(ctx, user.ID, session); err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("save draft: %w", err)
	}
	return replies, nil
}

func stepPrompt(session AuthoringSession) Reply {
	switch session.Step {
	case StepAwaitTitle:
		return textReply("Send the quiz title:")
	case StepAwaitDescription:
		return textReply("Send the quiz description:")
	case StepAwaitQuestionText:
		return textReply(fmt.Sprintf("Send the text of question %d:", session.Draft.NextOrdinal()))
	case StepAwaitQuestionType:
		return questionTypePrompt(session.Pending.Text)
	case StepAwaitOptions:
		return optionsPrompt()
	case StepAwaitCorrectAnswer:
		return correctAnswerPrompt(session.Pending)
	default:
		return Reply{
			Text:     fmt.Sprintf("Questions so far: %d\n\nWhat next?", len(session.Draft.Questions)),
			Keyboard: reviewKeyboard(len(session.Draft.Questions) > 0),
		}
	}
}

func questionTypePrompt(text string) Reply {
	return Reply{
		Text: fmt.Sprintf("📝 Question: %s\n\nStep 4: choose the question type:", text),
		Keyboard: [][]Button{
			row(Button{Text: "True / False", Action: Action{Kind: ActionQuestionType, Label: string(domain.KindTrueFalse)}}),
			row(Button{Text: "Multiple choice", Action: Action{Kind: ActionQuestionType, Label: string(domain.KindMultipleChoice)}}),
		},
	}
}

func optionsPrompt() Reply {
	return textReply("Step 5: send the options, one per line (2 to 4).\nExample:\nParis\nRome\nMadrid\nBerlin")
}

func correctAnswerPrompt(p PendingQuestion) Reply {
	if p.Kind == domain.KindTrueFalse {
		return Reply{
			Text: "Step 6: choose the correct answer:",
			Keyboard: [][]Button{
				row(Button{Text: "✅ True", Action: Action{Kind: ActionCorrectAnswer, Label: domain.AnswerTrue}}),
				row(Button{Text: "❌ False", Action: Action{Kind: ActionCorrectAnswer, Label: domain.AnswerFalse}}),
			},
		}
	}
	keyboard := make([][]Button, 0, len(p.Options))
	for _, opt := range p.Options {
		keyboard = append(keyboard, row(Button{
			Text:   strings.ToUpper(opt.Label) + ") " + opt.Text,
			Action: Action{Kind: ActionCorrectAnswer, Label: opt.Label},
		}))
	}
	return Reply{Text: "Step 6: choose the correct answer:", Keyboard: keyboard}
}

func questionAddedReply(q domain.Question, count int) Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Question added\n\nQuestion %d: %s\nType: %s\nCorrect answer: %s\n", q.Ordinal, q.Text, q.Kind, q.AnswerText(q.CorrectAnswer))
	if len(q.Options) > 0 {
		b.WriteString("Options:\n")
		for _, opt := range q.Options {
			fmt.Fprintf(&b, "• %s) %s\n", strings.ToUpper(opt.Label), opt.Text)
		}
	}
	fmt.Fprintf(&b, "\nQuestions so far: %d\n\nWhat next?", count)
	return Reply{Text: b.String(), Keyboard: reviewKeyboard(true)}
}

func reviewKeyboard(canDelete bool) [][]Button {
	keyboard := [][]Button{row(
		Button{Text: "➕ Add question", Action: Action{Kind: ActionAddAnother}},
		Button{Text: "🏁 Finish quiz", Action: Action{Kind: ActionFinish}},
	)}
	if canDelete {
		keyboard = append(keyboard, row(Button{Text: "🗑 Delete last question", Action: Action{Kind: ActionDeleteLast}}))
	}
	return keyboard
}
