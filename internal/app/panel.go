package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"quiz-bot/internal/domain"
)

const (
	panelQuizLimit  = 10
	panelStatsLimit = 3
)

// RegistrationPolicy decides who becomes a teacher on first use of a teacher command.
type RegistrationPolicy struct {
	Open      bool
	Allowlist []int64
}

// Allows reports whether the user may register as a teacher.
func (p RegistrationPolicy) Allows(userID int64) bool {
	return p.Open || slices.Contains(p.Allowlist, userID)
}

// Panel serves the teacher dashboard: quiz list, statistics and help.
type Panel struct {
	teachers TeacherRepository
	quizzes  QuizRepository
	policy   RegistrationPolicy
	logger   *slog.Logger
}

func NewPanel(teachers TeacherRepository, quizzes QuizRepository, policy RegistrationPolicy, logger *slog.Logger) *Panel {
	return &Panel{teachers: teachers, quizzes: quizzes, policy: policy, logger: logger}
}

// Register returns the teacher record for user, creating it when the policy allows.
func (p *Panel) Register(ctx context.Context, user User) (domain.Teacher, error) {
	if !p.policy.Allows(user.ID) {
		known, err := p.teachers.IsTeacher(ctx, user.ID)
		if err != nil {
			return domain.Teacher{}, fmt.Errorf("check teacher: %w", err)
		}
		if !known {
			return domain.Teacher{}, domain.ErrNotTeacher
		}
	}
	teacher, err := p.teachers.UpsertTeacher(ctx, user.ID, user.Username, user.DisplayName())
	if err != nil {
		return domain.Teacher{}, fmt.Errorf("upsert teacher: %w", err)
	}
	return teacher, nil
}

// IsTeacher reports whether the user is a registered, active teacher.
func (p *Panel) IsTeacher(ctx context.Context, userID int64) (bool, error) {
	return p.teachers.IsTeacher(ctx, userID)
}

// Show renders the panel menu.
func (p *Panel) Show(ctx context.Context, user User) ([]Reply, error) {
	if _, err := p.Register(ctx, user); err != nil {
		return registrationFailed(err), err
	}
	return []Reply{{
		Text: "👨‍🏫 Teacher panel\n\nWelcome! Manage your quizzes from here.\n\nChoose an option:",
		Keyboard: [][]Button{
			row(Button{Text: "📝 Create a new quiz", Action: Action{Kind: ActionCreateQuiz}}),
			row(Button{Text: "📋 My quizzes", Action: Action{Kind: ActionListQuizzes}}),
			row(Button{Text: "📊 Statistics", Action: Action{Kind: ActionStats}}),
			row(Button{Text: "❓ Help", Action: Action{Kind: ActionTeacherHelp}}),
		},
	}}, nil
}

// ListQuizzes shows the teacher's most recent active quizzes.
func (p *Panel) ListQuizzes(ctx context.Context, user User) ([]Reply, error) {
	teacher, err := p.Register(ctx, user)
	if err != nil {
		return registrationFailed(err), err
	}
	quizzes, err := p.quizzes.ListQuizzesByTeacher(ctx, teacher.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("list quizzes: %w", err)
	}
	if len(quizzes) == 0 {
		return []Reply{{Text: "📋 No quizzes yet\n\nCreate your first quiz!", Keyboard: backKeyboard()}}, nil
	}
	if len(quizzes) > panelQuizLimit {
		quizzes = quizzes[:panelQuizLimit]
	}

	var b strings.Builder
	b.WriteString("📋 Your quizzes:\n\n")
	keyboard := make([][]Button, 0, len(quizzes)+1)
	for _, quiz := range quizzes {
		stats, err := p.quizzes.QuizStatistics(ctx, quiz.ID)
		if err != nil {
			return []Reply{saveFailedReply()}, fmt.Errorf("quiz %d statistics: %w", quiz.ID, err)
		}
		fmt.Fprintf(&b, "%s\n🔑 Code: %s\n📅 %s\n👥 %d students", quiz.Title, quiz.Code, quiz.CreatedAt.Format("2006-01-02"), quiz.StudentCount)
		if stats != nil {
			fmt.Fprintf(&b, " | 📊 %.1f%%", stats.AvgPercentage)
		}
		fmt.Fprintf(&b, "\n🔹 %d questions\n\n", len(quiz.Questions))
		keyboard = append(keyboard, row(Button{
			Text:   "🔒 Close " + quiz.Code,
			Action: Action{Kind: ActionCloseQuiz, QuizID: quiz.ID},
		}))
	}
	keyboard = append(keyboard, backKeyboard()...)
	return []Reply{{Text: b.String(), Keyboard: keyboard}}, nil
}

// Stats shows totals across the teacher's quizzes.
func (p *Panel) Stats(ctx context.Context, user User) ([]Reply, error) {
	teacher, err := p.Register(ctx, user)
	if err != nil {
		return registrationFailed(err), err
	}
	quizzes, err := p.quizzes.ListQuizzesByTeacher(ctx, teacher.ID)
	if err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("list quizzes: %w", err)
	}

	students := 0
	for _, quiz := range quizzes {
		students += quiz.StudentCount
	}

	var b strings.Builder
	b.WriteString("📊 Statistics\n\n")
	fmt.Fprintf(&b, "👨‍🏫 Teacher: %s\n📋 Quizzes: %d\n👥 Students: %d\n📅 Member since: %s\n",
		teacher.FullName, len(quizzes), students, teacher.CreatedAt.Format("2006-01-02"))
	if len(quizzes) > 0 {
		b.WriteString("\nLatest quizzes:\n")
		for i, quiz := range quizzes {
			if i == panelStatsLimit {
				break
			}
			stats, err := p.quizzes.QuizStatistics(ctx, quiz.ID)
			if err != nil {
				return []Reply{saveFailedReply()}, fmt.Errorf("quiz %d statistics: %w", quiz.ID, err)
			}
			if stats == nil {
				fmt.Fprintf(&b, "• %s: no attempts yet\n", quiz.Title)
				continue
			}
			fmt.Fprintf(&b, "• %s: %d attempts, average %.1f%% (best %d, lowest %d)\n",
				quiz.Title, stats.AttemptCount, stats.AvgPercentage, stats.MaxScore, stats.MinScore)
		}
	}
	return []Reply{{Text: b.String(), Keyboard: backKeyboard()}}, nil
}

// CloseQuiz deactivates one of the teacher's quizzes so its code stops working.
func (p *Panel) CloseQuiz(ctx context.Context, user User, quizID int64) ([]Reply, error) {
	teacher, err := p.Register(ctx, user)
	if err != nil {
		return registrationFailed(err), err
	}
	quiz, err := p.quizzes.FindQuizByID(ctx, quizID)
	if err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("find quiz: %w", err)
	}
	if quiz.TeacherID != teacher.ID {
		return nil, fmt.Errorf("%w: quiz %d belongs to another teacher", domain.ErrStaleAction, quizID)
	}
	if err := p.quizzes.DeactivateQuiz(ctx, quizID); err != nil {
		return []Reply{saveFailedReply()}, fmt.Errorf("deactivate quiz: %w", err)
	}
	p.logger.InfoContext(ctx, "quiz closed", "user_id", user.ID, "quiz_id", quiz.ID, "code", quiz.Code)
	return []Reply{{Text: fmt.Sprintf("🔒 Quiz %s (%s) is closed. Students can no longer join it.", quiz.Title, quiz.Code), Keyboard: backKeyboard()}}, nil
}

// Help explains the teacher workflow.
func (p *Panel) Help() []Reply {
	return []Reply{{
		Text: `👨‍🏫 Teacher help

Commands:
/admin - open the teacher panel
/create - create a new quiz

Creating a quiz:
1. Choose "Create a new quiz"
2. Send the title
3. Send the description
4. Send a question
5. Choose its type (true/false or multiple choice)
6. Choose the correct answer
7. Repeat for every question
8. Press "Finish quiz" to publish

Sharing:
• every quiz gets a unique code
• students join with /join CODE

Results:
• "My quizzes" shows each quiz with its average score
• "Statistics" summarizes attempts across your quizzes`,
		Keyboard: backKeyboard(),
	}}
}

func backKeyboard() [][]Button {
	return [][]Button{row(Button{Text: "🔙 Back", Action: Action{Kind: ActionPanel}})}
}

func registrationFailed(err error) []Reply {
	if errors.Is(err, domain.ErrNotTeacher) {
		return []Reply{textReply("⛔ You do not have access to the teacher panel.")}
	}
	return []Reply{saveFailedReply()}
}
