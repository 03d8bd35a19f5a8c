package app

import (
	"strconv"
	"strings"

	"quiz-bot/internal/domain"
)

// ActionKind names a button handled by one of the machines.
type ActionKind string

const (
	ActionPanel         ActionKind = "panel"
	ActionCreateQuiz    ActionKind = "create"
	ActionListQuizzes   ActionKind = "list"
	ActionStats         ActionKind = "stats"
	ActionTeacherHelp   ActionKind = "help"
	ActionCloseQuiz     ActionKind = "close"
	ActionQuestionType  ActionKind = "qtype"
	ActionCorrectAnswer ActionKind = "correct"
	ActionAddAnother    ActionKind = "add"
	ActionDeleteLast    ActionKind = "dellast"
	ActionFinish        ActionKind = "finish"
	ActionAnswer        ActionKind = "ans"
)

// Action is the typed payload of a button.
//
// Label carries a question kind for ActionQuestionType and an answer label for
// ActionCorrectAnswer and ActionAnswer. Index is the 0-based question index an
// answer button was rendered for. QuizID is set for ActionCloseQuiz.
type Action struct {
	Kind   ActionKind
	Label  string
	Index  int
	QuizID int64
}

const actionSep = ":"

// EncodeAction renders an action as compact callback data.
func EncodeAction(a Action) string {
	switch a.Kind {
	case ActionQuestionType, ActionCorrectAnswer:
		return string(a.Kind) + actionSep + a.Label
	case ActionAnswer:
		return string(a.Kind) + actionSep + a.Label + actionSep + strconv.Itoa(a.Index)
	case ActionCloseQuiz:
		return string(a.Kind) + actionSep + strconv.FormatInt(a.QuizID, 10)
	default:
		return string(a.Kind)
	}
}

// DecodeAction parses callback data. Malformed or unknown data reports false
// and must be dropped by the caller.
func DecodeAction(data string) (Action, bool) {
	parts := strings.Split(data, actionSep)
	kind := ActionKind(parts[0])
	switch kind {
	case ActionPanel, ActionCreateQuiz, ActionListQuizzes, ActionStats, ActionTeacherHelp,
		ActionAddAnother, ActionDeleteLast, ActionFinish:
		if len(parts) != 1 {
			return Action{}, false
		}
		return Action{Kind: kind}, true
	case ActionQuestionType:
		if len(parts) != 2 || !domain.QuestionKind(parts[1]).Valid() {
			return Action{}, false
		}
		return Action{Kind: kind, Label: parts[1]}, true
	case ActionCorrectAnswer:
		if len(parts) != 2 || !validLabel(parts[1]) {
			return Action{}, false
		}
		return Action{Kind: kind, Label: parts[1]}, true
	case ActionAnswer:
		if len(parts) != 3 || !validLabel(parts[1]) {
			return Action{}, false
		}
		index, err := strconv.Atoi(parts[2])
		if err != nil || index < 0 {
			return Action{}, false
		}
		return Action{Kind: kind, Label: parts[1], Index: index}, true
	case ActionCloseQuiz:
		if len(parts) != 2 {
			return Action{}, false
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			return Action{}, false
		}
		return Action{Kind: kind, QuizID: id}, true
	default:
		return Action{}, false
	}
}

func validLabel(label string) bool {
	if len(label) != 1 {
		return false
	}
	c := label[0]
	return c == 't' || c == 'f' || (c >= 'a' && c < 'a'+domain.MaxOptions)
}
