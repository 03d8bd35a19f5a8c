package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// QuestionKind is the answer format of a question.
type QuestionKind string

const (
	KindTrueFalse      QuestionKind = "tf"
	KindMultipleChoice QuestionKind = "mcq"
)

const (
	AnswerTrue  = "t"
	AnswerFalse = "f"

	MinOptions = 2
	MaxOptions = 4
)

var validate = validator.New()

// Valid reports whether k is a known kind.
func (k QuestionKind) Valid() bool {
	return k == KindTrueFalse || k == KindMultipleChoice
}

// String returns a human readable name.
func (k QuestionKind) String() string {
	switch k {
	case KindTrueFalse:
		return "True/False"
	case KindMultipleChoice:
		return "Multiple choice"
	default:
		return string(k)
	}
}

// Option is a labeled answer choice of a multiple-choice question.
type Option struct {
	Label string `json:"label" validate:"required,len=1"`
	Text  string `json:"text" validate:"required"`
}

// Question is immutable once its quiz is published.
type Question struct {
	Ordinal       int          `json:"question_num" validate:"min=1"`
	Text          string       `json:"question_text"`
	Kind          QuestionKind `json:"question_type" validate:"oneof=tf mcq"`
	CorrectAnswer string       `json:"correct_answer" validate:"required"`
	Options       []Option     `json:"options,omitempty" validate:"omitempty,max=4,dive"`
}

// NewQuestion builds a question and checks the correct answer against the labels of its kind.
func NewQuestion(ordinal int, text string, kind QuestionKind, options []Option, correct string) (Question, error) {
	q := Question{
		Ordinal:       ordinal,
		Text:          text,
		Kind:          kind,
		CorrectAnswer: NormalizeLabel(correct),
	}
	if kind == KindMultipleChoice {
		q.Options = append([]Option(nil), options...)
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks struct rules and the kind's arity.
func (q Question) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}
	switch q.Kind {
	case KindTrueFalse:
		if len(q.Options) != 0 {
			return fmt.Errorf("%w: true/false question carries options", ErrInvalidQuestion)
		}
	case KindMultipleChoice:
		if len(q.Options) < MinOptions {
			return ErrTooFewOptions
		}
		for i, opt := range q.Options {
			if opt.Label != optionLabel(i) {
				return fmt.Errorf("%w: option %d labeled %q", ErrInvalidQuestion, i+1, opt.Label)
			}
		}
	}
	if !q.HasLabel(q.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer %q is not a valid label", ErrInvalidQuestion, q.CorrectAnswer)
	}
	return nil
}

// Labels lists the answer labels a student may choose.
func (q Question) Labels() []string {
	if q.Kind == KindTrueFalse {
		return []string{AnswerTrue, AnswerFalse}
	}
	labels := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		labels = append(labels, opt.Label)
	}
	return labels
}

// HasLabel reports whether label is one of the question's answer labels.
func (q Question) HasLabel(label string) bool {
	label = NormalizeLabel(label)
	for _, l := range q.Labels() {
		if l == label {
			return true
		}
	}
	return false
}

// IsCorrect compares an answer label with the correct answer, ignoring case.
func (q Question) IsCorrect(answer string) bool {
	return strings.ToLower(answer) == strings.ToLower(q.CorrectAnswer)
}

// AnswerText renders a label for display, e.g. "True" or "B) Paris".
func (q Question) AnswerText(label string) string {
	label = NormalizeLabel(label)
	if q.Kind == KindTrueFalse {
		switch label {
		case AnswerTrue:
			return "True"
		case AnswerFalse:
			return "False"
		}
		return strings.ToUpper(label)
	}
	for _, opt := range q.Options {
		if opt.Label == label {
			return strings.ToUpper(opt.Label) + ") " + opt.Text
		}
	}
	return strings.ToUpper(label)
}

// ParseOptions reads one option per line. Blank lines are skipped and only the
// first MaxOptions lines are kept, labeled a, b, c, d by position.
func ParseOptions(raw string) ([]Option, error) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < MinOptions {
		return nil, ErrTooFewOptions
	}
	if len(lines) > MaxOptions {
		lines = lines[:MaxOptions]
	}
	options := make([]Option, len(lines))
	for i, text := range lines {
		options[i] = Option{Label: optionLabel(i), Text: text}
	}
	return options, nil
}

// NormalizeLabel lowercases and trims an answer label.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func optionLabel(i int) string {
	return string(rune('a' + i))
}
