package domain

import (
	"errors"
	"testing"
)

func TestParseOptionsKeepsFirstFour(t *testing.T) {
	opts, err := ParseOptions("one\ntwo\n\n  three \nfour\nfive\nsix")
	if err != nil {
		t.Fatalf("parse options: %v", err)
	}
	if len(opts) != 4 {
		t.Fatalf("expected 4 options, got %d", len(opts))
	}
	want := []Option{{"a", "one"}, {"b", "two"}, {"c", "three"}, {"d", "four"}}
	for i := range want {
		if opts[i] != want[i] {
			t.Fatalf("option %d: expected %+v, got %+v", i, want[i], opts[i])
		}
	}
}

func TestParseOptionsRequiresTwo(t *testing.T) {
	for _, raw := range []string{"", "only one", "one\n   \n"} {
		if _, err := ParseOptions(raw); !errors.Is(err, ErrTooFewOptions) {
			t.Fatalf("%q: expected ErrTooFewOptions, got %v", raw, err)
		}
	}
}

func TestNewQuestionValidatesLabels(t *testing.T) {
	if _, err := NewQuestion(1, "2+2=4?", KindTrueFalse, nil, "T"); err != nil {
		t.Fatalf("true/false question: %v", err)
	}
	if _, err := NewQuestion(1, "2+2=4?", KindTrueFalse, nil, "x"); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("expected invalid label error, got %v", err)
	}

	opts, _ := ParseOptions("3\n4")
	q, err := NewQuestion(2, "2+2?", KindMultipleChoice, opts, "B")
	if err != nil {
		t.Fatalf("mcq question: %v", err)
	}
	if q.CorrectAnswer != "b" {
		t.Fatalf("expected normalized answer b, got %q", q.CorrectAnswer)
	}
	if _, err := NewQuestion(2, "2+2?", KindMultipleChoice, opts, "c"); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("expected out-of-range label to fail, got %v", err)
	}
	if _, err := NewQuestion(2, "2+2?", KindMultipleChoice, opts[:1], "a"); !errors.Is(err, ErrTooFewOptions) {
		t.Fatalf("expected too few options, got %v", err)
	}
	if _, err := NewQuestion(0, "2+2?", KindTrueFalse, nil, "t"); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("expected ordinal 0 to fail, got %v", err)
	}
}

func TestIsCorrectIgnoresCase(t *testing.T) {
	tf := Question{Kind: KindTrueFalse, CorrectAnswer: "t"}
	if !tf.IsCorrect("T") {
		t.Fatalf("expected T to match t")
	}
	mcq := Question{Kind: KindMultipleChoice, CorrectAnswer: "b", Options: []Option{{"a", "x"}, {"b", "y"}}}
	if !mcq.IsCorrect("B") {
		t.Fatalf("expected B to match b")
	}
	if mcq.IsCorrect("a") {
		t.Fatalf("expected a not to match b")
	}
}

func TestAnswerText(t *testing.T) {
	tf := Question{Kind: KindTrueFalse}
	if got := tf.AnswerText("f"); got != "False" {
		t.Fatalf("expected False, got %q", got)
	}
	mcq := Question{Kind: KindMultipleChoice, Options: []Option{{"a", "Paris"}, {"b", "Rome"}}}
	if got := mcq.AnswerText("B"); got != "B) Rome" {
		t.Fatalf("expected B) Rome, got %q", got)
	}
}
