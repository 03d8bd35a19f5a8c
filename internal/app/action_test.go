package app_test

import (
	"testing"

	"quiz-bot/internal/app"
)

func TestActionCodecRoundTrip(t *testing.T) {
	actions := []app.Action{
		{Kind: app.ActionPanel},
		{Kind: app.ActionFinish},
		{Kind: app.ActionQuestionType, Label: "mcq"},
		{Kind: app.ActionCorrectAnswer, Label: "d"},
		{Kind: app.ActionAnswer, Label: "t", Index: 12},
		{Kind: app.ActionCloseQuiz, QuizID: 9007199254740993},
	}
	for _, want := range actions {
		data := app.EncodeAction(want)
		if len(data) > 64 {
			t.Fatalf("%s: callback data too long: %d bytes", want.Kind, len(data))
		}
		got, ok := app.DecodeAction(data)
		if !ok || got != want {
			t.Fatalf("round trip %q: got %+v ok=%v, want %+v", data, got, ok, want)
		}
	}
}

func TestDecodeActionRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"bogus",
		"finish:x",
		"qtype:essay",
		"correct:e",
		"ans:t",
		"ans:t:-1",
		"ans:z:0",
		"close:abc",
		"close:0",
	} {
		if got, ok := app.DecodeAction(data); ok {
			t.Fatalf("expected %q to be rejected, got %+v", data, got)
		}
	}
}
