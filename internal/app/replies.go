package app

import (
	"errors"

	"quiz-bot/internal/domain"
)

const helpText = `📚 Quiz bot help

Students:
/join CODE - join a quiz
/history - your completed attempts
/start - home

Teachers:
/admin - teacher panel
/create - create a new quiz

/cancel - abort what you are doing`

const welcomeText = `📚 Welcome to the quiz bot!

Students:
• get a quiz code from your teacher
• send /join CODE to start, for example /join ABC123

See your previous results with /history.

Teachers: send /admin to open the teacher panel.`

// failureReplies renders a user-facing message for an error that ended a transition early.
func failureReplies(err error, restart string) []Reply {
	if errors.Is(err, domain.ErrSessionLost) {
		return []Reply{textReply("❌ Your session was lost. Please start again with " + restart + ".")}
	}
	return []Reply{saveFailedReply()}
}

func saveFailedReply() Reply {
	return textReply("⚠️ Something went wrong on our side. Please try the same step again.")
}
