package domain

import "time"

// Teacher is a registered quiz author, keyed by the chat user id.
type Teacher struct {
	ID         int64
	ExternalID int64
	Username   string
	FullName   string
	CreatedAt  time.Time
	Active     bool
}

// Quiz is a published, immutable set of questions shared through its code.
type Quiz struct {
	ID           int64      `json:"id"`
	TeacherID    int64      `json:"teacherId"`
	Code         string     `json:"code"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Questions    []Question `json:"questions"`
	CreatedAt    time.Time  `json:"createdAt"`
	Active       bool       `json:"active"`
	StudentCount int        `json:"studentCount"`
}

// AnswerRecord is one answered question inside an attempt.
type AnswerRecord struct {
	Answer    string `json:"answer"`
	IsCorrect bool   `json:"is_correct"`
}

// Attempt is a student's run through a quiz. Answers are keyed by question ordinal.
type Attempt struct {
	ID             int64
	QuizID         int64
	StudentID      int64
	StudentName    string
	Answers        map[int]AnswerRecord
	Score          int
	TotalQuestions int
	Percentage     int
	StartedAt      time.Time
	CompletedAt    *time.Time
	Completed      bool
}

// QuizStatistics aggregates the completed attempts of a quiz.
type QuizStatistics struct {
	AttemptCount  int
	AvgScore      float64
	AvgPercentage float64
	MaxScore      int
	MinScore      int
}
