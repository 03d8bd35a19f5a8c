package domain

// QuizDraft is an unpublished quiz under construction. Question ordinals are
// always 1..len(Questions).
type QuizDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// NextOrdinal is the ordinal the next added question receives.
func (d *QuizDraft) NextOrdinal() int {
	return len(d.Questions) + 1
}

// AddQuestion appends q, overriding its ordinal to keep numbering contiguous.
func (d *QuizDraft) AddQuestion(q Question) Question {
	q.Ordinal = d.NextOrdinal()
	d.Questions = append(d.Questions, q)
	return q
}

// RemoveLast drops the most recently added question. It is a no-op on an empty draft.
func (d *QuizDraft) RemoveLast() {
	d.RemoveQuestion(len(d.Questions))
}

// RemoveQuestion drops the question with the given ordinal and renumbers the rest.
func (d *QuizDraft) RemoveQuestion(ordinal int) {
	kept := make([]Question, 0, len(d.Questions))
	for _, q := range d.Questions {
		if q.Ordinal != ordinal {
			kept = append(kept, q)
		}
	}
	for i := range kept {
		kept[i].Ordinal = i + 1
	}
	d.Questions = kept
}

// Freeze returns a copy of the questions that is safe to hand to persistence.
func (d *QuizDraft) Freeze() []Question {
	out := make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		q.Options = append([]Option(nil), q.Options...)
		out[i] = q
	}
	return out
}
