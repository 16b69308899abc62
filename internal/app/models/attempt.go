package models

import "time"

// Attempt is one student's single timed try at one exam ('attempts' table).
// The (student, exam) pair is unique; FinishedAt is the terminal marker and
// is never cleared once set.
type Attempt struct {
	ID         int64      `json:"id" db:"id"`
	StudentID  int64      `json:"studentId" db:"student_id"`
	ExamID     int64      `json:"examId" db:"exam_id"`
	StartedAt  *time.Time `json:"startedAt,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
	Score      *float64   `json:"score,omitempty" db:"score"`
	GradedAt   *time.Time `json:"gradedAt,omitempty" db:"graded_at"`
}

// IsStarted reports whether the attempt has begun.
func (a *Attempt) IsStarted() bool {
	return a.StartedAt != nil
}

// IsFinished reports whether the attempt reached its terminal state for
// student-facing mutation.
func (a *Attempt) IsFinished() bool {
	return a.FinishedAt != nil
}

// IsGraded reports whether the grading pass has committed.
func (a *Attempt) IsGraded() bool {
	return a.GradedAt != nil
}

// Deadline returns the instant the attempt's time budget runs out: started_at
// plus the exam duration, capped by the exam's closing bound when set.
// The second return is false when the attempt has not started.
func (a *Attempt) Deadline(exam *Exam) (time.Time, bool) {
	if a.StartedAt == nil {
		return time.Time{}, false
	}
	deadline := a.StartedAt.Add(time.Duration(exam.DurationMinutes) * time.Minute)
	if exam.EndAt != nil && exam.EndAt.Before(deadline) {
		deadline = *exam.EndAt
	}
	return deadline, true
}

// Answer records the student's choice for one question of one attempt
// ('answers' table). SelectedOptionID is nil for a blank answer. IsCorrect
// and AwardedScore are outputs of the grading pass, not of submission.
type Answer struct {
	ID               int64    `json:"id" db:"id"`
	AttemptID        int64    `json:"attemptId" db:"attempt_id"`
	QuestionID       int64    `json:"questionId" db:"question_id"`
	SelectedOptionID *int64   `json:"selectedOptionId,omitempty" db:"selected_option_id"`
	IsCorrect        bool     `json:"isCorrect" db:"is_correct"`
	AwardedScore     *float64 `json:"awardedScore,omitempty" db:"awarded_score"`
}

// IsBlank reports whether the student left the question unanswered.
func (a *Answer) IsBlank() bool {
	return a.SelectedOptionID == nil
}

// AnswerRecord is an answer row joined with its question's weight and the
// selected option's correctness flag. Grading and attempt summaries both read
// from this shape.
type AnswerRecord struct {
	AnswerID         int64    `json:"answerId" db:"answer_id"`
	QuestionID       int64    `json:"questionId" db:"question_id"`
	QuestionText     string   `json:"questionText" db:"question_text"`
	QuestionScore    int      `json:"questionScore" db:"question_score"`
	Position         int      `json:"position" db:"position"`
	SelectedOptionID *int64   `json:"selectedOptionId,omitempty" db:"selected_option_id"`
	OptionIsCorrect  bool     `json:"-" db:"option_is_correct"`
	IsCorrect        bool     `json:"isCorrect" db:"is_correct"`
	AwardedScore     *float64 `json:"awardedScore,omitempty" db:"awarded_score"`
}

// IsBlank reports whether the record carries no selected option.
func (r *AnswerRecord) IsBlank() bool {
	return r.SelectedOptionID == nil
}
