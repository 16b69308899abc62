package models

import "time"

// Exam defines the exam model based on the 'exams' table.
// Window bounds are optional; DurationMinutes caps each attempt once started.
type Exam struct {
	ID              int64         `json:"id" db:"id" example:"1"`
	CourseID        int64         `json:"courseId" db:"course_id"`
	Title           string        `json:"title" db:"title" example:"Midterm"`
	Description     string        `json:"description" db:"description"`
	GradingPolicy   GradingPolicy `json:"gradingPolicy" db:"grading_policy" example:"NO_NEGATIVE"`
	DurationMinutes int           `json:"durationMinutes" db:"duration_minutes" example:"30"`
	StartAt         *time.Time    `json:"startAt,omitempty" db:"start_at"`
	EndAt           *time.Time    `json:"endAt,omitempty" db:"end_at"`
	IsActive        bool          `json:"isActive" db:"is_active"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	Questions       []Question    `json:"questions,omitempty"` // Relation, no db tag
}

// Question belongs to exactly one exam ('questions' table).
// Score is the positive weight of the question; Position orders questions
// within the exam.
type Question struct {
	ID        int64            `json:"id" db:"id"`
	ExamID    int64            `json:"examId" db:"exam_id"`
	Text      string           `json:"text" db:"text"`
	Score     int              `json:"score" db:"score" example:"1"`
	Position  int              `json:"position" db:"position"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
	Options   []QuestionOption `json:"options,omitempty"` // Relation, no db tag
}

// QuestionOption belongs to exactly one question ('question_options' table).
// At most one option per question carries IsCorrect, enforced by a partial
// unique index in the schema.
type QuestionOption struct {
	ID         int64  `json:"id" db:"id"`
	QuestionID int64  `json:"questionId" db:"question_id"`
	Text       string `json:"text" db:"text"`
	IsCorrect  bool   `json:"-" db:"is_correct"` // never exposed to students
}
