package dto

import (
	"time"

	"github.com/azmoonhub/azmoon/internal/app/models"
)

// SubmitAnswerRequest records the student's choice for one question. A null
// selectedOptionId clears the answer.
type SubmitAnswerRequest struct {
	QuestionID       int64  `json:"questionId" binding:"required,min=1"`
	SelectedOptionID *int64 `json:"selectedOptionId"`
}

// AttemptResponse represents the attempt state returned by Start
type AttemptResponse struct {
	ID         int64      `json:"id"`
	ExamID     int64      `json:"examId"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// TakeOptionResponse is one selectable option, with correctness withheld
type TakeOptionResponse struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// TakeQuestionResponse is one question with the student's current selection
type TakeQuestionResponse struct {
	ID               int64                `json:"id"`
	Text             string               `json:"text"`
	Score            int                  `json:"score"`
	Position         int                  `json:"position"`
	Options          []TakeOptionResponse `json:"options"`
	SelectedOptionID *int64               `json:"selectedOptionId,omitempty"`
}

// TakeResponse is the in-progress view of an attempt
type TakeResponse struct {
	AttemptID int64                  `json:"attemptId"`
	Exam      ExamResponse           `json:"exam"`
	Deadline  time.Time              `json:"deadline"`
	Questions []TakeQuestionResponse `json:"questions"`
}

// SummaryRowResponse is one graded (or pending) answer row
type SummaryRowResponse struct {
	QuestionID       int64    `json:"questionId"`
	QuestionText     string   `json:"questionText"`
	QuestionScore    int      `json:"questionScore"`
	Position         int      `json:"position"`
	SelectedOptionID *int64   `json:"selectedOptionId,omitempty"`
	IsCorrect        bool     `json:"isCorrect"`
	AwardedScore     *float64 `json:"awardedScore,omitempty"`
}

// SummaryResponse is the result view of a finished attempt
type SummaryResponse struct {
	AttemptID   int64                `json:"attemptId"`
	ExamID      int64                `json:"examId"`
	FinishedAt  *time.Time           `json:"finishedAt,omitempty"`
	GradedAt    *time.Time           `json:"gradedAt,omitempty"`
	Score       *float64             `json:"score,omitempty"`
	Percentage  *float64             `json:"percentage,omitempty"`
	TotalWeight int                  `json:"totalWeight"`
	Correct     int                  `json:"correct"`
	Wrong       int                  `json:"wrong"`
	Blank       int                  `json:"blank"`
	Rows        []SummaryRowResponse `json:"rows"`
}

// NewAttemptResponse maps an attempt to its response shape
func NewAttemptResponse(attempt *models.Attempt, deadline *time.Time) AttemptResponse {
	return AttemptResponse{
		ID:         attempt.ID,
		ExamID:     attempt.ExamID,
		StartedAt:  attempt.StartedAt,
		FinishedAt: attempt.FinishedAt,
		Deadline:   deadline,
	}
}
