package dto

import (
	"time"

	"github.com/azmoonhub/azmoon/internal/app/models"
)

// CreateExamRequest represents the teacher's exam creation payload
type CreateExamRequest struct {
	CourseID        int64                   `json:"courseId" binding:"required,min=1"`
	Title           string                  `json:"title" binding:"required"`
	Description     string                  `json:"description"`
	GradingPolicy   models.GradingPolicy    `json:"gradingPolicy" binding:"required,oneof=NO_NEGATIVE NEGATIVE_3 NEGATIVE_5"`
	DurationMinutes int                     `json:"durationMinutes" binding:"required,min=1"`
	StartAt         *time.Time              `json:"startAt"`
	EndAt           *time.Time              `json:"endAt"`
	ClassGroupIDs   []int64                 `json:"classGroupIds" binding:"required,min=1"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// CreateQuestionRequest represents one question in an exam creation payload
type CreateQuestionRequest struct {
	Text     string                `json:"text" binding:"required"`
	Score    int                   `json:"score" binding:"required,min=1"`
	Position int                   `json:"position" binding:"required,min=1"`
	Options  []CreateOptionRequest `json:"options" binding:"required,min=2,dive"`
}

// CreateOptionRequest represents one option of a question
type CreateOptionRequest struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

// ExamResponse represents an exam as listed to students
type ExamResponse struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	GradingPolicy   string     `json:"gradingPolicy" example:"NEGATIVE_3" enums:"NO_NEGATIVE,NEGATIVE_3,NEGATIVE_5"`
	DurationMinutes int        `json:"durationMinutes"`
	StartAt         *time.Time `json:"startAt,omitempty"`
	EndAt           *time.Time `json:"endAt,omitempty"`
}

// ExamListResponse represents a paginated exam list
type ExamListResponse struct {
	Exams    []ExamResponse `json:"exams"`
	PageInfo PageInfo       `json:"pageInfo"`
}

// CreateExamResponse returns the new exam ID
type CreateExamResponse struct {
	ID int64 `json:"id"`
}

// NewExamResponse maps an exam model to its response shape
func NewExamResponse(exam *models.Exam) ExamResponse {
	return ExamResponse{
		ID:              exam.ID,
		Title:           exam.Title,
		Description:     exam.Description,
		GradingPolicy:   string(exam.GradingPolicy),
		DurationMinutes: exam.DurationMinutes,
		StartAt:         exam.StartAt,
		EndAt:           exam.EndAt,
	}
}
