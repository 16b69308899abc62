package services

import (
	"context"

	"github.com/azmoonhub/azmoon/internal/app/grading"
	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/app/models/dto"
	"github.com/azmoonhub/azmoon/internal/app/repositories"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
)

// ExamService handles exam listing for students and creation by teachers
type ExamService struct {
	exams       *repositories.ExamRepository
	courses     *repositories.CourseRepository
	enrollments EnrollmentChecker
}

// NewExamService creates a new ExamService
func NewExamService(exams *repositories.ExamRepository, courses *repositories.CourseRepository, enrollments EnrollmentChecker) *ExamService {
	return &ExamService{
		exams:       exams,
		courses:     courses,
		enrollments: enrollments,
	}
}

// ListForStudent returns the active exams offered to a class group the
// student is enrolled in.
func (s *ExamService) ListForStudent(ctx context.Context, studentID, classGroupID int64, page, pageSize int) ([]models.Exam, int, error) {
	enrolled, err := s.enrollments.IsEnrolled(ctx, studentID, classGroupID)
	if err != nil {
		return nil, 0, err
	}
	if !enrolled {
		return nil, 0, apperrors.ErrNotEnrolled
	}
	return s.exams.ListExamsForClassGroup(ctx, classGroupID, page, pageSize)
}

// Create builds an exam with its questions and options from the teacher's
// payload. The creating teacher must own the exam's course.
func (s *ExamService) Create(ctx context.Context, teacherID int64, req *dto.CreateExamRequest) (int64, error) {
	if _, err := grading.Resolve(req.GradingPolicy); err != nil {
		return 0, apperrors.NewBadRequestError("unknown grading policy")
	}
	if req.StartAt != nil && req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		return 0, apperrors.NewBadRequestError("exam window must end after it starts")
	}

	for _, groupID := range req.ClassGroupIDs {
		group, err := s.courses.GetClassGroupByID(ctx, groupID)
		if err != nil {
			return 0, err
		}
		if group.CourseID != req.CourseID {
			return 0, apperrors.NewBadRequestError("class group does not belong to the exam's course")
		}
		if group.Course != nil && group.Course.TeacherID != teacherID {
			return 0, apperrors.NewForbiddenError("only the course's teacher can create its exams")
		}
	}

	exam := &models.Exam{
		CourseID:        req.CourseID,
		Title:           req.Title,
		Description:     req.Description,
		GradingPolicy:   req.GradingPolicy,
		DurationMinutes: req.DurationMinutes,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		IsActive:        true,
	}
	for _, q := range req.Questions {
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return 0, apperrors.NewBadRequestError("each question needs exactly one correct option")
		}

		question := models.Question{
			Text:     q.Text,
			Score:    q.Score,
			Position: q.Position,
		}
		for _, o := range q.Options {
			question.Options = append(question.Options, models.QuestionOption{
				Text:      o.Text,
				IsCorrect: o.IsCorrect,
			})
		}
		exam.Questions = append(exam.Questions, question)
	}

	return s.exams.CreateExam(ctx, exam, req.ClassGroupIDs)
}
