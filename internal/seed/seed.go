package seed

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	appModels "github.com/azmoonhub/azmoon/internal/app/models"
	appRepos "github.com/azmoonhub/azmoon/internal/app/repositories"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
	"github.com/azmoonhub/azmoon/internal/pkg/auth"
)

// CreateDefaultData seeds a demo teacher, student, course, class group and
// exam so a fresh install is immediately usable. Re-running is a no-op.
func CreateDefaultData(ctx context.Context, dbPool *pgxpool.Pool, lgr zerolog.Logger) error {
	userRepo := appRepos.NewUserRepository(dbPool)
	courseRepo := appRepos.NewCourseRepository(dbPool)
	examRepo := appRepos.NewExamRepository(dbPool)

	lgr.Info().Msg("Checking/Creating default data...")
	var finalErr error

	teacherID, err := seedUser(ctx, userRepo, "teacher@azmoon.dev", "Maryam", "Ahmadi", appModels.RoleTeacher)
	if err != nil {
		lgr.Error().Err(err).Msg("Error creating demo teacher")
		finalErr = errors.Join(finalErr, err)
	}
	studentID, err := seedUser(ctx, userRepo, "student@azmoon.dev", "Ali", "Karimi", appModels.RoleStudent)
	if err != nil {
		lgr.Error().Err(err).Msg("Error creating demo student")
		finalErr = errors.Join(finalErr, err)
	}

	// New users mean a fresh database; an existing email means the demo
	// data is already in place.
	if teacherID == 0 || studentID == 0 {
		return finalErr
	}

	courseID, err := courseRepo.CreateCourse(ctx, &appModels.Course{
		Title:     "Introduction to Algebra",
		TeacherID: teacherID,
		IsActive:  true,
	})
	if err != nil {
		lgr.Error().Err(err).Msg("Error creating demo course")
		return errors.Join(finalErr, err)
	}

	groupID, err := courseRepo.CreateClassGroup(ctx, &appModels.ClassGroup{
		CourseID: courseID,
		Name:     "Group A",
		IsActive: true,
	})
	if err != nil {
		lgr.Error().Err(err).Msg("Error creating demo class group")
		return errors.Join(finalErr, err)
	}

	if err := courseRepo.EnrollStudent(ctx, studentID, groupID); err != nil {
		lgr.Error().Err(err).Msg("Error enrolling demo student")
		finalErr = errors.Join(finalErr, err)
	}

	endAt := time.Now().Add(30 * 24 * time.Hour)
	exam := &appModels.Exam{
		CourseID:        courseID,
		Title:           "Algebra Midterm",
		Description:     "Covers chapters 1 through 4",
		GradingPolicy:   appModels.PolicyNegativeThird,
		DurationMinutes: 45,
		EndAt:           &endAt,
		IsActive:        true,
		Questions: []appModels.Question{
			{
				Text: "What is 2 + 2?", Score: 1, Position: 1,
				Options: []appModels.QuestionOption{
					{Text: "3"}, {Text: "4", IsCorrect: true}, {Text: "5"}, {Text: "22"},
				},
			},
			{
				Text: "Solve x in 3x = 12", Score: 2, Position: 2,
				Options: []appModels.QuestionOption{
					{Text: "2"}, {Text: "3"}, {Text: "4", IsCorrect: true}, {Text: "6"},
				},
			},
			{
				Text: "Which expression equals (a+b)^2?", Score: 4, Position: 3,
				Options: []appModels.QuestionOption{
					{Text: "a^2 + b^2"},
					{Text: "a^2 + 2ab + b^2", IsCorrect: true},
					{Text: "a^2 - 2ab + b^2"},
					{Text: "2a + 2b"},
				},
			},
		},
	}
	if _, err := examRepo.CreateExam(ctx, exam, []int64{groupID}); err != nil {
		lgr.Error().Err(err).Msg("Error creating demo exam")
		finalErr = errors.Join(finalErr, err)
	}

	lgr.Info().Msg("Default data ready")
	return finalErr
}

func seedUser(ctx context.Context, userRepo *appRepos.UserRepository, email, firstName, lastName string, role appModels.RoleType) (int64, error) {
	hashed, err := auth.HashPassword("azmoon123")
	if err != nil {
		return 0, err
	}
	id, err := userRepo.CreateUser(ctx, &appModels.User{
		Email:     email,
		Password:  hashed,
		FirstName: firstName,
		LastName:  lastName,
		RoleType:  role,
		IsActive:  true,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrEmailAlreadyExists) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}
