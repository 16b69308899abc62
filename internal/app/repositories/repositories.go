package repositories

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles all repository instances for dependency injection
type Repositories struct {
	UserRepository    *UserRepository
	TokenRepository   *TokenRepository
	CourseRepository  *CourseRepository
	ExamRepository    *ExamRepository
	AttemptRepository *AttemptRepository
}

// NewRepositories creates all repositories sharing one connection pool
func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		UserRepository:    NewUserRepository(db),
		TokenRepository:   NewTokenRepository(db),
		CourseRepository:  NewCourseRepository(db),
		ExamRepository:    NewExamRepository(db),
		AttemptRepository: NewAttemptRepository(db),
	}
}
