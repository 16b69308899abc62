package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
	"github.com/azmoonhub/azmoon/internal/pkg/dberrors"
	"github.com/azmoonhub/azmoon/internal/pkg/logger"
)

// CourseRepository handles course, class group and enrollment operations
type CourseRepository struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

// NewCourseRepository creates a new CourseRepository
func NewCourseRepository(db *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateCourse inserts a new course and returns its ID
func (r *CourseRepository) CreateCourse(ctx context.Context, course *models.Course) (int64, error) {
	sql, args, err := r.sb.Insert("courses").
		Columns("title", "teacher_id", "is_active").
		Values(course.Title, course.TeacherID, course.IsActive).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create course query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		logger.Error().Err(err).Msg("Error executing create course query")
		return 0, fmt.Errorf("error inserting course: %w", err)
	}
	return id, nil
}

// CreateClassGroup inserts a new class group and returns its ID
func (r *CourseRepository) CreateClassGroup(ctx context.Context, group *models.ClassGroup) (int64, error) {
	sql, args, err := r.sb.Insert("class_groups").
		Columns("course_id", "name", "is_active").
		Values(group.CourseID, group.Name, group.IsActive).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create class group query: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if dberrors.IsForeignKeyViolation(err) {
			return 0, apperrors.ErrResourceNotFound
		}
		return 0, fmt.Errorf("error inserting class group: %w", err)
	}
	return id, nil
}

// GetClassGroupByID retrieves an active class group with its course
func (r *CourseRepository) GetClassGroupByID(ctx context.Context, id int64) (*models.ClassGroup, error) {
	sql, args, err := r.sb.Select(
		"cg.id", "cg.course_id", "cg.name", "cg.is_active", "cg.created_at",
		"c.id", "c.title", "c.teacher_id", "c.is_active", "c.created_at",
	).
		From("class_groups cg").
		Join("courses c ON cg.course_id = c.id").
		Where(squirrel.Eq{"cg.id": id, "cg.is_active": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get class group query: %w", err)
	}

	var group models.ClassGroup
	var course models.Course
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&group.ID, &group.CourseID, &group.Name, &group.IsActive, &group.CreatedAt,
		&course.ID, &course.Title, &course.TeacherID, &course.IsActive, &course.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrClassGroupNotFound
		}
		return nil, fmt.Errorf("error querying class group ID=%d: %w", id, err)
	}

	group.Course = &course
	return &group, nil
}

// EnrollStudent links a student to a class group. Enrolling twice is a no-op.
func (r *CourseRepository) EnrollStudent(ctx context.Context, studentID, classGroupID int64) error {
	sql, args, err := r.sb.Insert("enrollments").
		Columns("student_id", "class_group_id", "is_active").
		Values(studentID, classGroupID, true).
		Suffix("ON CONFLICT ON CONSTRAINT unique_enrollment DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build enroll student query: %w", err)
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		if dberrors.IsForeignKeyViolation(err) {
			return apperrors.ErrResourceNotFound
		}
		return fmt.Errorf("error enrolling student ID=%d: %w", studentID, err)
	}

	logger.Info().Int64("studentID", studentID).Int64("classGroupID", classGroupID).Msg("Student enrolled")
	return nil
}

// IsEnrolled reports whether the student has an active enrollment in the
// class group. The lifecycle guards call this before Start.
func (r *CourseRepository) IsEnrolled(ctx context.Context, studentID, classGroupID int64) (bool, error) {
	sql, args, err := r.sb.Select("1").
		From("enrollments").
		Where(squirrel.Eq{
			"student_id":     studentID,
			"class_group_id": classGroupID,
			"is_active":      true,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build enrollment check query: %w", err)
	}

	var one int
	err = r.db.QueryRow(ctx, sql, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error checking enrollment: %w", err)
	}
	return true, nil
}
