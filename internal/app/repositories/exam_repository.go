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

// ExamRepository handles exam, question and option database operations
type ExamRepository struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

// NewExamRepository creates a new ExamRepository
func NewExamRepository(db *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var examColumns = []string{
	"e.id", "e.course_id", "e.title", "e.description", "e.grading_policy",
	"e.duration_minutes", "e.start_at", "e.end_at", "e.is_active", "e.created_at",
}

// GetExamForClassGroup retrieves an active exam offered to the given class
// group. Exams not linked to the group are reported as not found, never as
// forbidden, so the caller cannot probe for other groups' exams.
func (r *ExamRepository) GetExamForClassGroup(ctx context.Context, examID, classGroupID int64) (*models.Exam, error) {
	sql, args, err := r.sb.Select(examColumns...).
		From("exams e").
		Join("exam_class_groups ecg ON ecg.exam_id = e.id").
		Where(squirrel.Eq{
			"e.id":               examID,
			"ecg.class_group_id": classGroupID,
			"e.is_active":        true,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get exam query: %w", err)
	}

	return r.scanExam(ctx, sql, args)
}

// GetExamByID retrieves an exam regardless of class group links
func (r *ExamRepository) GetExamByID(ctx context.Context, examID int64) (*models.Exam, error) {
	sql, args, err := r.sb.Select(examColumns...).
		From("exams e").
		Where(squirrel.Eq{"e.id": examID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get exam query: %w", err)
	}

	return r.scanExam(ctx, sql, args)
}

// ListQuestions retrieves an exam's questions with their options, ordered by
// position. Option correctness flags stay internal; DTO mapping hides them.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID int64) ([]models.Question, error) {
	sql, args, err := r.sb.Select("id", "exam_id", "text", "score", "position", "created_at").
		From("questions").
		Where(squirrel.Eq{"exam_id": examID}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list questions query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	questionIndex := map[int64]int{}
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Score, &q.Position, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		questionIndex[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	optSql, optArgs, err := r.sb.Select("qo.id", "qo.question_id", "qo.text", "qo.is_correct").
		From("question_options qo").
		Join("questions q ON qo.question_id = q.id").
		Where(squirrel.Eq{"q.exam_id": examID}).
		OrderBy("qo.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list options query: %w", err)
	}

	optRows, err := r.db.Query(ctx, optSql, optArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query question options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var o models.QuestionOption
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect); err != nil {
			return nil, fmt.Errorf("failed to scan option row: %w", err)
		}
		if idx, ok := questionIndex[o.QuestionID]; ok {
			questions[idx].Options = append(questions[idx].Options, o)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating option rows: %w", err)
	}

	return questions, nil
}

// ListExamsForClassGroup retrieves active exams offered to a class group,
// ordered by opening time, with pagination.
func (r *ExamRepository) ListExamsForClassGroup(ctx context.Context, classGroupID int64, page, pageSize int) ([]models.Exam, int, error) {
	where := squirrel.Eq{
		"ecg.class_group_id": classGroupID,
		"e.is_active":        true,
	}

	countSql, countArgs, err := r.sb.Select("COUNT(*)").
		From("exams e").
		Join("exam_class_groups ecg ON ecg.exam_id = e.id").
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count exams query: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, countSql, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count exams: %w", err)
	}
	if total == 0 {
		return []models.Exam{}, 0, nil
	}

	offset := uint64((page - 1) * pageSize)
	sql, args, err := r.sb.Select(examColumns...).
		From("exams e").
		Join("exam_class_groups ecg ON ecg.exam_id = e.id").
		Where(where).
		OrderBy("e.start_at ASC NULLS LAST, e.id ASC").
		Limit(uint64(pageSize)).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list exams query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query exams: %w", err)
	}
	defer rows.Close()

	var exams []models.Exam
	for rows.Next() {
		var e models.Exam
		if err := rows.Scan(
			&e.ID, &e.CourseID, &e.Title, &e.Description, &e.GradingPolicy,
			&e.DurationMinutes, &e.StartAt, &e.EndAt, &e.IsActive, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan exam row: %w", err)
		}
		exams = append(exams, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating exam rows: %w", err)
	}

	return exams, total, nil
}

// CreateExam inserts an exam with its class group links, questions and
// options in one transaction. The one-correct-option constraint is enforced
// by the schema and surfaced as a validation error.
func (r *ExamRepository) CreateExam(ctx context.Context, exam *models.Exam, classGroupIDs []int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin create exam transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sql, args, err := r.sb.Insert("exams").
		Columns("course_id", "title", "description", "grading_policy", "duration_minutes", "start_at", "end_at", "is_active").
		Values(exam.CourseID, exam.Title, exam.Description, exam.GradingPolicy, exam.DurationMinutes, exam.StartAt, exam.EndAt, exam.IsActive).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build create exam query: %w", err)
	}

	var examID int64
	if err := tx.QueryRow(ctx, sql, args...).Scan(&examID); err != nil {
		if dberrors.IsForeignKeyViolation(err) {
			return 0, apperrors.ErrResourceNotFound
		}
		return 0, fmt.Errorf("error inserting exam: %w", err)
	}

	for _, groupID := range classGroupIDs {
		linkSql, linkArgs, err := r.sb.Insert("exam_class_groups").
			Columns("exam_id", "class_group_id").
			Values(examID, groupID).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build exam class group link query: %w", err)
		}
		if _, err := tx.Exec(ctx, linkSql, linkArgs...); err != nil {
			if dberrors.IsForeignKeyViolation(err) {
				return 0, apperrors.ErrClassGroupNotFound
			}
			return 0, fmt.Errorf("error linking exam to class group ID=%d: %w", groupID, err)
		}
	}

	for i := range exam.Questions {
		q := &exam.Questions[i]
		qSql, qArgs, err := r.sb.Insert("questions").
			Columns("exam_id", "text", "score", "position").
			Values(examID, q.Text, q.Score, q.Position).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build create question query: %w", err)
		}
		if err := tx.QueryRow(ctx, qSql, qArgs...).Scan(&q.ID); err != nil {
			if dberrors.IsDuplicateConstraintError(err, "unique_question_position") {
				return 0, apperrors.NewBadRequestError(fmt.Sprintf("duplicate question position %d", q.Position))
			}
			return 0, fmt.Errorf("error inserting question: %w", err)
		}

		for j := range q.Options {
			o := &q.Options[j]
			oSql, oArgs, err := r.sb.Insert("question_options").
				Columns("question_id", "text", "is_correct").
				Values(q.ID, o.Text, o.IsCorrect).
				Suffix("RETURNING id").
				ToSql()
			if err != nil {
				return 0, fmt.Errorf("failed to build create option query: %w", err)
			}
			if err := tx.QueryRow(ctx, oSql, oArgs...).Scan(&o.ID); err != nil {
				if dberrors.IsDuplicateConstraintError(err, "unique_correct_option_per_question") {
					return 0, apperrors.NewBadRequestError("question has more than one correct option")
				}
				return 0, fmt.Errorf("error inserting option: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit create exam transaction: %w", err)
	}

	logger.Info().Int64("examID", examID).Int("questions", len(exam.Questions)).Msg("Exam created")
	return examID, nil
}

func (r *ExamRepository) scanExam(ctx context.Context, sql string, args []interface{}) (*models.Exam, error) {
	var e models.Exam
	err := r.db.QueryRow(ctx, sql, args...).Scan(
		&e.ID, &e.CourseID, &e.Title, &e.Description, &e.GradingPolicy,
		&e.DurationMinutes, &e.StartAt, &e.EndAt, &e.IsActive, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrExamNotFound
		}
		logger.Error().Err(err).Msg("Error scanning exam row")
		return nil, fmt.Errorf("error querying exam: %w", err)
	}
	return &e, nil
}
