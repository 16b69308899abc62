package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
	"github.com/azmoonhub/azmoon/internal/pkg/dberrors"
	"github.com/azmoonhub/azmoon/internal/pkg/logger"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so read helpers can
// run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AttemptTx exposes the attempt operations that must run under one
// transaction holding a row lock on the attempt. All lifecycle decisions
// (start, answer, finish, grade) go through here so concurrent requests for
// the same attempt serialize on the database.
type AttemptTx interface {
	// GetOrCreateAttempt inserts the (student, exam) attempt row if missing
	// and returns it locked FOR UPDATE. The unique constraint makes the
	// insert a no-op when two requests race.
	GetOrCreateAttempt(ctx context.Context, studentID, examID int64) (*models.Attempt, error)
	// GetAttemptForUpdate returns the existing attempt locked FOR UPDATE.
	GetAttemptForUpdate(ctx context.Context, studentID, examID int64) (*models.Attempt, error)
	// GetAttemptByIDForUpdate locks an attempt by primary key. The grading
	// pass uses this so two grader runs for one attempt serialize.
	GetAttemptByIDForUpdate(ctx context.Context, attemptID int64) (*models.Attempt, error)
	SetStarted(ctx context.Context, attemptID int64, at time.Time) error
	// UpsertAnswer records or replaces the student's choice for one
	// question. The question must belong to the exam and the option to the
	// question.
	UpsertAnswer(ctx context.Context, attemptID, examID, questionID int64, selectedOptionID *int64) error
	// HasAnswers reports whether any answer row exists for the attempt,
	// blank rows included.
	HasAnswers(ctx context.Context, attemptID int64) (bool, error)
	SetFinished(ctx context.Context, attemptID int64, at time.Time) error
	ListAnswerRecords(ctx context.Context, attemptID int64) ([]models.AnswerRecord, error)
	SetAnswerResult(ctx context.Context, answerID int64, isCorrect bool, awardedScore float64) error
	SetGraded(ctx context.Context, attemptID int64, score float64, at time.Time) error
}

// AttemptRepository handles attempt and answer database operations
type AttemptRepository struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InTx runs fn inside a transaction with an AttemptTx bound to it. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *AttemptRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx AttemptTx) error) error {
	pgTx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin attempt transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = pgTx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, &attemptTx{tx: pgTx, sb: r.sb}); err != nil {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error().Err(rbErr).Msg("Failed to rollback attempt transaction")
		}
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit attempt transaction: %w", err)
	}
	return nil
}

// FindAttempt retrieves the attempt for a (student, exam) pair without
// locking. Read-only surfaces use this.
func (r *AttemptRepository) FindAttempt(ctx context.Context, studentID, examID int64) (*models.Attempt, error) {
	return getAttempt(ctx, r.db, r.sb, squirrel.Eq{"student_id": studentID, "exam_id": examID}, false)
}

// GetAttemptByID retrieves an attempt by primary key without locking.
func (r *AttemptRepository) GetAttemptByID(ctx context.Context, attemptID int64) (*models.Attempt, error) {
	return getAttempt(ctx, r.db, r.sb, squirrel.Eq{"id": attemptID}, false)
}

// ListAnswerRecords retrieves graded summary rows outside a transaction.
func (r *AttemptRepository) ListAnswerRecords(ctx context.Context, attemptID int64) ([]models.AnswerRecord, error) {
	return listAnswerRecords(ctx, r.db, r.sb, attemptID)
}

// ListUngraded returns attempts that finished but never got a committed
// grading pass. The startup recovery sweep feeds these back to the grader.
func (r *AttemptRepository) ListUngraded(ctx context.Context) ([]models.Attempt, error) {
	sql, args, err := r.sb.Select(attemptColumns...).
		From("attempts").
		Where("finished_at IS NOT NULL").
		Where("graded_at IS NULL").
		OrderBy("finished_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list ungraded query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ungraded attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ungraded attempt rows: %w", err)
	}
	return attempts, nil
}

// attemptTx implements AttemptTx over a live pgx transaction.
type attemptTx struct {
	tx pgx.Tx
	sb squirrel.StatementBuilderType
}

var attemptColumns = []string{"id", "student_id", "exam_id", "started_at", "finished_at", "score", "graded_at"}

func (t *attemptTx) GetOrCreateAttempt(ctx context.Context, studentID, examID int64) (*models.Attempt, error) {
	sql, args, err := t.sb.Insert("attempts").
		Columns("student_id", "exam_id").
		Values(studentID, examID).
		Suffix("ON CONFLICT ON CONSTRAINT unique_student_exam DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build create attempt query: %w", err)
	}

	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		if dberrors.IsForeignKeyViolation(err) {
			return nil, apperrors.ErrExamNotFound
		}
		return nil, fmt.Errorf("error inserting attempt: %w", err)
	}

	return getAttempt(ctx, t.tx, t.sb, squirrel.Eq{"student_id": studentID, "exam_id": examID}, true)
}

func (t *attemptTx) GetAttemptForUpdate(ctx context.Context, studentID, examID int64) (*models.Attempt, error) {
	return getAttempt(ctx, t.tx, t.sb, squirrel.Eq{"student_id": studentID, "exam_id": examID}, true)
}

func (t *attemptTx) GetAttemptByIDForUpdate(ctx context.Context, attemptID int64) (*models.Attempt, error) {
	return getAttempt(ctx, t.tx, t.sb, squirrel.Eq{"id": attemptID}, true)
}

func (t *attemptTx) SetStarted(ctx context.Context, attemptID int64, at time.Time) error {
	return t.updateAttempt(ctx, attemptID, squirrel.Eq{"started_at": at})
}

func (t *attemptTx) UpsertAnswer(ctx context.Context, attemptID, examID, questionID int64, selectedOptionID *int64) error {
	qSql, qArgs, err := t.sb.Select("1").
		From("questions").
		Where(squirrel.Eq{"id": questionID, "exam_id": examID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build question check query: %w", err)
	}
	var one int
	if err := t.tx.QueryRow(ctx, qSql, qArgs...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrQuestionNotFound
		}
		return fmt.Errorf("error checking question: %w", err)
	}

	if selectedOptionID != nil {
		oSql, oArgs, err := t.sb.Select("1").
			From("question_options").
			Where(squirrel.Eq{"id": *selectedOptionID, "question_id": questionID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build option check query: %w", err)
		}
		if err := t.tx.QueryRow(ctx, oSql, oArgs...).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrOptionMismatch
			}
			return fmt.Errorf("error checking option: %w", err)
		}
	}

	sql, args, err := t.sb.Insert("answers").
		Columns("attempt_id", "question_id", "selected_option_id").
		Values(attemptID, questionID, selectedOptionID).
		Suffix("ON CONFLICT ON CONSTRAINT unique_answer_per_question DO UPDATE SET selected_option_id = EXCLUDED.selected_option_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert answer query: %w", err)
	}

	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("error upserting answer: %w", err)
	}
	return nil
}

func (t *attemptTx) HasAnswers(ctx context.Context, attemptID int64) (bool, error) {
	sql, args, err := t.sb.Select("1").
		From("answers").
		Where(squirrel.Eq{"attempt_id": attemptID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build has answers query: %w", err)
	}

	var one int
	err = t.tx.QueryRow(ctx, sql, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error checking answers: %w", err)
	}
	return true, nil
}

func (t *attemptTx) SetFinished(ctx context.Context, attemptID int64, at time.Time) error {
	return t.updateAttempt(ctx, attemptID, squirrel.Eq{"finished_at": at})
}

func (t *attemptTx) ListAnswerRecords(ctx context.Context, attemptID int64) ([]models.AnswerRecord, error) {
	return listAnswerRecords(ctx, t.tx, t.sb, attemptID)
}

func (t *attemptTx) SetAnswerResult(ctx context.Context, answerID int64, isCorrect bool, awardedScore float64) error {
	sql, args, err := t.sb.Update("answers").
		Set("is_correct", isCorrect).
		Set("awarded_score", awardedScore).
		Where(squirrel.Eq{"id": answerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build set answer result query: %w", err)
	}

	cmdTag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error updating answer ID=%d: %w", answerID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrResourceNotFound
	}
	return nil
}

func (t *attemptTx) SetGraded(ctx context.Context, attemptID int64, score float64, at time.Time) error {
	return t.updateAttempt(ctx, attemptID, squirrel.Eq{"score": score, "graded_at": at})
}

func (t *attemptTx) updateAttempt(ctx context.Context, attemptID int64, sets squirrel.Eq) error {
	builder := t.sb.Update("attempts").Where(squirrel.Eq{"id": attemptID})
	for col, val := range sets {
		builder = builder.Set(col, val)
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update attempt query: %w", err)
	}

	cmdTag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error updating attempt ID=%d: %w", attemptID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrAttemptNotFound
	}
	return nil
}

func getAttempt(ctx context.Context, q querier, sb squirrel.StatementBuilderType, where squirrel.Eq, forUpdate bool) (*models.Attempt, error) {
	builder := sb.Select(attemptColumns...).From("attempts").Where(where).Limit(1)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get attempt query: %w", err)
	}

	var a models.Attempt
	if err := scanAttempt(q.QueryRow(ctx, sql, args...), &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAttemptNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAttempt(row pgx.Row, a *models.Attempt) error {
	err := row.Scan(&a.ID, &a.StudentID, &a.ExamID, &a.StartedAt, &a.FinishedAt, &a.Score, &a.GradedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return fmt.Errorf("error scanning attempt row: %w", err)
	}
	return nil
}

// listAnswerRecords joins each answer with its question's weight and the
// correctness of the selected option. Blank answers report a false
// correctness flag from the join's left side.
func listAnswerRecords(ctx context.Context, q querier, sb squirrel.StatementBuilderType, attemptID int64) ([]models.AnswerRecord, error) {
	sql, args, err := sb.Select(
		"a.id", "a.question_id", "q.text", "q.score", "q.position",
		"a.selected_option_id", "COALESCE(qo.is_correct, FALSE)",
		"a.is_correct", "a.awarded_score",
	).
		From("answers a").
		Join("questions q ON a.question_id = q.id").
		LeftJoin("question_options qo ON a.selected_option_id = qo.id").
		Where(squirrel.Eq{"a.attempt_id": attemptID}).
		OrderBy("q.position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list answer records query: %w", err)
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query answer records: %w", err)
	}
	defer rows.Close()

	var records []models.AnswerRecord
	for rows.Next() {
		var rec models.AnswerRecord
		if err := rows.Scan(
			&rec.AnswerID, &rec.QuestionID, &rec.QuestionText, &rec.QuestionScore, &rec.Position,
			&rec.SelectedOptionID, &rec.OptionIsCorrect, &rec.IsCorrect, &rec.AwardedScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan answer record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answer record rows: %w", err)
	}
	return records, nil
}
