package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/app/repositories"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
	"github.com/azmoonhub/azmoon/internal/pkg/clock"
	"github.com/azmoonhub/azmoon/internal/pkg/dberrors"
	"github.com/azmoonhub/azmoon/internal/pkg/helpers"
	"github.com/azmoonhub/azmoon/internal/pkg/logger"
)

// Outcome names the business result of a lifecycle operation. Controllers
// map these to HTTP responses; services never decide status codes.
type Outcome string

const (
	OutcomeOK              Outcome = "OK"
	OutcomeNotEnrolled     Outcome = "NOT_ENROLLED"
	OutcomeExamNotFound    Outcome = "EXAM_NOT_FOUND"
	OutcomeWindowNotOpen   Outcome = "WINDOW_NOT_OPEN"
	OutcomeWindowClosed    Outcome = "WINDOW_CLOSED"
	OutcomeNotStarted      Outcome = "NOT_STARTED"
	OutcomeAlreadyFinished Outcome = "ALREADY_FINISHED"
	OutcomeTimeOver        Outcome = "TIME_OVER"
	OutcomeEmptySubmission Outcome = "EMPTY_SUBMISSION"
	OutcomeTryAgain        Outcome = "TRY_AGAIN"
)

// AttemptStore is the persistence surface the lifecycle needs. The pgx
// implementation lives in repositories; tests substitute an in-memory fake.
type AttemptStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx repositories.AttemptTx) error) error
	FindAttempt(ctx context.Context, studentID, examID int64) (*models.Attempt, error)
	GetAttemptByID(ctx context.Context, attemptID int64) (*models.Attempt, error)
	ListAnswerRecords(ctx context.Context, attemptID int64) ([]models.AnswerRecord, error)
	ListUngraded(ctx context.Context) ([]models.Attempt, error)
}

// ExamReader resolves exams and their questions for the lifecycle.
type ExamReader interface {
	GetExamForClassGroup(ctx context.Context, examID, classGroupID int64) (*models.Exam, error)
	GetExamByID(ctx context.Context, examID int64) (*models.Exam, error)
	ListQuestions(ctx context.Context, examID int64) ([]models.Question, error)
}

// EnrollmentChecker answers whether a student belongs to a class group.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, classGroupID int64) (bool, error)
}

// Scheduler enqueues a named background job for an attempt. Finish calls it
// strictly after its transaction commits.
type Scheduler interface {
	Schedule(name string, attemptID int64) error
}

// JobGradeAttempt is the job name Finish schedules.
const JobGradeAttempt = "grade_attempt"

// AttemptService drives the attempt state machine:
// NOT_STARTED -> IN_PROGRESS -> FINISHED -> GRADED. Every mutation runs
// under a row lock on the attempt so concurrent requests serialize. All
// time checks use the injected clock, never client input.
type AttemptService struct {
	store       AttemptStore
	exams       ExamReader
	enrollments EnrollmentChecker
	scheduler   Scheduler
	clock       clock.Clock
}

// NewAttemptService creates a new AttemptService
func NewAttemptService(store AttemptStore, exams ExamReader, enrollments EnrollmentChecker, scheduler Scheduler, clk clock.Clock) *AttemptService {
	return &AttemptService{
		store:       store,
		exams:       exams,
		enrollments: enrollments,
		scheduler:   scheduler,
		clock:       clk,
	}
}

// StartResult is the outcome of Start.
type StartResult struct {
	Outcome  Outcome
	Attempt  *models.Attempt
	Deadline *time.Time
}

// TakeResult carries the in-progress view of an attempt.
type TakeResult struct {
	Outcome    Outcome
	Attempt    *models.Attempt
	Exam       *models.Exam
	Questions  []models.Question
	Selections map[int64]int64
	Deadline   time.Time
}

// SubmitResult is the outcome of recording one answer.
type SubmitResult struct {
	Outcome Outcome
}

// FinishResult is the outcome of Finish.
type FinishResult struct {
	Outcome Outcome
	Attempt *models.Attempt
}

// SummaryResult is the graded (or pending) view of a finished attempt.
type SummaryResult struct {
	Outcome     Outcome
	Attempt     *models.Attempt
	Exam        *models.Exam
	Rows        []models.AnswerRecord
	Correct     int
	Wrong       int
	Blank       int
	TotalWeight int
	Percentage  *float64
}

// Start opens (or re-enters) the student's attempt at an exam. Creating and
// locking the attempt happen in one transaction; the unique (student, exam)
// constraint backstops races, which surface as a retryable outcome.
func (s *AttemptService) Start(ctx context.Context, studentID, classGroupID, examID int64) (*StartResult, error) {
	exam, outcome, err := s.resolveExam(ctx, studentID, classGroupID, examID)
	if err != nil {
		return nil, err
	}
	if outcome != OutcomeOK {
		return &StartResult{Outcome: outcome}, nil
	}

	now := s.clock.Now()
	if exam.StartAt != nil && now.Before(*exam.StartAt) {
		return &StartResult{Outcome: OutcomeWindowNotOpen}, nil
	}
	if exam.EndAt != nil && now.After(*exam.EndAt) {
		return &StartResult{Outcome: OutcomeWindowClosed}, nil
	}

	var result StartResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx repositories.AttemptTx) error {
		attempt, err := tx.GetOrCreateAttempt(ctx, studentID, examID)
		if err != nil {
			return err
		}
		if attempt.IsFinished() {
			result = StartResult{Outcome: OutcomeAlreadyFinished, Attempt: attempt}
			return nil
		}
		if !attempt.IsStarted() {
			if err := tx.SetStarted(ctx, attempt.ID, now); err != nil {
				return err
			}
			attempt.StartedAt = &now
			logger.Info().Int64("attemptID", attempt.ID).Int64("studentID", studentID).Int64("examID", examID).Msg("Attempt started")
		}
		deadline, _ := attempt.Deadline(exam)
		result = StartResult{Outcome: OutcomeOK, Attempt: attempt, Deadline: &deadline}
		return nil
	})
	if err != nil {
		if dberrors.IsUniqueViolation(err) {
			return &StartResult{Outcome: OutcomeTryAgain}, nil
		}
		return nil, err
	}
	return &result, nil
}

// Take returns the questions and current selections of an in-progress
// attempt. It never mutates: a run-out clock yields a time-over outcome and
// leaves finishing to an explicit Finish call.
func (s *AttemptService) Take(ctx context.Context, studentID, classGroupID, examID int64) (*TakeResult, error) {
	exam, outcome, err := s.resolveExam(ctx, studentID, classGroupID, examID)
	if err != nil {
		return nil, err
	}
	if outcome != OutcomeOK {
		return &TakeResult{Outcome: outcome}, nil
	}

	attempt, err := s.store.FindAttempt(ctx, studentID, examID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAttemptNotFound) {
			return &TakeResult{Outcome: OutcomeNotStarted}, nil
		}
		return nil, err
	}
	if !attempt.IsStarted() {
		return &TakeResult{Outcome: OutcomeNotStarted, Attempt: attempt}, nil
	}
	if attempt.IsFinished() {
		return &TakeResult{Outcome: OutcomeAlreadyFinished, Attempt: attempt}, nil
	}

	deadline, _ := attempt.Deadline(exam)
	if !s.clock.Now().Before(deadline) {
		return &TakeResult{Outcome: OutcomeTimeOver, Attempt: attempt, Deadline: deadline}, nil
	}

	questions, err := s.exams.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListAnswerRecords(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	selections := make(map[int64]int64, len(records))
	for _, rec := range records {
		if rec.SelectedOptionID != nil {
			selections[rec.QuestionID] = *rec.SelectedOptionID
		}
	}

	return &TakeResult{
		Outcome:    OutcomeOK,
		Attempt:    attempt,
		Exam:       exam,
		Questions:  questions,
		Selections: selections,
		Deadline:   deadline,
	}, nil
}

// Submit records the student's choice for one question. A nil option clears
// the answer. Correctness is never computed here; that belongs to grading.
func (s *AttemptService) Submit(ctx context.Context, studentID, classGroupID, examID, questionID int64, selectedOptionID *int64) (*SubmitResult, error) {
	exam, outcome, err := s.resolveExam(ctx, studentID, classGroupID, examID)
	if err != nil {
		return nil, err
	}
	if outcome != OutcomeOK {
		return &SubmitResult{Outcome: outcome}, nil
	}

	var result SubmitResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx repositories.AttemptTx) error {
		attempt, err := tx.GetAttemptForUpdate(ctx, studentID, examID)
		if err != nil {
			if errors.Is(err, apperrors.ErrAttemptNotFound) {
				result = SubmitResult{Outcome: OutcomeNotStarted}
				return nil
			}
			return err
		}
		if !attempt.IsStarted() {
			result = SubmitResult{Outcome: OutcomeNotStarted}
			return nil
		}
		if attempt.IsFinished() {
			result = SubmitResult{Outcome: OutcomeAlreadyFinished}
			return nil
		}
		deadline, _ := attempt.Deadline(exam)
		if !s.clock.Now().Before(deadline) {
			result = SubmitResult{Outcome: OutcomeTimeOver}
			return nil
		}
		if err := tx.UpsertAnswer(ctx, attempt.ID, examID, questionID, selectedOptionID); err != nil {
			return err
		}
		result = SubmitResult{Outcome: OutcomeOK}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Finish closes the attempt and schedules grading. Finishing twice is a
// no-op that never schedules a second job; an attempt that never touched a
// single question is rejected and stays in progress. A blank answer row
// counts as a submission, so a student who cleared every choice can still
// finish and is graded to zero.
func (s *AttemptService) Finish(ctx context.Context, studentID, classGroupID, examID int64) (*FinishResult, error) {
	_, outcome, err := s.resolveExam(ctx, studentID, classGroupID, examID)
	if err != nil {
		return nil, err
	}
	if outcome != OutcomeOK {
		return &FinishResult{Outcome: outcome}, nil
	}

	now := s.clock.Now()
	var result FinishResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx repositories.AttemptTx) error {
		attempt, err := tx.GetAttemptForUpdate(ctx, studentID, examID)
		if err != nil {
			if errors.Is(err, apperrors.ErrAttemptNotFound) {
				result = FinishResult{Outcome: OutcomeNotStarted}
				return nil
			}
			return err
		}
		if !attempt.IsStarted() {
			result = FinishResult{Outcome: OutcomeNotStarted, Attempt: attempt}
			return nil
		}
		if attempt.IsFinished() {
			result = FinishResult{Outcome: OutcomeAlreadyFinished, Attempt: attempt}
			return nil
		}
		hasAnswers, err := tx.HasAnswers(ctx, attempt.ID)
		if err != nil {
			return err
		}
		if !hasAnswers {
			result = FinishResult{Outcome: OutcomeEmptySubmission, Attempt: attempt}
			return nil
		}
		if err := tx.SetFinished(ctx, attempt.ID, now); err != nil {
			return err
		}
		attempt.FinishedAt = &now
		result = FinishResult{Outcome: OutcomeOK, Attempt: attempt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Schedule only after the transaction committed, so the grader can
	// never observe an unfinished attempt. A failed enqueue is recovered
	// by the startup sweep.
	if result.Outcome == OutcomeOK {
		logger.Info().Int64("attemptID", result.Attempt.ID).Msg("Attempt finished")
		if err := s.scheduler.Schedule(JobGradeAttempt, result.Attempt.ID); err != nil {
			logger.Error().Err(err).Int64("attemptID", result.Attempt.ID).Msg("Failed to schedule grading job")
		}
	}
	return &result, nil
}

// Summary reports the per-question rows and aggregate stats of a finished
// attempt. Percentage is the only place a score is rounded.
func (s *AttemptService) Summary(ctx context.Context, studentID, classGroupID, examID int64) (*SummaryResult, error) {
	exam, outcome, err := s.resolveExam(ctx, studentID, classGroupID, examID)
	if err != nil {
		return nil, err
	}
	if outcome != OutcomeOK {
		return &SummaryResult{Outcome: outcome}, nil
	}

	attempt, err := s.store.FindAttempt(ctx, studentID, examID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAttemptNotFound) {
			return &SummaryResult{Outcome: OutcomeNotStarted}, nil
		}
		return nil, err
	}
	if !attempt.IsStarted() {
		return &SummaryResult{Outcome: OutcomeNotStarted, Attempt: attempt}, nil
	}
	if !attempt.IsFinished() {
		deadline, _ := attempt.Deadline(exam)
		if !s.clock.Now().Before(deadline) {
			return &SummaryResult{Outcome: OutcomeTimeOver, Attempt: attempt}, nil
		}
		return &SummaryResult{Outcome: OutcomeTryAgain, Attempt: attempt}, nil
	}

	questions, err := s.exams.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListAnswerRecords(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}

	totalWeight := 0
	for _, q := range questions {
		totalWeight += q.Score
	}

	correct, wrong, answered := 0, 0, 0
	for _, rec := range records {
		if rec.IsBlank() {
			continue
		}
		answered++
		if rec.OptionIsCorrect {
			correct++
		} else {
			wrong++
		}
	}
	blank := len(questions) - answered

	result := &SummaryResult{
		Outcome:     OutcomeOK,
		Attempt:     attempt,
		Exam:        exam,
		Rows:        records,
		Correct:     correct,
		Wrong:       wrong,
		Blank:       blank,
		TotalWeight: totalWeight,
	}
	if attempt.IsGraded() && totalWeight > 0 {
		pct := helpers.RoundTo(*attempt.Score/float64(totalWeight)*100, 2)
		result.Percentage = &pct
	}
	return result, nil
}

// RecoverPending re-schedules grading for attempts that finished but never
// got a committed grading pass, covering jobs lost to a crash.
func (s *AttemptService) RecoverPending(ctx context.Context) (int, error) {
	attempts, err := s.store.ListUngraded(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list ungraded attempts: %w", err)
	}
	scheduled := 0
	for _, attempt := range attempts {
		if err := s.scheduler.Schedule(JobGradeAttempt, attempt.ID); err != nil {
			logger.Error().Err(err).Int64("attemptID", attempt.ID).Msg("Failed to re-schedule grading job")
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		logger.Info().Int("count", scheduled).Msg("Re-scheduled grading for pending attempts")
	}
	return scheduled, nil
}

// resolveExam runs the shared guard pipeline: the student must be enrolled
// in the class group and the exam must be an active exam offered to it.
// Failures come back as outcomes, not errors.
func (s *AttemptService) resolveExam(ctx context.Context, studentID, classGroupID, examID int64) (*models.Exam, Outcome, error) {
	enrolled, err := s.enrollments.IsEnrolled(ctx, studentID, classGroupID)
	if err != nil {
		return nil, "", err
	}
	if !enrolled {
		return nil, OutcomeNotEnrolled, nil
	}

	exam, err := s.exams.GetExamForClassGroup(ctx, examID, classGroupID)
	if err != nil {
		if errors.Is(err, apperrors.ErrExamNotFound) {
			return nil, OutcomeExamNotFound, nil
		}
		return nil, "", err
	}
	return exam, OutcomeOK, nil
}
