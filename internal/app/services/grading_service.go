package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/azmoonhub/azmoon/internal/app/grading"
	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/app/repositories"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
	"github.com/azmoonhub/azmoon/internal/pkg/clock"
	"github.com/azmoonhub/azmoon/internal/pkg/jobqueue"
	"github.com/azmoonhub/azmoon/internal/pkg/logger"
)

// GradingService runs the asynchronous grading pass. Grade is safe to call
// any number of times for the same attempt: duplicates and redeliveries
// serialize on the attempt row lock and bail out on graded_at.
type GradingService struct {
	store AttemptStore
	exams ExamReader
	clock clock.Clock
}

// NewGradingService creates a new GradingService
func NewGradingService(store AttemptStore, exams ExamReader, clk clock.Clock) *GradingService {
	return &GradingService{
		store: store,
		exams: exams,
		clock: clk,
	}
}

// Grade scores every answer of a finished attempt and commits the per-answer
// results plus the attempt total in one transaction. With force it recomputes
// from scratch, deterministically overwriting the previous pass.
func (s *GradingService) Grade(ctx context.Context, attemptID int64, force bool) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repositories.AttemptTx) error {
		attempt, err := tx.GetAttemptByIDForUpdate(ctx, attemptID)
		if err != nil {
			if errors.Is(err, apperrors.ErrAttemptNotFound) {
				return jobqueue.Permanent(err)
			}
			return err
		}
		if attempt.IsGraded() && !force {
			logger.Debug().Int64("attemptID", attemptID).Msg("Attempt already graded, skipping")
			return nil
		}
		if !attempt.IsFinished() {
			return fmt.Errorf("attempt ID=%d is not finished: %w", attemptID, apperrors.ErrConflict)
		}

		exam, err := s.exams.GetExamByID(ctx, attempt.ExamID)
		if err != nil {
			return err
		}
		policy, err := grading.ResolveForExam(exam)
		if err != nil {
			// A bad policy selector cannot be fixed by retrying.
			return jobqueue.Permanent(err)
		}

		records, err := tx.ListAnswerRecords(ctx, attemptID)
		if err != nil {
			return err
		}

		total := 0.0
		for _, rec := range records {
			answer := models.Answer{
				SelectedOptionID: rec.SelectedOptionID,
				IsCorrect:        rec.OptionIsCorrect,
			}
			awarded := policy.Grade(&answer, rec.QuestionScore)
			isCorrect := !rec.IsBlank() && rec.OptionIsCorrect
			if err := tx.SetAnswerResult(ctx, rec.AnswerID, isCorrect, awarded); err != nil {
				return err
			}
			total += awarded
		}

		if err := tx.SetGraded(ctx, attemptID, total, s.clock.Now()); err != nil {
			return err
		}

		logger.Info().
			Int64("attemptID", attemptID).
			Float64("score", total).
			Str("policy", string(policy.Name())).
			Bool("force", force).
			Msg("Attempt graded")
		return nil
	})
}

// HandleJob adapts Grade to the job queue handler signature.
func (s *GradingService) HandleJob(ctx context.Context, job jobqueue.Job) error {
	switch job.Name {
	case JobGradeAttempt:
		return s.Grade(ctx, job.Arg, false)
	default:
		return jobqueue.Permanent(fmt.Errorf("unknown job %q", job.Name))
	}
}
