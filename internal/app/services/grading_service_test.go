package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
	"github.com/azmoonhub/azmoon/internal/pkg/jobqueue"
)

// finishedAttempt walks an attempt through start, the given answers and
// finish, returning its ID.
func finishedAttempt(t *testing.T, f *fixture, answers map[int64]*int64) int64 {
	t.Helper()
	f.mustStart(t)
	for questionID, optionID := range answers {
		f.mustSubmit(t, questionID, optionID)
	}
	result, err := f.svc.Finish(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if result.Outcome != OutcomeOK {
		t.Fatalf("Finish outcome = %s, want OK", result.Outcome)
	}
	return result.Attempt.ID
}

func TestGradeNegativeThirdTotal(t *testing.T) {
	f := newFixture(t, models.PolicyNegativeThird)
	grader := NewGradingService(f.world, f.world, f.clock)

	// Weights 1, 2, 4: correct, wrong, correct.
	attemptID := finishedAttempt(t, f, map[int64]*int64{
		1: option(11),
		2: option(21),
		3: option(31),
	})

	if err := grader.Grade(context.Background(), attemptID, false); err != nil {
		t.Fatalf("Grade: %v", err)
	}

	attempt := f.world.attempts[attemptID]
	want := 1.0 - 2.0/3.0 + 4.0
	if attempt.Score == nil || !almostEqual(*attempt.Score, want) {
		t.Errorf("score = %v, want %v", attempt.Score, want)
	}
	if attempt.GradedAt == nil {
		t.Error("grading did not set GradedAt")
	}
}

func TestGradeNegativeFifthTotal(t *testing.T) {
	f := newFixture(t, models.PolicyNegativeFifth)
	grader := NewGradingService(f.world, f.world, f.clock)

	// Weight 4 answered wrong costs a fifth of it, the rest blank.
	attemptID := finishedAttempt(t, f, map[int64]*int64{
		3: option(32),
	})

	if err := grader.Grade(context.Background(), attemptID, false); err != nil {
		t.Fatalf("Grade: %v", err)
	}

	attempt := f.world.attempts[attemptID]
	if attempt.Score == nil || !almostEqual(*attempt.Score, -0.8) {
		t.Errorf("score = %v, want -0.8", attempt.Score)
	}
}

func TestGradeNoNegativeIgnoresWrong(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	grader := NewGradingService(f.world, f.world, f.clock)

	attemptID := finishedAttempt(t, f, map[int64]*int64{
		1: option(12),
		2: option(22),
	})

	if err := grader.Grade(context.Background(), attemptID, false); err != nil {
		t.Fatalf("Grade: %v", err)
	}

	attempt := f.world.attempts[attemptID]
	if attempt.Score == nil || !almostEqual(*attempt.Score, 2) {
		t.Errorf("score = %v, want 2", attempt.Score)
	}
}

func TestGradePersistsPerAnswerResults(t *testing.T) {
	f := newFixture(t, models.PolicyNegativeThird)
	grader := NewGradingService(f.world, f.world, f.clock)

	attemptID := finishedAttempt(t, f, map[int64]*int64{
		1: option(11),
		2: option(21),
	})

	if err := grader.Grade(context.Background(), attemptID, false); err != nil {
		t.Fatalf("Grade: %v", err)
	}

	answers := f.world.answers[attemptID]
	if !answers[1].isCorrect || answers[1].awardedScore == nil || !almostEqual(*answers[1].awardedScore, 1) {
		t.Errorf("question 1 result = %+v, want correct with score 1", answers[1])
	}
	if answers[2].isCorrect || answers[2].awardedScore == nil || !almostEqual(*answers[2].awardedScore, -2.0/3.0) {
		t.Errorf("question 2 result = %+v, want wrong with score -2/3", answers[2])
	}
}

func TestGradeIsIdempotent(t *testing.T) {
	f := newFixture(t, models.PolicyNegativeThird)
	grader := NewGradingService(f.world, f.world, f.clock)

	attemptID := finishedAttempt(t, f, map[int64]*int64{1: option(11)})

	if err := grader.Grade(context.Background(), attemptID, false); err != nil {
		t.Fatalf("first Grade: %v", err)
	}
	first := *f.world.attempts[attemptID].Score
	gradedAt := *f.world.attempts[attemptID].GradedAt

	// A redelivered job must not rewrite anything.
	f.clock.Advance(time.Minute)
	if err := grader.Grade(context.Background(), attemptID, false); err != nil {
		t.Fatalf("second Grade: %v", err)
	}
	if f.world.gradedCalls != 1 {
		t.Errorf("SetGraded called %d times, want 1", f.world.gradedCalls)
	}
	if !almostEqual(*f.world.attempts[attemptID].Score, first) {
		t.Errorf("redelivery changed score from %v to %v", first, *f.world.attempts[attemptID].Score)
	}
	if !f.world.attempts[attemptID].GradedAt.Equal(gradedAt) {
		t.Error("redelivery moved GradedAt")
	}
}

func TestGradeForceRecomputesDeterministically(t *testing.T) {
	f := newFixture(t, models.PolicyNegativeThird)
	grader := NewGradingService(f.world, f.world, f.clock)

	attemptID := finishedAttempt(t, f, map[int64]*int64{
		1: option(11),
		2: option(21),
	})

	if err := grader.Grade(context.Background(), attemptID, false); err != nil {
		t.Fatalf("Grade: %v", err)
	}
	first := *f.world.attempts[attemptID].Score

	if err := grader.Grade(context.Background(), attemptID, true); err != nil {
		t.Fatalf("force Grade: %v", err)
	}
	if f.world.gradedCalls != 2 {
		t.Errorf("SetGraded called %d times, want 2", f.world.gradedCalls)
	}
	if !almostEqual(*f.world.attempts[attemptID].Score, first) {
		t.Errorf("force recompute changed score from %v to %v", first, *f.world.attempts[attemptID].Score)
	}
}

func TestGradeRejectsUnfinishedAttempt(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	grader := NewGradingService(f.world, f.world, f.clock)

	attempt := f.mustStart(t)
	err := grader.Grade(context.Background(), attempt.ID, false)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("grading an in-progress attempt returned %v, want ErrConflict", err)
	}
	if f.world.attempts[attempt.ID].GradedAt != nil {
		t.Error("in-progress attempt got a graded timestamp")
	}
}

func TestGradeMissingAttemptIsPermanent(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	grader := NewGradingService(f.world, f.world, f.clock)

	err := grader.Grade(context.Background(), 424242, false)
	var perm *jobqueue.PermanentError
	if !errors.As(err, &perm) {
		t.Errorf("grading a missing attempt returned %v, want a permanent error", err)
	}
}

func TestGradeUnknownPolicyIsPermanent(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	grader := NewGradingService(f.world, f.world, f.clock)

	attemptID := finishedAttempt(t, f, map[int64]*int64{1: option(11)})
	f.world.exams[testExamID].GradingPolicy = models.GradingPolicy("HALF_CREDIT")

	err := grader.Grade(context.Background(), attemptID, false)
	var perm *jobqueue.PermanentError
	if !errors.As(err, &perm) {
		t.Errorf("unknown policy returned %v, want a permanent error", err)
	}
	if !errors.Is(err, apperrors.ErrUnknownGradingPolicy) {
		t.Errorf("unknown policy returned %v, want ErrUnknownGradingPolicy in the chain", err)
	}
}

func TestHandleJobRoutesGrading(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	grader := NewGradingService(f.world, f.world, f.clock)

	attemptID := finishedAttempt(t, f, map[int64]*int64{1: option(11)})
	job := jobqueue.Job{Name: JobGradeAttempt, Arg: attemptID}
	if err := grader.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}
	if f.world.attempts[attemptID].GradedAt == nil {
		t.Error("HandleJob did not grade the attempt")
	}

	err := grader.HandleJob(context.Background(), jobqueue.Job{Name: "reindex", Arg: 1})
	var perm *jobqueue.PermanentError
	if !errors.As(err, &perm) {
		t.Errorf("unknown job name returned %v, want a permanent error", err)
	}
}
