package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
)

const (
	testStudentID  = int64(1)
	testOutsiderID = int64(2)
	testGroupID    = int64(10)
	testExamID     = int64(100)
)

func testExam(policy models.GradingPolicy) *models.Exam {
	return &models.Exam{
		ID:              testExamID,
		CourseID:        1,
		Title:           "Midterm",
		GradingPolicy:   policy,
		DurationMinutes: 30,
		IsActive:        true,
		Questions: []models.Question{
			{
				ID: 1, ExamID: testExamID, Text: "Q1", Score: 1, Position: 1,
				Options: []models.QuestionOption{
					{ID: 11, QuestionID: 1, IsCorrect: true},
					{ID: 12, QuestionID: 1},
				},
			},
			{
				ID: 2, ExamID: testExamID, Text: "Q2", Score: 2, Position: 2,
				Options: []models.QuestionOption{
					{ID: 21, QuestionID: 2},
					{ID: 22, QuestionID: 2, IsCorrect: true},
				},
			},
			{
				ID: 3, ExamID: testExamID, Text: "Q3", Score: 4, Position: 3,
				Options: []models.QuestionOption{
					{ID: 31, QuestionID: 3, IsCorrect: true},
					{ID: 32, QuestionID: 3},
				},
			},
		},
	}
}

type fixture struct {
	world *fakeWorld
	clock *fakeClock
	sched *fakeScheduler
	svc   *AttemptService
}

func newFixture(t *testing.T, policy models.GradingPolicy) *fixture {
	t.Helper()
	world := newFakeWorld()
	world.addExam(testExam(policy), testGroupID)
	world.enroll(testStudentID, testGroupID)
	clk := newFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	sched := &fakeScheduler{}
	svc := NewAttemptService(world, world, world, sched, clk)
	return &fixture{world: world, clock: clk, sched: sched, svc: svc}
}

func option(id int64) *int64 { return &id }

func (f *fixture) mustStart(t *testing.T) *models.Attempt {
	t.Helper()
	result, err := f.svc.Start(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Outcome != OutcomeOK {
		t.Fatalf("Start outcome = %s, want OK", result.Outcome)
	}
	return result.Attempt
}

func (f *fixture) mustSubmit(t *testing.T, questionID int64, optionID *int64) {
	t.Helper()
	result, err := f.svc.Submit(context.Background(), testStudentID, testGroupID, testExamID, questionID, optionID)
	if err != nil {
		t.Fatalf("Submit(q=%d): %v", questionID, err)
	}
	if result.Outcome != OutcomeOK {
		t.Fatalf("Submit(q=%d) outcome = %s, want OK", questionID, result.Outcome)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)

	first := f.mustStart(t)
	if first.StartedAt == nil {
		t.Fatal("first Start did not set StartedAt")
	}

	f.clock.Advance(5 * time.Minute)
	second := f.mustStart(t)

	if second.ID != first.ID {
		t.Errorf("second Start returned attempt %d, want %d", second.ID, first.ID)
	}
	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Errorf("second Start moved StartedAt from %v to %v", first.StartedAt, second.StartedAt)
	}
}

func TestStartConcurrentCreatesOneAttempt(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)

	const workers = 20
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.Start(context.Background(), testStudentID, testGroupID, testExamID)
			if err == nil && result.Outcome == OutcomeOK {
				ids[i] = result.Attempt.ID
			}
		}(i)
	}
	wg.Wait()

	if len(f.world.attempts) != 1 {
		t.Fatalf("concurrent Start created %d attempts, want 1", len(f.world.attempts))
	}
	var want int64
	for id := range f.world.attempts {
		want = id
	}
	for i, got := range ids {
		if got != 0 && got != want {
			t.Errorf("worker %d saw attempt %d, want %d", i, got, want)
		}
	}
}

func TestStartGuards(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	ctx := context.Background()

	result, err := f.svc.Start(ctx, testOutsiderID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Outcome != OutcomeNotEnrolled {
		t.Errorf("unenrolled student outcome = %s, want NOT_ENROLLED", result.Outcome)
	}

	result, err = f.svc.Start(ctx, testStudentID, testGroupID, 999)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Outcome != OutcomeExamNotFound {
		t.Errorf("unknown exam outcome = %s, want EXAM_NOT_FOUND", result.Outcome)
	}
}

func TestStartWindowBounds(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	now := f.clock.Now()

	opensAt := now.Add(time.Hour)
	closesAt := now.Add(2 * time.Hour)
	f.world.exams[testExamID].StartAt = &opensAt
	f.world.exams[testExamID].EndAt = &closesAt

	result, _ := f.svc.Start(context.Background(), testStudentID, testGroupID, testExamID)
	if result.Outcome != OutcomeWindowNotOpen {
		t.Errorf("before window outcome = %s, want WINDOW_NOT_OPEN", result.Outcome)
	}

	f.clock.Advance(3 * time.Hour)
	result, _ = f.svc.Start(context.Background(), testStudentID, testGroupID, testExamID)
	if result.Outcome != OutcomeWindowClosed {
		t.Errorf("after window outcome = %s, want WINDOW_CLOSED", result.Outcome)
	}
}

func TestStartDeadlineCappedByExamEnd(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	closesAt := f.clock.Now().Add(10 * time.Minute)
	f.world.exams[testExamID].EndAt = &closesAt

	result, err := f.svc.Start(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !result.Deadline.Equal(closesAt) {
		t.Errorf("deadline = %v, want capped at exam end %v", result.Deadline, closesAt)
	}
}

func TestSubmitRecordsAndReplaces(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	attempt := f.mustStart(t)

	f.mustSubmit(t, 1, option(12))
	f.mustSubmit(t, 1, option(11))

	ans := f.world.answers[attempt.ID][1]
	if ans == nil || ans.selectedOptionID == nil || *ans.selectedOptionID != 11 {
		t.Fatalf("answer for question 1 = %+v, want option 11", ans)
	}

	// A nil option clears the selection.
	f.mustSubmit(t, 1, nil)
	if f.world.answers[attempt.ID][1].selectedOptionID != nil {
		t.Error("clearing the answer did not remove the selection")
	}
}

func TestSubmitOptionMismatch(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	f.mustStart(t)

	_, err := f.svc.Submit(context.Background(), testStudentID, testGroupID, testExamID, 1, option(22))
	if !errors.Is(err, apperrors.ErrOptionMismatch) {
		t.Errorf("submitting another question's option returned %v, want ErrOptionMismatch", err)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)

	result, err := f.svc.Submit(context.Background(), testStudentID, testGroupID, testExamID, 1, option(11))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Outcome != OutcomeNotStarted {
		t.Errorf("outcome = %s, want NOT_STARTED", result.Outcome)
	}
}

func TestSubmitAfterDeadline(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	attempt := f.mustStart(t)

	f.clock.Advance(31 * time.Minute)
	result, err := f.svc.Submit(context.Background(), testStudentID, testGroupID, testExamID, 1, option(11))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Outcome != OutcomeTimeOver {
		t.Errorf("outcome = %s, want TIME_OVER", result.Outcome)
	}
	if len(f.world.answers[attempt.ID]) != 0 {
		t.Error("late submit recorded an answer")
	}
}

func TestTakeTimeOverDoesNotFinish(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	attempt := f.mustStart(t)

	f.clock.Advance(31 * time.Minute)
	result, err := f.svc.Take(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if result.Outcome != OutcomeTimeOver {
		t.Errorf("outcome = %s, want TIME_OVER", result.Outcome)
	}
	if f.world.attempts[attempt.ID].FinishedAt != nil {
		t.Error("reading a timed-out attempt finished it")
	}
}

func TestTakeReturnsQuestionsAndSelections(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	f.mustStart(t)
	f.mustSubmit(t, 2, option(22))

	result, err := f.svc.Take(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if result.Outcome != OutcomeOK {
		t.Fatalf("outcome = %s, want OK", result.Outcome)
	}
	if len(result.Questions) != 3 {
		t.Errorf("got %d questions, want 3", len(result.Questions))
	}
	if result.Selections[2] != 22 {
		t.Errorf("selection for question 2 = %d, want 22", result.Selections[2])
	}
	if _, found := result.Selections[1]; found {
		t.Error("unanswered question reported a selection")
	}
}

func TestFinishRejectsEmptySubmission(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	attempt := f.mustStart(t)

	result, err := f.svc.Finish(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if result.Outcome != OutcomeEmptySubmission {
		t.Errorf("outcome = %s, want EMPTY_SUBMISSION", result.Outcome)
	}
	if f.world.attempts[attempt.ID].FinishedAt != nil {
		t.Error("empty finish closed the attempt")
	}
	if f.sched.count() != 0 {
		t.Error("empty finish scheduled a grading job")
	}
}

// A blank answer row is still an answer: a student who touched a question
// and left it blank can finish and is graded to zero, instead of bouncing
// between the finish and attempt pages.
func TestFinishWithOnlyBlankAnswers(t *testing.T) {
	f := newFixture(t, models.PolicyNegativeThird)
	ctx := context.Background()
	f.mustStart(t)
	f.mustSubmit(t, 1, nil)

	result, err := f.svc.Finish(ctx, testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if result.Outcome != OutcomeOK {
		t.Fatalf("outcome = %s, want OK", result.Outcome)
	}
	if f.sched.count() != 1 {
		t.Errorf("scheduled %d grading jobs, want 1", f.sched.count())
	}

	grader := NewGradingService(f.world, f.world, f.clock)
	if err := grader.Grade(ctx, result.Attempt.ID, false); err != nil {
		t.Fatalf("Grade: %v", err)
	}
	attempt := f.world.attempts[result.Attempt.ID]
	if attempt.Score == nil || *attempt.Score != 0 {
		t.Errorf("score = %v, want 0 for an all-blank attempt", attempt.Score)
	}
}

// Clearing the only recorded choice must not lock the student out of Finish.
func TestFinishAfterClearingAnswers(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	f.mustStart(t)
	f.mustSubmit(t, 1, option(11))
	f.mustSubmit(t, 1, nil)

	result, err := f.svc.Finish(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if result.Outcome != OutcomeOK {
		t.Errorf("outcome = %s, want OK", result.Outcome)
	}
}

func TestFinishSchedulesGradingOnce(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	f.mustStart(t)
	f.mustSubmit(t, 1, option(11))

	result, err := f.svc.Finish(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if result.Outcome != OutcomeOK {
		t.Fatalf("outcome = %s, want OK", result.Outcome)
	}
	if f.sched.count() != 1 {
		t.Fatalf("scheduled %d jobs, want 1", f.sched.count())
	}

	// Finishing again is a no-op and never re-schedules.
	result, err = f.svc.Finish(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	if result.Outcome != OutcomeAlreadyFinished {
		t.Errorf("second outcome = %s, want ALREADY_FINISHED", result.Outcome)
	}
	if f.sched.count() != 1 {
		t.Errorf("second Finish re-scheduled grading, jobs = %d", f.sched.count())
	}
}

func TestStartAfterFinishRedirects(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	f.mustStart(t)
	f.mustSubmit(t, 1, option(11))
	if _, err := f.svc.Finish(context.Background(), testStudentID, testGroupID, testExamID); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	result, err := f.svc.Start(context.Background(), testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Outcome != OutcomeAlreadyFinished {
		t.Errorf("outcome = %s, want ALREADY_FINISHED", result.Outcome)
	}
}

func TestSummaryRedirects(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	ctx := context.Background()

	result, _ := f.svc.Summary(ctx, testStudentID, testGroupID, testExamID)
	if result.Outcome != OutcomeNotStarted {
		t.Errorf("before start outcome = %s, want NOT_STARTED", result.Outcome)
	}

	f.mustStart(t)
	result, _ = f.svc.Summary(ctx, testStudentID, testGroupID, testExamID)
	if result.Outcome != OutcomeTryAgain {
		t.Errorf("in progress outcome = %s, want TRY_AGAIN", result.Outcome)
	}

	f.clock.Advance(31 * time.Minute)
	result, _ = f.svc.Summary(ctx, testStudentID, testGroupID, testExamID)
	if result.Outcome != OutcomeTimeOver {
		t.Errorf("timed out outcome = %s, want TIME_OVER", result.Outcome)
	}
}

func TestRecoverPendingSchedulesUngraded(t *testing.T) {
	f := newFixture(t, models.PolicyNoNegative)
	f.mustStart(t)
	f.mustSubmit(t, 1, option(11))
	if _, err := f.svc.Finish(context.Background(), testStudentID, testGroupID, testExamID); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	// Pretend the scheduled job was lost with the process.
	f.sched.mu.Lock()
	f.sched.jobs = nil
	f.sched.mu.Unlock()

	scheduled, err := f.svc.RecoverPending(context.Background())
	if err != nil {
		t.Fatalf("RecoverPending: %v", err)
	}
	if scheduled != 1 || f.sched.count() != 1 {
		t.Errorf("recovered %d jobs (scheduler saw %d), want 1", scheduled, f.sched.count())
	}
}

// Full lifecycle: start, answer, finish, grade, summary.
func TestAttemptHappyPath(t *testing.T) {
	f := newFixture(t, models.PolicyNegativeThird)
	ctx := context.Background()
	grader := NewGradingService(f.world, f.world, f.clock)

	f.mustStart(t)
	f.mustSubmit(t, 1, option(11)) // correct, weight 1
	f.mustSubmit(t, 2, option(21)) // wrong, weight 2
	// question 3 left blank

	finish, err := f.svc.Finish(ctx, testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := grader.Grade(ctx, finish.Attempt.ID, false); err != nil {
		t.Fatalf("Grade: %v", err)
	}

	summary, err := f.svc.Summary(ctx, testStudentID, testGroupID, testExamID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Outcome != OutcomeOK {
		t.Fatalf("summary outcome = %s, want OK", summary.Outcome)
	}
	if summary.Correct != 1 || summary.Wrong != 1 || summary.Blank != 1 {
		t.Errorf("stats = %d/%d/%d, want 1 correct, 1 wrong, 1 blank",
			summary.Correct, summary.Wrong, summary.Blank)
	}
	if summary.TotalWeight != 7 {
		t.Errorf("total weight = %d, want 7", summary.TotalWeight)
	}

	// 1 - 2/3 = 1/3
	wantScore := 1.0 - 2.0/3.0
	if summary.Attempt.Score == nil || !almostEqual(*summary.Attempt.Score, wantScore) {
		t.Errorf("score = %v, want %v", summary.Attempt.Score, wantScore)
	}
	// Percentage is rounded to two decimals at presentation.
	wantPct := 4.76 // (1/3) / 7 * 100
	if summary.Percentage == nil || !almostEqual(*summary.Percentage, wantPct) {
		t.Errorf("percentage = %v, want %v", summary.Percentage, wantPct)
	}
}
