package services

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/app/repositories"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// fakeClock is a settable clock shared by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeScheduler records scheduled jobs.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs []int64
	err  error
}

func (s *fakeScheduler) Schedule(name string, attemptID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, attemptID)
	return nil
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type fakeAnswer struct {
	id               int64
	questionID       int64
	selectedOptionID *int64
	isCorrect        bool
	awardedScore     *float64
}

// fakeWorld is an in-memory stand-in for the database. It implements
// AttemptStore, ExamReader and EnrollmentChecker; its transaction view
// implements repositories.AttemptTx. A single mutex serializes InTx the way
// the row lock serializes real transactions.
type fakeWorld struct {
	mu          sync.Mutex
	exams       map[int64]*models.Exam
	examGroups  map[int64][]int64 // examID -> class group IDs
	enrollments map[[2]int64]bool // (studentID, classGroupID)
	attempts    map[int64]*models.Attempt
	attemptKey  map[[2]int64]int64 // (studentID, examID) -> attemptID
	answers     map[int64]map[int64]*fakeAnswer
	nextID      int64

	gradedCalls int // SetGraded invocations, for idempotence checks
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		exams:       make(map[int64]*models.Exam),
		examGroups:  make(map[int64][]int64),
		enrollments: make(map[[2]int64]bool),
		attempts:    make(map[int64]*models.Attempt),
		attemptKey:  make(map[[2]int64]int64),
		answers:     make(map[int64]map[int64]*fakeAnswer),
		nextID:      1000,
	}
}

func (w *fakeWorld) addExam(exam *models.Exam, classGroupIDs ...int64) {
	w.exams[exam.ID] = exam
	w.examGroups[exam.ID] = classGroupIDs
}

func (w *fakeWorld) enroll(studentID, classGroupID int64) {
	w.enrollments[[2]int64{studentID, classGroupID}] = true
}

func (w *fakeWorld) id() int64 {
	w.nextID++
	return w.nextID
}

// --- EnrollmentChecker ---

// Exam, group and enrollment fixtures are immutable once a test starts, so
// the readers below skip the store mutex. That also lets the grading pass
// read the exam while it holds the transaction lock.

func (w *fakeWorld) IsEnrolled(_ context.Context, studentID, classGroupID int64) (bool, error) {
	return w.enrollments[[2]int64{studentID, classGroupID}], nil
}

// --- ExamReader ---

func (w *fakeWorld) GetExamForClassGroup(_ context.Context, examID, classGroupID int64) (*models.Exam, error) {
	exam, ok := w.exams[examID]
	if !ok || !exam.IsActive {
		return nil, apperrors.ErrExamNotFound
	}
	for _, groupID := range w.examGroups[examID] {
		if groupID == classGroupID {
			return exam, nil
		}
	}
	return nil, apperrors.ErrExamNotFound
}

func (w *fakeWorld) GetExamByID(_ context.Context, examID int64) (*models.Exam, error) {
	exam, ok := w.exams[examID]
	if !ok {
		return nil, apperrors.ErrExamNotFound
	}
	return exam, nil
}

func (w *fakeWorld) ListQuestions(_ context.Context, examID int64) ([]models.Question, error) {
	exam, ok := w.exams[examID]
	if !ok {
		return nil, apperrors.ErrExamNotFound
	}
	questions := make([]models.Question, len(exam.Questions))
	copy(questions, exam.Questions)
	sort.Slice(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	return questions, nil
}

// --- AttemptStore ---

func (w *fakeWorld) InTx(ctx context.Context, fn func(ctx context.Context, tx repositories.AttemptTx) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn(ctx, &fakeTx{world: w})
}

func (w *fakeWorld) FindAttempt(_ context.Context, studentID, examID int64) (*models.Attempt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.findAttemptLocked(studentID, examID)
}

func (w *fakeWorld) GetAttemptByID(_ context.Context, attemptID int64) (*models.Attempt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	attempt, ok := w.attempts[attemptID]
	if !ok {
		return nil, apperrors.ErrAttemptNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (w *fakeWorld) ListAnswerRecords(_ context.Context, attemptID int64) ([]models.AnswerRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.listAnswerRecordsLocked(attemptID)
}

func (w *fakeWorld) ListUngraded(_ context.Context) ([]models.Attempt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.Attempt
	for _, attempt := range w.attempts {
		if attempt.FinishedAt != nil && attempt.GradedAt == nil {
			out = append(out, *attempt)
		}
	}
	return out, nil
}

func (w *fakeWorld) findAttemptLocked(studentID, examID int64) (*models.Attempt, error) {
	id, ok := w.attemptKey[[2]int64{studentID, examID}]
	if !ok {
		return nil, apperrors.ErrAttemptNotFound
	}
	copied := *w.attempts[id]
	return &copied, nil
}

func (w *fakeWorld) listAnswerRecordsLocked(attemptID int64) ([]models.AnswerRecord, error) {
	attempt, ok := w.attempts[attemptID]
	if !ok {
		return nil, apperrors.ErrAttemptNotFound
	}
	exam := w.exams[attempt.ExamID]

	var records []models.AnswerRecord
	for _, q := range exam.Questions {
		ans, ok := w.answers[attemptID][q.ID]
		if !ok {
			continue
		}
		rec := models.AnswerRecord{
			AnswerID:         ans.id,
			QuestionID:       q.ID,
			QuestionText:     q.Text,
			QuestionScore:    q.Score,
			Position:         q.Position,
			SelectedOptionID: ans.selectedOptionID,
			IsCorrect:        ans.isCorrect,
			AwardedScore:     ans.awardedScore,
		}
		if ans.selectedOptionID != nil {
			for _, o := range q.Options {
				if o.ID == *ans.selectedOptionID {
					rec.OptionIsCorrect = o.IsCorrect
				}
			}
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Position < records[j].Position })
	return records, nil
}

// fakeTx runs against the world under its mutex.
type fakeTx struct {
	world *fakeWorld
}

func (t *fakeTx) GetOrCreateAttempt(_ context.Context, studentID, examID int64) (*models.Attempt, error) {
	w := t.world
	key := [2]int64{studentID, examID}
	if id, ok := w.attemptKey[key]; ok {
		copied := *w.attempts[id]
		return &copied, nil
	}
	attempt := &models.Attempt{ID: w.id(), StudentID: studentID, ExamID: examID}
	w.attempts[attempt.ID] = attempt
	w.attemptKey[key] = attempt.ID
	w.answers[attempt.ID] = make(map[int64]*fakeAnswer)
	copied := *attempt
	return &copied, nil
}

func (t *fakeTx) GetAttemptForUpdate(_ context.Context, studentID, examID int64) (*models.Attempt, error) {
	return t.world.findAttemptLocked(studentID, examID)
}

func (t *fakeTx) GetAttemptByIDForUpdate(_ context.Context, attemptID int64) (*models.Attempt, error) {
	attempt, ok := t.world.attempts[attemptID]
	if !ok {
		return nil, apperrors.ErrAttemptNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (t *fakeTx) SetStarted(_ context.Context, attemptID int64, at time.Time) error {
	attempt, ok := t.world.attempts[attemptID]
	if !ok {
		return apperrors.ErrAttemptNotFound
	}
	attempt.StartedAt = &at
	return nil
}

func (t *fakeTx) UpsertAnswer(_ context.Context, attemptID, examID, questionID int64, selectedOptionID *int64) error {
	w := t.world
	exam, ok := w.exams[examID]
	if !ok {
		return apperrors.ErrExamNotFound
	}
	var question *models.Question
	for i := range exam.Questions {
		if exam.Questions[i].ID == questionID {
			question = &exam.Questions[i]
		}
	}
	if question == nil {
		return apperrors.ErrQuestionNotFound
	}
	if selectedOptionID != nil {
		found := false
		for _, o := range question.Options {
			if o.ID == *selectedOptionID {
				found = true
			}
		}
		if !found {
			return apperrors.ErrOptionMismatch
		}
	}

	if existing, ok := w.answers[attemptID][questionID]; ok {
		existing.selectedOptionID = selectedOptionID
		return nil
	}
	w.answers[attemptID][questionID] = &fakeAnswer{
		id:               w.id(),
		questionID:       questionID,
		selectedOptionID: selectedOptionID,
	}
	return nil
}

func (t *fakeTx) HasAnswers(_ context.Context, attemptID int64) (bool, error) {
	return len(t.world.answers[attemptID]) > 0, nil
}

func (t *fakeTx) SetFinished(_ context.Context, attemptID int64, at time.Time) error {
	attempt, ok := t.world.attempts[attemptID]
	if !ok {
		return apperrors.ErrAttemptNotFound
	}
	attempt.FinishedAt = &at
	return nil
}

func (t *fakeTx) ListAnswerRecords(_ context.Context, attemptID int64) ([]models.AnswerRecord, error) {
	return t.world.listAnswerRecordsLocked(attemptID)
}

func (t *fakeTx) SetAnswerResult(_ context.Context, answerID int64, isCorrect bool, awardedScore float64) error {
	for _, byQuestion := range t.world.answers {
		for _, ans := range byQuestion {
			if ans.id == answerID {
				ans.isCorrect = isCorrect
				score := awardedScore
				ans.awardedScore = &score
				return nil
			}
		}
	}
	return apperrors.ErrResourceNotFound
}

func (t *fakeTx) SetGraded(_ context.Context, attemptID int64, score float64, at time.Time) error {
	attempt, ok := t.world.attempts[attemptID]
	if !ok {
		return apperrors.ErrAttemptNotFound
	}
	attempt.Score = &score
	attempt.GradedAt = &at
	t.world.gradedCalls++
	return nil
}
