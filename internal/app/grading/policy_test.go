package grading

import (
	"errors"
	"math"
	"testing"

	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
)

func answer(selected *int64, correct bool) *models.Answer {
	return &models.Answer{SelectedOptionID: selected, IsCorrect: correct}
}

func optionID(id int64) *int64 { return &id }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestResolveKnownPolicies(t *testing.T) {
	for _, selector := range []models.GradingPolicy{
		models.PolicyNoNegative,
		models.PolicyNegativeThird,
		models.PolicyNegativeFifth,
	} {
		policy, err := Resolve(selector)
		if err != nil {
			t.Fatalf("Resolve(%s) returned error: %v", selector, err)
		}
		if policy.Name() != selector {
			t.Errorf("Resolve(%s).Name() = %s", selector, policy.Name())
		}
	}
}

func TestResolveUnknownPolicy(t *testing.T) {
	_, err := Resolve(models.GradingPolicy("HALF_CREDIT"))
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
	if !errors.Is(err, apperrors.ErrUnknownGradingPolicy) {
		t.Errorf("expected ErrUnknownGradingPolicy, got %v", err)
	}
}

func TestGradeTable(t *testing.T) {
	tests := []struct {
		name   string
		policy models.GradingPolicy
		answer *models.Answer
		weight int
		want   float64
	}{
		{"no negative correct", models.PolicyNoNegative, answer(optionID(1), true), 1, 1},
		{"no negative wrong", models.PolicyNoNegative, answer(optionID(1), false), 1, 0},
		{"no negative blank", models.PolicyNoNegative, answer(nil, false), 1, 0},
		{"negative third correct", models.PolicyNegativeThird, answer(optionID(1), true), 3, 3},
		{"negative third wrong", models.PolicyNegativeThird, answer(optionID(1), false), 3, -1},
		{"negative third blank", models.PolicyNegativeThird, answer(nil, false), 3, 0},
		{"negative fifth correct", models.PolicyNegativeFifth, answer(optionID(1), true), 4, 4},
		{"negative fifth wrong", models.PolicyNegativeFifth, answer(optionID(1), false), 4, -0.8},
		{"negative fifth blank", models.PolicyNegativeFifth, answer(nil, false), 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := Resolve(tt.policy)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			got := policy.Grade(tt.answer, tt.weight)
			if !almostEqual(got, tt.want) {
				t.Errorf("Grade() = %v, want %v", got, tt.want)
			}
		})
	}
}

// A blank answer scores zero even if a stale correctness flag is set,
// because the blank check runs before the correctness branch.
func TestGradeBlankBeatsCorrectnessFlag(t *testing.T) {
	for _, selector := range []models.GradingPolicy{
		models.PolicyNoNegative,
		models.PolicyNegativeThird,
		models.PolicyNegativeFifth,
	} {
		policy, _ := Resolve(selector)
		if got := policy.Grade(answer(nil, true), 5); got != 0 {
			t.Errorf("%s: blank answer scored %v, want 0", selector, got)
		}
	}
}
