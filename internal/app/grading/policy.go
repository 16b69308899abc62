// Package grading implements the scoring policies applied to exam answers.
//
// Policies are a closed set selected by models.GradingPolicy. Each policy is
// a pure function over (blank?, correct?, question weight); no rounding
// happens here, fractional penalties are carried exactly until presentation.
package grading

import (
	"fmt"

	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/pkg/apperrors"
)

// Policy grades a single answer against its question weight.
type Policy interface {
	// Grade returns the score contribution of one answer. A blank answer
	// yields 0 under every policy, checked before the correctness branch.
	Grade(answer *models.Answer, weight int) float64
	// Name returns the selector this policy was resolved from.
	Name() models.GradingPolicy
}

type noNegative struct{}

func (noNegative) Name() models.GradingPolicy { return models.PolicyNoNegative }

func (noNegative) Grade(answer *models.Answer, weight int) float64 {
	if answer.IsBlank() {
		return 0
	}
	if answer.IsCorrect {
		return float64(weight)
	}
	return 0
}

// negativeFraction penalizes wrong answers by weight/divisor.
type negativeFraction struct {
	name    models.GradingPolicy
	divisor float64
}

func (p negativeFraction) Name() models.GradingPolicy { return p.name }

func (p negativeFraction) Grade(answer *models.Answer, weight int) float64 {
	if answer.IsBlank() {
		return 0
	}
	if answer.IsCorrect {
		return float64(weight)
	}
	return -float64(weight) / p.divisor
}

// Resolve maps an exam's policy selector to its Policy. An unrecognized
// selector is a configuration error raised here, never deferred into the
// grading pass.
func Resolve(selector models.GradingPolicy) (Policy, error) {
	switch selector {
	case models.PolicyNoNegative:
		return noNegative{}, nil
	case models.PolicyNegativeThird:
		return negativeFraction{name: models.PolicyNegativeThird, divisor: 3}, nil
	case models.PolicyNegativeFifth:
		return negativeFraction{name: models.PolicyNegativeFifth, divisor: 5}, nil
	default:
		return nil, apperrors.NewCustomError(apperrors.ErrUnknownGradingPolicy,
			fmt.Sprintf("unknown grading policy %q", selector))
	}
}

// ResolveForExam is a convenience wrapper used by the orchestrator.
func ResolveForExam(exam *models.Exam) (Policy, error) {
	return Resolve(exam.GradingPolicy)
}
