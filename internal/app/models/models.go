package models

// RoleType defines the user role type
type RoleType string

const (
	RoleStudent RoleType = "STUDENT"
	RoleTeacher RoleType = "TEACHER"
)

// GradingPolicy selects how answers contribute to the attempt score.
// Closed set; an unrecognized value is a configuration error, not a
// grading-time decision.
type GradingPolicy string

const (
	PolicyNoNegative    GradingPolicy = "NO_NEGATIVE"
	PolicyNegativeThird GradingPolicy = "NEGATIVE_3"
	PolicyNegativeFifth GradingPolicy = "NEGATIVE_5"
)
