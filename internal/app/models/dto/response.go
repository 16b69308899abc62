package dto

import "time"

// StructuredResponse provides the standard success envelope
type StructuredResponse struct {
	Success   bool        `json:"success" example:"true"`
	Message   string      `json:"message,omitempty" example:"Operation completed successfully"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp" example:"2026-08-31T12:01:05.123Z"`
}

// NewStructuredResponse creates a standard structured API response
func NewStructuredResponse(data interface{}, message string) StructuredResponse {
	return StructuredResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// PageInfo carries pagination metadata for list responses
type PageInfo struct {
	Page       int `json:"page" example:"1"`
	PageSize   int `json:"pageSize" example:"20"`
	TotalItems int `json:"totalItems" example:"42"`
	TotalPages int `json:"totalPages" example:"3"`
}

// NewPageInfo calculates pagination metadata
func NewPageInfo(page, pageSize, totalItems int) PageInfo {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalItems + pageSize - 1) / pageSize
	}
	return PageInfo{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

// OutcomeResponse reports a business outcome that blocks the requested
// operation, with a hint at where the client should go instead.
type OutcomeResponse struct {
	Success   bool      `json:"success" example:"false"`
	Outcome   string    `json:"outcome" example:"ALREADY_FINISHED"`
	Redirect  string    `json:"redirect,omitempty" example:"summary"`
	Timestamp time.Time `json:"timestamp" example:"2026-08-31T12:01:05.123Z"`
}

// NewOutcomeResponse creates an outcome envelope
func NewOutcomeResponse(outcome, redirect string) OutcomeResponse {
	return OutcomeResponse{
		Success:   false,
		Outcome:   outcome,
		Redirect:  redirect,
		Timestamp: time.Now(),
	}
}
