package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/azmoonhub/azmoon/internal/app/models/dto"
	"github.com/azmoonhub/azmoon/internal/app/services"
	"github.com/azmoonhub/azmoon/internal/middleware"
)

// AttemptController handles the attempt lifecycle endpoints
type AttemptController struct {
	attemptService *services.AttemptService
	logger         zerolog.Logger
}

// NewAttemptController creates a new AttemptController
func NewAttemptController(attemptService *services.AttemptService, logger zerolog.Logger) *AttemptController {
	return &AttemptController{
		attemptService: attemptService,
		logger:         logger,
	}
}

// StartAttempt opens or re-enters an attempt
// @Summary Start an attempt
// @Description Opens the student's single attempt at the exam, or re-enters it when already in progress
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param classGroupId path int true "Class group ID"
// @Param examId path int true "Exam ID"
// @Success 200 {object} dto.StructuredResponse{data=dto.AttemptResponse} "Attempt in progress"
// @Failure 403 {object} dto.OutcomeResponse "NOT_ENROLLED"
// @Failure 404 {object} dto.OutcomeResponse "EXAM_NOT_FOUND"
// @Failure 409 {object} dto.OutcomeResponse "WINDOW_NOT_OPEN, WINDOW_CLOSED, ALREADY_FINISHED or TRY_AGAIN"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /class-groups/{classGroupId}/exams/{examId}/start [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	studentID, classGroupID, examID, ok := c.attemptParams(ctx)
	if !ok {
		return
	}

	result, err := c.attemptService.Start(ctx.Request.Context(), studentID, classGroupID, examID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	if result.Outcome != services.OutcomeOK {
		c.respondOutcome(ctx, result.Outcome)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewStructuredResponse(
		dto.NewAttemptResponse(result.Attempt, result.Deadline), "Attempt in progress"))
}

// TakeAttempt returns the questions and current selections
// @Summary Take view of an attempt
// @Description Returns the exam questions and the student's current selections; never mutates the attempt
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param classGroupId path int true "Class group ID"
// @Param examId path int true "Exam ID"
// @Success 200 {object} dto.StructuredResponse{data=dto.TakeResponse} "In-progress view"
// @Failure 403 {object} dto.OutcomeResponse "NOT_ENROLLED"
// @Failure 404 {object} dto.OutcomeResponse "EXAM_NOT_FOUND"
// @Failure 409 {object} dto.OutcomeResponse "NOT_STARTED, ALREADY_FINISHED or TIME_OVER"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /class-groups/{classGroupId}/exams/{examId}/attempt [get]
func (c *AttemptController) TakeAttempt(ctx *gin.Context) {
	studentID, classGroupID, examID, ok := c.attemptParams(ctx)
	if !ok {
		return
	}

	result, err := c.attemptService.Take(ctx.Request.Context(), studentID, classGroupID, examID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	if result.Outcome != services.OutcomeOK {
		c.respondOutcome(ctx, result.Outcome)
		return
	}

	response := dto.TakeResponse{
		AttemptID: result.Attempt.ID,
		Exam:      dto.NewExamResponse(result.Exam),
		Deadline:  result.Deadline,
		Questions: make([]dto.TakeQuestionResponse, 0, len(result.Questions)),
	}
	for i := range result.Questions {
		q := &result.Questions[i]
		question := dto.TakeQuestionResponse{
			ID:       q.ID,
			Text:     q.Text,
			Score:    q.Score,
			Position: q.Position,
			Options:  make([]dto.TakeOptionResponse, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			question.Options = append(question.Options, dto.TakeOptionResponse{ID: o.ID, Text: o.Text})
		}
		if selected, found := result.Selections[q.ID]; found {
			selectedID := selected
			question.SelectedOptionID = &selectedID
		}
		response.Questions = append(response.Questions, question)
	}

	ctx.JSON(http.StatusOK, dto.NewStructuredResponse(response, ""))
}

// SubmitAnswer records one answer
// @Summary Submit an answer
// @Description Records or replaces the student's choice for one question; a null option clears it
// @Tags attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param classGroupId path int true "Class group ID"
// @Param examId path int true "Exam ID"
// @Param request body dto.SubmitAnswerRequest true "Answer"
// @Success 200 {object} dto.StructuredResponse "Answer recorded"
// @Failure 400 {object} dto.ErrorResponse "Option does not belong to the question"
// @Failure 403 {object} dto.OutcomeResponse "NOT_ENROLLED"
// @Failure 404 {object} dto.OutcomeResponse "EXAM_NOT_FOUND"
// @Failure 409 {object} dto.OutcomeResponse "NOT_STARTED, ALREADY_FINISHED or TIME_OVER"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /class-groups/{classGroupId}/exams/{examId}/answers [post]
func (c *AttemptController) SubmitAnswer(ctx *gin.Context) {
	studentID, classGroupID, examID, ok := c.attemptParams(ctx)
	if !ok {
		return
	}

	var req dto.SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid request payload").
			WithDetails(err.Error())
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	result, err := c.attemptService.Submit(ctx.Request.Context(), studentID, classGroupID, examID, req.QuestionID, req.SelectedOptionID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	if result.Outcome != services.OutcomeOK {
		c.respondOutcome(ctx, result.Outcome)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewStructuredResponse(nil, "Answer recorded"))
}

// FinishAttempt closes the attempt and schedules grading
// @Summary Finish an attempt
// @Description Marks the attempt finished and schedules asynchronous grading; finishing twice is a no-op
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param classGroupId path int true "Class group ID"
// @Param examId path int true "Exam ID"
// @Success 200 {object} dto.StructuredResponse{data=dto.AttemptResponse} "Attempt finished"
// @Failure 403 {object} dto.OutcomeResponse "NOT_ENROLLED"
// @Failure 404 {object} dto.OutcomeResponse "EXAM_NOT_FOUND"
// @Failure 409 {object} dto.OutcomeResponse "NOT_STARTED, ALREADY_FINISHED or EMPTY_SUBMISSION"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /class-groups/{classGroupId}/exams/{examId}/finish [post]
func (c *AttemptController) FinishAttempt(ctx *gin.Context) {
	studentID, classGroupID, examID, ok := c.attemptParams(ctx)
	if !ok {
		return
	}

	result, err := c.attemptService.Finish(ctx.Request.Context(), studentID, classGroupID, examID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	if result.Outcome != services.OutcomeOK {
		c.respondOutcome(ctx, result.Outcome)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewStructuredResponse(
		dto.NewAttemptResponse(result.Attempt, nil), "Attempt finished"))
}

// AttemptSummary returns the result view of a finished attempt
// @Summary Attempt summary
// @Description Returns per-question rows, correct/wrong/blank stats, score and percentage of a finished attempt
// @Tags attempts
// @Produce json
// @Security BearerAuth
// @Param classGroupId path int true "Class group ID"
// @Param examId path int true "Exam ID"
// @Success 200 {object} dto.StructuredResponse{data=dto.SummaryResponse} "Summary"
// @Failure 403 {object} dto.OutcomeResponse "NOT_ENROLLED"
// @Failure 404 {object} dto.OutcomeResponse "EXAM_NOT_FOUND"
// @Failure 409 {object} dto.OutcomeResponse "NOT_STARTED, TIME_OVER or TRY_AGAIN"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /class-groups/{classGroupId}/exams/{examId}/summary [get]
func (c *AttemptController) AttemptSummary(ctx *gin.Context) {
	studentID, classGroupID, examID, ok := c.attemptParams(ctx)
	if !ok {
		return
	}

	result, err := c.attemptService.Summary(ctx.Request.Context(), studentID, classGroupID, examID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	if result.Outcome != services.OutcomeOK {
		c.respondOutcome(ctx, result.Outcome)
		return
	}

	response := dto.SummaryResponse{
		AttemptID:   result.Attempt.ID,
		ExamID:      result.Attempt.ExamID,
		FinishedAt:  result.Attempt.FinishedAt,
		GradedAt:    result.Attempt.GradedAt,
		Score:       result.Attempt.Score,
		Percentage:  result.Percentage,
		TotalWeight: result.TotalWeight,
		Correct:     result.Correct,
		Wrong:       result.Wrong,
		Blank:       result.Blank,
		Rows:        make([]dto.SummaryRowResponse, 0, len(result.Rows)),
	}
	for _, row := range result.Rows {
		response.Rows = append(response.Rows, dto.SummaryRowResponse{
			QuestionID:       row.QuestionID,
			QuestionText:     row.QuestionText,
			QuestionScore:    row.QuestionScore,
			Position:         row.Position,
			SelectedOptionID: row.SelectedOptionID,
			IsCorrect:        row.IsCorrect,
			AwardedScore:     row.AwardedScore,
		})
	}

	ctx.JSON(http.StatusOK, dto.NewStructuredResponse(response, ""))
}

func (c *AttemptController) attemptParams(ctx *gin.Context) (studentID, classGroupID, examID int64, ok bool) {
	studentID, ok = middleware.CurrentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, dto.NewErrorResponse(
			dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")))
		return 0, 0, 0, false
	}
	classGroupID, ok = parseIDParam(ctx, "classGroupId")
	if !ok {
		return 0, 0, 0, false
	}
	examID, ok = parseIDParam(ctx, "examId")
	if !ok {
		return 0, 0, 0, false
	}
	return studentID, classGroupID, examID, true
}

// respondOutcome maps a business outcome to its HTTP envelope. Redirect
// hints name the lifecycle step the client should move to.
func (c *AttemptController) respondOutcome(ctx *gin.Context, outcome services.Outcome) {
	status := http.StatusConflict
	redirect := ""
	switch outcome {
	case services.OutcomeNotEnrolled:
		status = http.StatusForbidden
	case services.OutcomeExamNotFound:
		status = http.StatusNotFound
	case services.OutcomeNotStarted:
		redirect = "start"
	case services.OutcomeAlreadyFinished:
		redirect = "summary"
	case services.OutcomeTimeOver:
		redirect = "finish"
	case services.OutcomeEmptySubmission:
		redirect = "attempt"
	case services.OutcomeWindowNotOpen, services.OutcomeWindowClosed:
		redirect = "exams"
	case services.OutcomeTryAgain:
		redirect = "attempt"
	}
	ctx.JSON(status, dto.NewOutcomeResponse(string(outcome), redirect))
}
