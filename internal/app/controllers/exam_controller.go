package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/azmoonhub/azmoon/internal/app/models/dto"
	"github.com/azmoonhub/azmoon/internal/app/services"
	"github.com/azmoonhub/azmoon/internal/middleware"
	"github.com/azmoonhub/azmoon/internal/pkg/helpers"
)

// ExamController handles exam listing and creation
type ExamController struct {
	examService *services.ExamService
	logger      zerolog.Logger
}

// NewExamController creates a new ExamController
func NewExamController(examService *services.ExamService, logger zerolog.Logger) *ExamController {
	return &ExamController{
		examService: examService,
		logger:      logger,
	}
}

// ListExams lists the active exams offered to a class group
// @Summary List exams for a class group
// @Description Returns the active exams offered to a class group the student is enrolled in
// @Tags exams
// @Produce json
// @Security BearerAuth
// @Param classGroupId path int true "Class group ID"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(20)
// @Success 200 {object} dto.StructuredResponse{data=dto.ExamListResponse} "Exam list"
// @Failure 403 {object} dto.ErrorResponse "Not enrolled in this class group"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /class-groups/{classGroupId}/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	studentID, ok := middleware.CurrentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, dto.NewErrorResponse(
			dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")))
		return
	}
	classGroupID, ok := parseIDParam(ctx, "classGroupId")
	if !ok {
		return
	}

	page, pageSize := parsePagination(ctx)
	exams, total, err := c.examService.ListForStudent(ctx.Request.Context(), studentID, classGroupID, page, pageSize)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	response := dto.ExamListResponse{
		Exams:    make([]dto.ExamResponse, 0, len(exams)),
		PageInfo: dto.NewPageInfo(page, pageSize, total),
	}
	for i := range exams {
		response.Exams = append(response.Exams, dto.NewExamResponse(&exams[i]))
	}

	ctx.JSON(http.StatusOK, dto.NewStructuredResponse(response, ""))
}

// CreateExam creates an exam with questions and options
// @Summary Create an exam
// @Description Creates an exam with its questions and options for one or more class groups of the teacher's course
// @Tags exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateExamRequest true "Exam definition"
// @Success 201 {object} dto.StructuredResponse{data=dto.CreateExamResponse} "Exam created"
// @Failure 400 {object} dto.ErrorResponse "Invalid payload or option constraints violated"
// @Failure 403 {object} dto.ErrorResponse "Not the course's teacher"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	teacherID, ok := middleware.CurrentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, dto.NewErrorResponse(
			dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")))
		return
	}

	var req dto.CreateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid request payload").
			WithDetails(err.Error())
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return
	}

	id, err := c.examService.Create(ctx.Request.Context(), teacherID, &req)
	if err != nil {
		c.logger.Warn().Err(err).Int64("teacherID", teacherID).Msg("Exam creation rejected")
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewStructuredResponse(dto.CreateExamResponse{ID: id}, "Exam created"))
}

// parseIDParam reads a positive int64 path parameter or writes a 400
func parseIDParam(ctx *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid path parameter").
			WithField(name)
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return 0, false
	}
	return id, true
}

func parsePagination(ctx *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(ctx.DefaultQuery("page", strconv.Itoa(helpers.DefaultPage)))
	pageSize, _ = strconv.Atoi(ctx.DefaultQuery("pageSize", strconv.Itoa(helpers.DefaultPageSize)))
	if page < 1 {
		page = helpers.DefaultPage
	}
	if pageSize < 1 || pageSize > helpers.MaxPageSize {
		pageSize = helpers.DefaultPageSize
	}
	return page, pageSize
}
