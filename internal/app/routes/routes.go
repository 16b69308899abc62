package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/azmoonhub/azmoon/internal/app/controllers"
	"github.com/azmoonhub/azmoon/internal/app/models"
	"github.com/azmoonhub/azmoon/internal/middleware"
)

// SetupRouter configures all application routes
func SetupRouter(
	router *gin.Engine,
	authController *controllers.AuthController,
	examController *controllers.ExamController,
	attemptController *controllers.AttemptController,
	authMiddleware *middleware.AuthMiddleware,
) {
	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.POST("/refresh", authController.RefreshToken)
	}

	authenticated := v1.Group("")
	authenticated.Use(authMiddleware.JWTAuth())
	{
		// Student exam lifecycle, scoped to a class group
		classGroups := authenticated.Group("/class-groups/:classGroupId")
		classGroups.Use(authMiddleware.RoleRequired(string(models.RoleStudent)))
		{
			classGroups.GET("/exams", examController.ListExams)

			exam := classGroups.Group("/exams/:examId")
			{
				exam.POST("/start", attemptController.StartAttempt)
				exam.GET("/attempt", attemptController.TakeAttempt)
				exam.POST("/answers", attemptController.SubmitAnswer)
				exam.POST("/finish", attemptController.FinishAttempt)
				exam.GET("/summary", attemptController.AttemptSummary)
			}
		}

		// Teacher exam administration
		exams := authenticated.Group("/exams")
		exams.Use(authMiddleware.RoleRequired(string(models.RoleTeacher)))
		{
			exams.POST("", examController.CreateExam)
		}
	}
}
