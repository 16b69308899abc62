package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	appControllers "github.com/azmoonhub/azmoon/internal/app/controllers"
	appMigrations "github.com/azmoonhub/azmoon/internal/app/migrations"
	appRepos "github.com/azmoonhub/azmoon/internal/app/repositories"
	appRoutes "github.com/azmoonhub/azmoon/internal/app/routes"
	appServices "github.com/azmoonhub/azmoon/internal/app/services"
	"github.com/azmoonhub/azmoon/internal/config"
	"github.com/azmoonhub/azmoon/internal/db"
	appMiddleware "github.com/azmoonhub/azmoon/internal/middleware"
	pkgAuth "github.com/azmoonhub/azmoon/internal/pkg/auth"
	"github.com/azmoonhub/azmoon/internal/pkg/clock"
	"github.com/azmoonhub/azmoon/internal/pkg/helpers"
	"github.com/azmoonhub/azmoon/internal/pkg/jobqueue"
	"github.com/azmoonhub/azmoon/internal/pkg/logger"
	"github.com/azmoonhub/azmoon/internal/seed"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	AuthService       *appServices.AuthService
	ExamService       *appServices.ExamService
	AttemptService    *appServices.AttemptService
	GradingService    *appServices.GradingService
	GradingQueue      *jobqueue.Queue
	AuthController    *appControllers.AuthController
	ExamController    *appControllers.ExamController
	AttemptController *appControllers.AttemptController
	AuthMiddleware    *appMiddleware.AuthMiddleware
	Repos             *appRepos.Repositories
	JWTService        *pkgAuth.JWTService
	Logger            zerolog.Logger
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger() (*config.Config, zerolog.Logger, error) {
	configPath := filepath.Join("configs", "config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.LogLevel(strings.ToLower(cfg.Logging.Level))
	prettyLog := strings.ToLower(cfg.Logging.Format) == "text"

	logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: prettyLog,
	})

	lgr := log.Logger
	lgr.Info().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupDatabase establishes the database connection and runs migrations.
func SetupDatabase(cfg *config.Config, lgr zerolog.Logger) (*pgxpool.Pool, error) {
	lgr.Info().Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, err
	}
	dbPool := database.Pool

	lgr.Info().Msg("Running database migrations...")
	migrator := appMigrations.NewMigrator(dbPool)

	migrationsDir := "migrations"
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		lgr.Error().Str("path", migrationsDir).Msg("Migrations directory not found")
		return nil, fmt.Errorf("migrations directory not found at %s: %w", migrationsDir, err)
	}
	if err := migrator.MigrateFromDirectory(migrationsDir); err != nil {
		lgr.Error().Err(err).Msg("Database migration error")
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}
	lgr.Info().Msg("Database migrations successfully applied.")

	if err := seed.CreateDefaultData(context.Background(), dbPool, lgr); err != nil {
		lgr.Error().Err(err).Msg("Failed to create default data, proceeding anyway...")
	}

	return dbPool, nil
}

// BuildDependencies initializes repositories, services, the grading queue
// and controllers.
func BuildDependencies(cfg *config.Config, dbPool *pgxpool.Pool, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: lgr}

	deps.Repos = appRepos.NewRepositories(dbPool)

	if removed, err := deps.Repos.TokenRepository.DeleteExpiredTokens(context.Background()); err != nil {
		lgr.Warn().Err(err).Msg("Failed to clean up expired refresh tokens")
	} else if removed > 0 {
		lgr.Info().Int64("count", removed).Msg("Removed expired refresh tokens")
	}

	deps.JWTService = pkgAuth.NewJWTService(pkgAuth.JWTConfig{
		SecretKey:       cfg.JWT.Secret,
		AccessTokenExp:  helpers.ParseDuration(cfg.JWT.AccessTokenExpiration, 1*time.Hour),
		RefreshTokenExp: helpers.ParseDuration(cfg.JWT.RefreshTokenExpiration, 720*time.Hour),
		TokenIssuer:     cfg.JWT.Issuer,
	})

	systemClock := clock.System()

	deps.AuthService = appServices.NewAuthService(
		deps.Repos.UserRepository,
		deps.Repos.TokenRepository,
		deps.JWTService,
	)
	deps.ExamService = appServices.NewExamService(
		deps.Repos.ExamRepository,
		deps.Repos.CourseRepository,
		deps.Repos.CourseRepository,
	)
	deps.GradingService = appServices.NewGradingService(
		deps.Repos.AttemptRepository,
		deps.Repos.ExamRepository,
		systemClock,
	)

	deps.GradingQueue = jobqueue.New(deps.GradingService.HandleJob, jobqueue.Options{
		Workers:    cfg.Grading.Workers,
		MaxRetries: cfg.Grading.MaxRetries,
		Backoff:    helpers.ParseDuration(cfg.Grading.Backoff, 5*time.Second),
		QueueSize:  cfg.Grading.QueueSize,
	})

	deps.AttemptService = appServices.NewAttemptService(
		deps.Repos.AttemptRepository,
		deps.Repos.ExamRepository,
		deps.Repos.CourseRepository,
		deps.GradingQueue,
		systemClock,
	)

	deps.AuthMiddleware = appMiddleware.NewAuthMiddleware(deps.JWTService)

	deps.AuthController = appControllers.NewAuthController(deps.AuthService, deps.Logger)
	deps.ExamController = appControllers.NewExamController(deps.ExamService, deps.Logger)
	deps.AttemptController = appControllers.NewAttemptController(deps.AttemptService, deps.Logger)

	return deps, nil
}

// SetupRouter configures the Gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies, lgr zerolog.Logger) *gin.Engine {
	if strings.ToLower(cfg.Server.Mode) == "production" {
		gin.SetMode(gin.ReleaseMode)
		lgr.Info().Msg("Setting Gin mode to release")
	} else {
		gin.SetMode(gin.DebugMode)
		lgr.Info().Msg("Setting Gin mode to debug")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(appMiddleware.RequestLogger())

	appRoutes.SetupSwagger(router)
	appRoutes.SetupRouter(router,
		deps.AuthController,
		deps.ExamController,
		deps.AttemptController,
		deps.AuthMiddleware,
	)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "status": "success"})
	})

	return router
}
