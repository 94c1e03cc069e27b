package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registry/internal/models"
	"github.com/noah-isme/course-registry/internal/repository"
	"github.com/noah-isme/course-registry/internal/service"
	"github.com/noah-isme/course-registry/pkg/cache"
	"github.com/noah-isme/course-registry/pkg/config"
	"github.com/noah-isme/course-registry/pkg/database"
	"github.com/noah-isme/course-registry/pkg/jobs"
	"github.com/noah-isme/course-registry/pkg/logger"
)

func main() {
	if err := execute(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func execute(args []string) error {
	if len(args) < 2 || !isCommand(args[1]) {
		(&commandLine{out: os.Stdout}).printUsage()
		return errHelp
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Error("failed to connect to database", zap.Error(err))
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "registry")
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewClassSessionRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)

	courses := service.NewCourseService(courseRepo, userRepo, cacheRepo, validate, logr, metrics, cfg.Cache.CourseTTL)
	accounts := service.NewAccountService(userRepo, courses, validate, logr, metrics, service.AccountConfig{BcryptCost: cfg.Accounts.BcryptCost})
	sessions := service.NewClassSessionService(sessionRepo, userRepo, validate, logr, metrics, cfg.Reminders.Window)
	registrations := service.NewRegistrationService(registrationRepo, userRepo, courseRepo, validate, logr, metrics)
	dispatcher := service.NewReminderDispatcher(sessions, logReminder(logr), jobs.QueueConfig{
		Workers:    cfg.Reminders.Workers,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}, logr)

	cli := commandLine{
		accounts:      accounts,
		sessions:      sessions,
		dispatcher:    dispatcher,
		courses:       courses,
		registrations: registrations,
		ensureSchema: func(ctx context.Context) error {
			return database.EnsureSchema(ctx, db)
		},
		logger: logr,
		out:    os.Stdout,
		now:    time.Now,
	}
	runErr := cli.run(args)

	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			logr.Warn("failed to push metrics", zap.Error(err))
		}
	}
	return runErr
}

// logReminder delivers reminders as structured log entries.
func logReminder(logr *zap.Logger) service.ReminderNotifier {
	return func(ctx context.Context, session models.ClassSession) error {
		logr.Info("class session reminder",
			zap.String("session_id", session.ID),
			zap.String("title", session.Title),
			zap.Time("start_time", session.StartTime))
		return nil
	}
}
