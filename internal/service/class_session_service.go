package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registry/internal/models"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

type classSessionRepository interface {
	List(ctx context.Context, filter models.ClassSessionFilter) ([]models.ClassSession, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	Create(ctx context.Context, session *models.ClassSession) error
	Update(ctx context.Context, session *models.ClassSession) error
	Delete(ctx context.Context, id string) error
	AddStudents(ctx context.Context, sessionID string, userIDs []string) (int, error)
	RemoveStudent(ctx context.Context, sessionID, userID string) error
	ListStudents(ctx context.Context, sessionID string) ([]models.User, error)
	ListDueReminders(ctx context.Context, from, until time.Time) ([]models.ClassSession, error)
	MarkReminderSent(ctx context.Context, id string) (bool, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateClassSessionRequest describes a new class session.
type CreateClassSessionRequest struct {
	Title     string    `json:"title" validate:"required,max=200"`
	StartTime time.Time `json:"start_time" validate:"required"`
}

// UpdateClassSessionRequest holds optional changes to a session.
type UpdateClassSessionRequest struct {
	Title     *string    `json:"title" validate:"omitempty,min=1,max=200"`
	StartTime *time.Time `json:"start_time"`
}

// AddStudentsRequest lists users to place on a roster.
type AddStudentsRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,required"`
}

// ClassSessionService manages sessions, their rosters and the reminder flag.
type ClassSessionService struct {
	repo           classSessionRepository
	users          userReader
	validator      *validator.Validate
	logger         *zap.Logger
	metrics        *MetricsService
	reminderWindow time.Duration
}

// NewClassSessionService constructs ClassSessionService.
func NewClassSessionService(repo classSessionRepository, users userReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, reminderWindow time.Duration) *ClassSessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if reminderWindow <= 0 {
		reminderWindow = time.Hour
	}
	return &ClassSessionService{repo: repo, users: users, validator: validate, logger: logger, metrics: metrics, reminderWindow: reminderWindow}
}

// Create schedules a new session.
func (s *ClassSessionService) Create(ctx context.Context, req CreateClassSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class session payload")
	}
	session := &models.ClassSession{Title: strings.TrimSpace(req.Title), StartTime: req.StartTime.UTC()}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, repoError(err, "class session not found", "failed to create class session")
	}
	return session, nil
}

// Get returns a session by ID.
func (s *ClassSessionService) Get(ctx context.Context, id string) (*models.ClassSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "class session not found", "failed to load class session")
	}
	return session, nil
}

// List returns sessions with pagination metadata.
func (s *ClassSessionService) List(ctx context.Context, filter models.ClassSessionFilter) ([]models.ClassSession, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class sessions")
	}
	return sessions, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Update changes title and/or start time.
func (s *ClassSessionService) Update(ctx context.Context, id string, req UpdateClassSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class session payload")
	}
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "class session not found", "failed to load class session")
	}
	if req.Title != nil {
		session.Title = strings.TrimSpace(*req.Title)
	}
	if req.StartTime != nil {
		session.StartTime = req.StartTime.UTC()
	}
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, repoError(err, "class session not found", "failed to update class session")
	}
	return session, nil
}

// Delete removes a session together with its roster.
func (s *ClassSessionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "class session not found", "failed to delete class session")
	}
	return nil
}

// AddStudents places users on the roster. Every user must exist and hold the
// student role; otherwise nothing is written.
func (s *ClassSessionService) AddStudents(ctx context.Context, sessionID string, req AddStudentsRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, validationError(err, "invalid roster payload")
	}
	if _, err := s.repo.FindByID(ctx, sessionID); err != nil {
		return 0, repoError(err, "class session not found", "failed to load class session")
	}
	for _, userID := range req.UserIDs {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return 0, repoError(err, fmt.Sprintf("user %s not found", userID), "failed to load user")
		}
		if user.Role != models.RoleStudent {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user %s is not a student", user.Email))
		}
	}
	added, err := s.repo.AddStudents(ctx, sessionID, req.UserIDs)
	if err != nil {
		return 0, repoError(err, "class session not found", "failed to add students")
	}
	s.metrics.RecordRosterAdditions(added)
	return added, nil
}

// RemoveStudent takes a user off the roster.
func (s *ClassSessionService) RemoveStudent(ctx context.Context, sessionID, userID string) error {
	if err := s.repo.RemoveStudent(ctx, sessionID, userID); err != nil {
		return repoError(err, "student not on class session roster", "failed to remove student")
	}
	return nil
}

// ListStudents returns the roster of a session.
func (s *ClassSessionService) ListStudents(ctx context.Context, sessionID string) ([]models.User, error) {
	if _, err := s.repo.FindByID(ctx, sessionID); err != nil {
		return nil, repoError(err, "class session not found", "failed to load class session")
	}
	users, err := s.repo.ListStudents(ctx, sessionID)
	if err != nil {
		return nil, repoError(err, "class session not found", "failed to list students")
	}
	return users, nil
}

// DueReminders returns sessions starting within window after now whose reminder
// has not been sent. A non-positive window uses the configured default.
func (s *ClassSessionService) DueReminders(ctx context.Context, now time.Time, window time.Duration) ([]models.ClassSession, error) {
	if window <= 0 {
		window = s.reminderWindow
	}
	now = now.UTC()
	sessions, err := s.repo.ListDueReminders(ctx, now, now.Add(window))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list due reminders")
	}
	return sessions, nil
}

// MarkReminderSent records that the reminder for a session went out. It returns
// false without error when the flag had already been set.
func (s *ClassSessionService) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	marked, err := s.repo.MarkReminderSent(ctx, id)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark reminder")
	}
	if marked {
		s.metrics.RecordReminderMarked()
		s.logger.Info("class session reminder marked", zap.String("session_id", id))
		return true, nil
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return false, repoError(err, "class session not found", "failed to load class session")
	}
	return false, nil
}
