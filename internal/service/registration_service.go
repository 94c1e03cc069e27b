package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registry/internal/models"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

type registrationRepository interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error)
	Create(ctx context.Context, registration *models.Registration) error
	Delete(ctx context.Context, id string) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// RegisterCourseRequest enrolls a student in a course.
type RegisterCourseRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
}

// RegistrationService handles course registrations.
type RegistrationService struct {
	repo      registrationRepository
	users     userReader
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewRegistrationService creates an instance of RegistrationService.
func NewRegistrationService(repo registrationRepository, users userReader, courses courseReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{repo: repo, users: users, courses: courses, validator: validate, logger: logger, metrics: metrics}
}

// Register enrolls an active student in a course. A repeated registration for
// the same pair is a conflict.
func (s *RegistrationService) Register(ctx context.Context, req RegisterCourseRequest) (*models.RegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordRegistration(OutcomeRejected)
		return nil, validationError(err, "invalid registration payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		s.metrics.RecordRegistration(OutcomeRejected)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidReference, "student not found")
		}
		return nil, repoError(err, "student not found", "failed to load student")
	}
	if student.Role != models.RoleStudent {
		s.metrics.RecordRegistration(OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrValidation, "only students can register for courses")
	}
	if !student.Active {
		s.metrics.RecordRegistration(OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student account is inactive")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		s.metrics.RecordRegistration(OutcomeRejected)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidReference, "course not found")
		}
		return nil, repoError(err, "course not found", "failed to load course")
	}

	registration := &models.Registration{StudentID: req.StudentID, CourseID: req.CourseID}
	if err := s.repo.Create(ctx, registration); err != nil {
		if appErrors.IsConflict(err) {
			s.metrics.RecordRegistration(OutcomeConflict)
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already registered for course")
		}
		s.metrics.RecordRegistration(OutcomeFailed)
		return nil, repoError(err, "registration not found", "failed to register course")
	}
	s.metrics.RecordRegistration(OutcomeCreated)

	detail, err := s.repo.FindDetailByID(ctx, registration.ID)
	if err != nil {
		return nil, repoError(err, "registration not found", "failed to load registration")
	}
	s.logger.Info("course registered", zap.String("registration_id", detail.ID), zap.String("student_id", detail.StudentID), zap.String("course_code", detail.CourseCode))
	return detail, nil
}

// Get returns a registration with student and course details.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "registration not found", "failed to load registration")
	}
	return detail, nil
}

// List returns registrations filtered by student and/or course.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Unregister removes a registration.
func (s *RegistrationService) Unregister(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "registration not found", "failed to remove registration")
	}
	return nil
}
