package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registry/internal/models"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CreateCourseRequest describes a new course. Zero credits and an empty level
// take the catalogue defaults.
type CreateCourseRequest struct {
	Code       string  `json:"code" validate:"required,max=10"`
	Title      string  `json:"title" validate:"required,max=200"`
	Credits    int     `json:"credits" validate:"gte=0,lte=30"`
	Level      string  `json:"level" validate:"max=10"`
	LecturerID *string `json:"lecturer_id" validate:"omitempty,min=1"`
}

// UpdateCourseRequest holds optional course changes.
type UpdateCourseRequest struct {
	Code    *string `json:"code" validate:"omitempty,min=1,max=10"`
	Title   *string `json:"title" validate:"omitempty,min=1,max=200"`
	Credits *int    `json:"credits" validate:"omitempty,gte=1,lte=30"`
	Level   *string `json:"level" validate:"omitempty,min=1,max=10"`
}

// CourseService manages the course catalogue.
type CourseService struct {
	repo      courseRepository
	users     userReader
	cache     courseCache
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	cacheTTL  time.Duration
}

// NewCourseService constructs CourseService. cache may be nil.
func NewCourseService(repo courseRepository, users userReader, cache courseCache, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cacheTTL time.Duration) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &CourseService{repo: repo, users: users, cache: cache, validator: validate, logger: logger, metrics: metrics, cacheTTL: cacheTTL}
}

// NormalizeCourseCode trims and upper-cases a course code.
func NormalizeCourseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func courseCacheKey(code string) string {
	return "code:" + code
}

// Create adds a course to the catalogue.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	req.Code = NormalizeCourseCode(req.Code)
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	if req.Credits == 0 {
		req.Credits = models.DefaultCourseCredits
	}
	level := strings.TrimSpace(req.Level)
	if level == "" {
		level = models.DefaultCourseLevel
	}
	if req.LecturerID != nil {
		if err := s.ensureLecturer(ctx, *req.LecturerID); err != nil {
			return nil, err
		}
	}

	course := &models.Course{
		Code:       req.Code,
		Title:      req.Title,
		Credits:    req.Credits,
		Level:      level,
		LecturerID: req.LecturerID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, repoError(err, "course not found", "failed to create course")
	}
	s.invalidate(ctx, course.Code)
	return course, nil
}

// Get returns a course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "course not found", "failed to load course")
	}
	return course, nil
}

// GetByCode returns a course by its code, reading through the cache.
func (s *CourseService) GetByCode(ctx context.Context, code string) (*models.Course, error) {
	code = NormalizeCourseCode(code)
	key := courseCacheKey(code)

	if s.cache != nil {
		start := time.Now()
		var cached models.Course
		err := s.cache.Get(ctx, key, &cached)
		switch {
		case err == nil:
			s.metrics.RecordCacheOperation(true, time.Since(start))
			return &cached, nil
		case errors.Is(err, appErrors.ErrCacheMiss):
			s.metrics.RecordCacheOperation(false, time.Since(start))
		default:
			s.metrics.RecordCacheOperation(false, time.Since(start))
			s.logger.Warn("course cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	course, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, repoError(err, "course not found", "failed to load course")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, course, s.cacheTTL); err != nil {
			s.logger.Warn("course cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return course, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Update applies the non-nil fields of req.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if req.Code != nil {
		code := NormalizeCourseCode(*req.Code)
		req.Code = &code
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "course not found", "failed to load course")
	}
	previousCode := course.Code

	if req.Code != nil {
		course.Code = *req.Code
	}
	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Credits != nil {
		course.Credits = *req.Credits
	}
	if req.Level != nil {
		course.Level = strings.TrimSpace(*req.Level)
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, repoError(err, "course not found", "failed to update course")
	}
	s.invalidate(ctx, previousCode, course.Code)
	return course, nil
}

// AssignLecturer sets or, with a nil lecturerID, clears the course lecturer.
func (s *CourseService) AssignLecturer(ctx context.Context, id string, lecturerID *string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "course not found", "failed to load course")
	}
	if lecturerID != nil {
		if err := s.ensureLecturer(ctx, *lecturerID); err != nil {
			return nil, err
		}
	}
	course.LecturerID = lecturerID
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, repoError(err, "course not found", "failed to assign lecturer")
	}
	s.invalidate(ctx, course.Code)
	return course, nil
}

// Delete removes a course. Registrations for it are cascaded by the database.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return repoError(err, "course not found", "failed to load course")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "course not found", "failed to delete course")
	}
	s.invalidate(ctx, course.Code)
	return nil
}

func (s *CourseService) ensureLecturer(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidReference, fmt.Sprintf("lecturer %s not found", userID))
		}
		return repoError(err, "lecturer not found", "failed to load lecturer")
	}
	if !user.Role.IsStaff() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user %s cannot lecture a course", user.Email))
	}
	return nil
}

// InvalidateCodes drops the cached entries of the given course codes.
func (s *CourseService) InvalidateCodes(ctx context.Context, codes ...string) {
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		normalized = append(normalized, NormalizeCourseCode(code))
	}
	s.invalidate(ctx, normalized...)
}

func (s *CourseService) invalidate(ctx context.Context, codes ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		keys = append(keys, courseCacheKey(code))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("course cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
