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
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/course-registry/internal/models"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

type accountRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User, passwordHash *string) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	FindCredential(ctx context.Context, userID string) (*models.Credential, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash *string, updatedAt time.Time) error
	LecturedCourseCodes(ctx context.Context, userID string) ([]string, error)
	CountStudentLinks(ctx context.Context, userID string) (int, error)
}

// courseInvalidator drops cached course entries whose stored rows changed underneath.
type courseInvalidator interface {
	InvalidateCodes(ctx context.Context, codes ...string)
}

// UserFields carries the non-identity attributes of a new account. An empty Role
// falls back to the creation path's default; a nil Active means active.
type UserFields struct {
	FirstName   string      `json:"first_name" validate:"max=50"`
	LastName    string      `json:"last_name" validate:"max=50"`
	MiddleName  *string     `json:"middle_name" validate:"omitempty,max=50"`
	Department  string      `json:"department" validate:"max=100"`
	Level       string      `json:"level" validate:"max=50"`
	Faculty     string      `json:"faculty" validate:"max=100"`
	PhoneNumber string      `json:"phone_number" validate:"required,max=15"`
	MatNo       string      `json:"mat_no" validate:"required,max=20"`
	Role        models.Role `json:"role" validate:"omitempty,oneof=student coordinator admin"`
	Active      *bool       `json:"is_active"`
}

// UpdateProfileRequest holds optional profile changes; nil fields are left untouched.
type UpdateProfileRequest struct {
	FirstName   *string      `json:"first_name" validate:"omitempty,max=50"`
	LastName    *string      `json:"last_name" validate:"omitempty,max=50"`
	MiddleName  *string      `json:"middle_name" validate:"omitempty,max=50"`
	Department  *string      `json:"department" validate:"omitempty,max=100"`
	Level       *string      `json:"level" validate:"omitempty,max=50"`
	Faculty     *string      `json:"faculty" validate:"omitempty,max=100"`
	PhoneNumber *string      `json:"phone_number" validate:"omitempty,min=1,max=15"`
	Role        *models.Role `json:"role" validate:"omitempty,oneof=student coordinator admin"`
}

// AccountConfig tunes credential handling.
type AccountConfig struct {
	BcryptCost int
}

// AccountService is the account manager: the only place users are created,
// and the owner of credential hashing and verification.
type AccountService struct {
	repo      accountRepository
	courses   courseInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    AccountConfig
}

// NewAccountService creates an instance of AccountService. courses may be nil when
// course lookups are not cached.
func NewAccountService(repo accountRepository, courses courseInvalidator, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config AccountConfig) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AccountService{repo: repo, courses: courses, validator: validate, logger: logger, metrics: metrics, config: config}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a regular account. Role defaults to student. A nil password
// produces an account that cannot log in with a password.
func (s *AccountService) CreateUser(ctx context.Context, email string, password *string, fields UserFields) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "email required")
	}
	if fields.Role == "" {
		fields.Role = models.RoleStudent
	}
	if err := s.validator.Var(email, "email,max=254"); err != nil {
		return nil, validationError(err, "invalid email")
	}
	if err := s.validator.Struct(fields); err != nil {
		return nil, validationError(err, "invalid user payload")
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	active := true
	if fields.Active != nil {
		active = *fields.Active
	}
	user := &models.User{
		Email:       email,
		FirstName:   strings.TrimSpace(fields.FirstName),
		LastName:    strings.TrimSpace(fields.LastName),
		MiddleName:  fields.MiddleName,
		Department:  fields.Department,
		Level:       fields.Level,
		Faculty:     fields.Faculty,
		PhoneNumber: strings.TrimSpace(fields.PhoneNumber),
		MatNo:       strings.TrimSpace(fields.MatNo),
		Role:        fields.Role,
		Active:      active,
	}

	if err := s.repo.Create(ctx, user, hash); err != nil {
		if appErrors.IsConflict(err) {
			s.metrics.RecordAccount(string(user.Role), OutcomeConflict)
		} else {
			s.metrics.RecordAccount(string(user.Role), OutcomeFailed)
		}
		return nil, repoError(err, "user not found", "failed to create user")
	}
	s.metrics.RecordAccount(string(user.Role), OutcomeCreated)
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// CreateSuperuser registers an admin account. An explicit role in fields is honoured.
func (s *AccountService) CreateSuperuser(ctx context.Context, email string, password *string, fields UserFields) (*models.User, error) {
	if fields.Role == "" {
		fields.Role = models.RoleAdmin
	}
	return s.CreateUser(ctx, email, password, fields)
}

// Get returns a user by ID.
func (s *AccountService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "user not found", "failed to load user")
	}
	return user, nil
}

// GetByEmail returns a user by (normalised) email.
func (s *AccountService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, repoError(err, "user not found", "failed to load user")
	}
	return user, nil
}

// List returns paginated users and pagination metadata.
func (s *AccountService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update payload")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "user not found", "failed to load user")
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.MiddleName != nil {
		user.MiddleName = req.MiddleName
		if *req.MiddleName == "" {
			user.MiddleName = nil
		}
	}
	if req.Department != nil {
		user.Department = *req.Department
	}
	if req.Level != nil {
		user.Level = *req.Level
	}
	if req.Faculty != nil {
		user.Faculty = *req.Faculty
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*req.PhoneNumber)
	}
	if req.Role != nil && *req.Role != user.Role {
		if err := s.checkRoleChange(ctx, user, *req.Role); err != nil {
			return nil, err
		}
		user.Role = *req.Role
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, repoError(err, "user not found", "failed to update user")
	}
	return user, nil
}

// SetActive opens or closes the login gate for a user.
func (s *AccountService) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return repoError(err, "user not found", "failed to update user status")
	}
	s.logger.Info("user access changed", zap.String("user_id", id), zap.Bool("active", active))
	return nil
}

// SetPassword replaces the user's password. A nil password makes it unusable.
func (s *AccountService) SetPassword(ctx context.Context, id string, password *string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash, time.Now().UTC()); err != nil {
		return repoError(err, "user not found", "failed to update password")
	}
	return nil
}

// Authenticate verifies an email/password pair and returns the active user.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	cred, err := s.repo.FindCredential(ctx, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch credential")
	}
	if !cred.Usable() {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*cred.PasswordHash), []byte(password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}
	return user, nil
}

// checkRoleChange refuses role changes that would leave a course lectured by a
// non-staff user, or registrations and roster rows held by a non-student.
func (s *AccountService) checkRoleChange(ctx context.Context, user *models.User, role models.Role) error {
	if user.Role.IsStaff() && !role.IsStaff() {
		codes, err := s.repo.LecturedCourseCodes(ctx, user.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lectured courses")
		}
		if len(codes) > 0 {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("user lectures %s; reassign the lecturer first", strings.Join(codes, ", ")))
		}
	}
	if user.Role == models.RoleStudent && role != models.RoleStudent {
		links, err := s.repo.CountStudentLinks(ctx, user.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student records")
		}
		if links > 0 {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "user still has course registrations or class rosters")
		}
	}
	return nil
}

// Delete removes a user. The database cascades registrations, roster entries and
// the credential, and clears the lecturer of any course the user taught. Cached
// entries for those courses are dropped once the delete succeeds.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	var lectured []string
	if s.courses != nil {
		codes, err := s.repo.LecturedCourseCodes(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lectured courses")
		}
		lectured = codes
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "user not found", "failed to delete user")
	}
	if len(lectured) > 0 {
		s.courses.InvalidateCodes(ctx, lectured...)
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.Int("courses_unassigned", len(lectured)))
	return nil
}

func (s *AccountService) hashPassword(password *string) (*string, error) {
	if password == nil {
		return nil, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(*password), s.config.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, validationError(err, "password too long")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	hash := string(hashed)
	return &hash, nil
}
