package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registry/internal/models"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

const userColumns = `id, email, first_name, last_name, middle_name, department, level, faculty, phone_number, mat_no, role, is_active, is_staff, is_superuser, created_at, updated_at`

// UserRepository provides database access for users and their credentials.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(first_name || ' ' || last_name) LIKE $%d OR LOWER(mat_no) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"email":      true,
		"mat_no":     true,
		"last_name":  true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	p := models.NewPagination(filter.Page, filter.PageSize, 0)
	offset := (p.Page - 1) * p.PageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, p.PageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// Create inserts a user together with its credential in one transaction.
func (r *UserRepository) Create(ctx context.Context, user *models.User, passwordHash *string) (err error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.SyncPrivileges()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertUser = `INSERT INTO users (id, email, first_name, last_name, middle_name, department, level, faculty, phone_number, mat_no, role, is_active, is_staff, is_superuser, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	if _, err = tx.ExecContext(ctx, insertUser,
		user.ID, user.Email, user.FirstName, user.LastName, user.MiddleName,
		user.Department, user.Level, user.Faculty, user.PhoneNumber, user.MatNo,
		user.Role, user.Active, user.Staff, user.Superuser, user.CreatedAt, user.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create user: %w", appErrors.TranslatePQ(err))
	}

	const insertCredential = `INSERT INTO user_credentials (user_id, password_hash, updated_at) VALUES ($1, $2, $3)`
	if _, err = tx.ExecContext(ctx, insertCredential, user.ID, passwordHash, now); err != nil {
		return fmt.Errorf("create credential: %w", appErrors.TranslatePQ(err))
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// Update writes the profile fields and role of a user. Privilege columns follow the role.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	user.SyncPrivileges()
	const query = `UPDATE users SET first_name = $2, last_name = $3, middle_name = $4, department = $5, level = $6, faculty = $7, phone_number = $8, role = $9, is_staff = $10, is_superuser = $11, updated_at = $12 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		user.ID, user.FirstName, user.LastName, user.MiddleName, user.Department, user.Level,
		user.Faculty, user.PhoneNumber, user.Role, user.Staff, user.Superuser, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", appErrors.TranslatePQ(err))
	}
	return expectAffected(res, "update user")
}

// SetActive toggles the login gate of a user.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return expectAffected(res, "set user active")
}

// Delete removes the user. Registrations, roster rows and the credential cascade;
// courses lectured by the user keep existing with a null lecturer.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectAffected(res, "delete user")
}

// LecturedCourseCodes lists the codes of courses whose lecturer is the user.
func (r *UserRepository) LecturedCourseCodes(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT code FROM courses WHERE lecturer_id = $1 ORDER BY code`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, query, userID); err != nil {
		return nil, fmt.Errorf("list lectured courses: %w", err)
	}
	return codes, nil
}

// CountStudentLinks counts the registrations and roster rows held by the user.
func (r *UserRepository) CountStudentLinks(ctx context.Context, userID string) (int, error) {
	const query = `SELECT (SELECT COUNT(*) FROM register_courses WHERE student_id = $1) + (SELECT COUNT(*) FROM class_session_students WHERE user_id = $1)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, fmt.Errorf("count student links: %w", err)
	}
	return total, nil
}

// FindCredential returns the credential row for a user.
func (r *UserRepository) FindCredential(ctx context.Context, userID string) (*models.Credential, error) {
	const query = `SELECT user_id, password_hash, updated_at FROM user_credentials WHERE user_id = $1`
	var cred models.Credential
	if err := r.db.GetContext(ctx, &cred, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return &cred, nil
}

// UpdatePassword replaces the stored hash. A nil hash makes the password unusable.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash *string, updatedAt time.Time) error {
	const query = `UPDATE user_credentials SET password_hash = $2, updated_at = $3 WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectAffected(res, "update password")
}

// expectAffected turns a write that touched no rows into sql.ErrNoRows.
func expectAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
