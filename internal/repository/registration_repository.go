package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registry/internal/models"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

const registrationDetailSelect = `SELECT rc.id, rc.student_id, rc.course_id, rc.date_enrolled,
        u.mat_no AS student_mat_no, u.email AS student_email, c.code AS course_code, c.title AS course_title`

// RegistrationRepository handles persistence of course registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// List returns registrations filtered by student and/or course.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM register_courses rc
JOIN users u ON u.id = rc.student_id
JOIN courses c ON c.id = rc.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("rc.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("rc.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	p := models.NewPagination(filter.Page, filter.PageSize, 0)
	offset := (p.Page - 1) * p.PageSize

	query := fmt.Sprintf("%s\n        %s ORDER BY rc.date_enrolled %s, rc.id %s LIMIT %d OFFSET %d", registrationDetailSelect, base+clause, order, order, p.PageSize, offset)
	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// FindDetailByID returns a registration with student and course info.
func (r *RegistrationRepository) FindDetailByID(ctx context.Context, id string) (*models.RegistrationDetail, error) {
	query := registrationDetailSelect + `
        FROM register_courses rc
        JOIN users u ON u.id = rc.student_id
        JOIN courses c ON c.id = rc.course_id
        WHERE rc.id = $1`
	var detail models.RegistrationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a registration. date_enrolled is stamped here and never updated;
// a second registration of the same pair fails on register_courses_student_course_key.
func (r *RegistrationRepository) Create(ctx context.Context, registration *models.Registration) error {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	registration.DateEnrolled = time.Now().UTC()
	const query = `INSERT INTO register_courses (id, student_id, course_id, date_enrolled) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, registration.ID, registration.StudentID, registration.CourseID, registration.DateEnrolled); err != nil {
		return fmt.Errorf("create registration: %w", appErrors.TranslatePQ(err))
	}
	return nil
}

// Delete removes a registration.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM register_courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return expectAffected(res, "delete registration")
}
