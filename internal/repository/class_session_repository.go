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

const classSessionColumns = `id, title, start_time, reminder_sent, created_at, updated_at`

// ClassSessionRepository manages persistence for class sessions and their rosters.
type ClassSessionRepository struct {
	db *sqlx.DB
}

// NewClassSessionRepository constructs a new class session repository.
func NewClassSessionRepository(db *sqlx.DB) *ClassSessionRepository {
	return &ClassSessionRepository{db: db}
}

// List returns sessions matching filter criteria ordered by start time.
func (r *ClassSessionRepository) List(ctx context.Context, filter models.ClassSessionFilter) ([]models.ClassSession, int, error) {
	base := "FROM class_sessions cs WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("cs.start_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("cs.start_time <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if filter.ReminderSent != nil {
		conditions = append(conditions, fmt.Sprintf("cs.reminder_sent = $%d", len(args)+1))
		args = append(args, *filter.ReminderSent)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM class_session_students css WHERE css.session_id = cs.id AND css.user_id = $%d)", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	p := models.NewPagination(filter.Page, filter.PageSize, 0)
	offset := (p.Page - 1) * p.PageSize

	query := fmt.Sprintf("SELECT cs.id, cs.title, cs.start_time, cs.reminder_sent, cs.created_at, cs.updated_at %s ORDER BY cs.start_time %s LIMIT %d OFFSET %d", base, order, p.PageSize, offset)
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count class sessions: %w", err)
	}
	return sessions, total, nil
}

// FindByID returns a session by identifier.
func (r *ClassSessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	query := `SELECT ` + classSessionColumns + ` FROM class_sessions WHERE id = $1`
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create inserts a new session. reminder_sent always starts false.
func (r *ClassSessionRepository) Create(ctx context.Context, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.ReminderSent = false
	const query = `INSERT INTO class_sessions (id, title, start_time, reminder_sent, created_at, updated_at) VALUES ($1, $2, $3, FALSE, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.Title, session.StartTime, session.CreatedAt, session.UpdatedAt); err != nil {
		return fmt.Errorf("create class session: %w", appErrors.TranslatePQ(err))
	}
	return nil
}

// Update modifies title and start time. reminder_sent is never written here.
func (r *ClassSessionRepository) Update(ctx context.Context, session *models.ClassSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_sessions SET title = $2, start_time = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, session.ID, session.Title, session.StartTime, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update class session: %w", err)
	}
	return expectAffected(res, "update class session")
}

// Delete removes a session and, by cascade, its roster.
func (r *ClassSessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM class_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class session: %w", err)
	}
	return expectAffected(res, "delete class session")
}

// AddStudents inserts roster rows. Only users whose role is student are inserted;
// the returned count is the number of new memberships.
func (r *ClassSessionRepository) AddStudents(ctx context.Context, sessionID string, userIDs []string) (added int, err error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin roster transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO class_session_students (session_id, user_id)
SELECT $1, u.id FROM users u WHERE u.id = $2 AND u.role = $3
ON CONFLICT (session_id, user_id) DO NOTHING`
	for _, userID := range userIDs {
		res, execErr := tx.ExecContext(ctx, query, sessionID, userID, models.RoleStudent)
		if execErr != nil {
			err = fmt.Errorf("add session student: %w", appErrors.TranslatePQ(execErr))
			return 0, err
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit roster: %w", err)
	}
	return added, nil
}

// RemoveStudent deletes a single roster row.
func (r *ClassSessionRepository) RemoveStudent(ctx context.Context, sessionID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM class_session_students WHERE session_id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("remove session student: %w", err)
	}
	return expectAffected(res, "remove session student")
}

// ListStudents returns the users on a session roster ordered by matriculation number.
func (r *ClassSessionRepository) ListStudents(ctx context.Context, sessionID string) ([]models.User, error) {
	const query = `SELECT u.id, u.email, u.first_name, u.last_name, u.middle_name, u.department, u.level, u.faculty, u.phone_number, u.mat_no, u.role, u.is_active, u.is_staff, u.is_superuser, u.created_at, u.updated_at
FROM class_session_students css
JOIN users u ON u.id = css.user_id
WHERE css.session_id = $1
ORDER BY u.mat_no`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session students: %w", err)
	}
	return users, nil
}

// ListDueReminders returns sessions still awaiting a reminder whose start time
// falls within [from, until].
func (r *ClassSessionRepository) ListDueReminders(ctx context.Context, from, until time.Time) ([]models.ClassSession, error) {
	query := `SELECT ` + classSessionColumns + ` FROM class_sessions WHERE reminder_sent = FALSE AND start_time >= $1 AND start_time <= $2 ORDER BY start_time`
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, from, until); err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return sessions, nil
}

// MarkReminderSent flips reminder_sent from false to true. It reports false when
// the flag was already set, so concurrent dispatchers claim a session at most once.
func (r *ClassSessionRepository) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE class_sessions SET reminder_sent = TRUE, updated_at = $2 WHERE id = $1 AND reminder_sent = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark reminder sent rows affected: %w", err)
	}
	return n == 1, nil
}
