package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema holds the table definitions in dependency order. Uniqueness and the
// cascade rules live here so that PostgreSQL enforces them transactionally.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email VARCHAR(254) NOT NULL,
    first_name VARCHAR(50) NOT NULL,
    last_name VARCHAR(50) NOT NULL,
    middle_name VARCHAR(50) NULL,
    department VARCHAR(100) NOT NULL DEFAULT '',
    level VARCHAR(50) NOT NULL DEFAULT '',
    faculty VARCHAR(100) NOT NULL DEFAULT '',
    phone_number VARCHAR(15) NOT NULL,
    mat_no VARCHAR(20) NOT NULL,
    role VARCHAR(20) NOT NULL DEFAULT 'student' CHECK (role IN ('student', 'coordinator', 'admin')),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    is_staff BOOLEAN NOT NULL DEFAULT FALSE,
    is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT users_email_key UNIQUE (email),
    CONSTRAINT users_phone_number_key UNIQUE (phone_number),
    CONSTRAINT users_mat_no_key UNIQUE (mat_no)
)`,
	`CREATE TABLE IF NOT EXISTS user_credentials (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    password_hash VARCHAR(128) NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS class_sessions (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    start_time TIMESTAMPTZ NOT NULL,
    reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS class_sessions_pending_reminder_idx ON class_sessions (start_time) WHERE reminder_sent = FALSE`,
	`CREATE TABLE IF NOT EXISTS class_session_students (
    session_id UUID NOT NULL REFERENCES class_sessions(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    CONSTRAINT class_session_students_pkey PRIMARY KEY (session_id, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY,
    code VARCHAR(10) NOT NULL,
    title VARCHAR(200) NOT NULL,
    credits INTEGER NOT NULL DEFAULT 3,
    level VARCHAR(50) NOT NULL DEFAULT '100',
    lecturer_id UUID NULL REFERENCES users(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT courses_code_key UNIQUE (code)
)`,
	`CREATE TABLE IF NOT EXISTS register_courses (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    course_id UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    date_enrolled TIMESTAMPTZ NOT NULL,
    CONSTRAINT register_courses_student_course_key UNIQUE (student_id, course_id)
)`,
	`CREATE INDEX IF NOT EXISTS register_courses_course_idx ON register_courses (course_id)`,
}

// EnsureSchema applies Schema inside a single transaction. Statements are idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	for i, stmt := range Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
