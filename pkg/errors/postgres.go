package errors

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes the data layer reacts to.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqNotNullViolation    = "23502"
	pqCheckViolation      = "23514"
)

// constraintFields maps schema constraint names to the field reported to callers.
var constraintFields = map[string]string{
	"users_email_key":                     "email",
	"users_phone_number_key":              "phone_number",
	"users_mat_no_key":                    "mat_no",
	"courses_code_key":                    "code",
	"register_courses_student_course_key": "course registration",
	"class_session_students_pkey":         "class session student",
}

// TranslatePQ converts constraint violations raised by PostgreSQL into typed errors.
// Errors that are not constraint violations are returned unchanged.
func TranslatePQ(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqUniqueViolation:
		field := constraintFields[pqErr.Constraint]
		if field == "" {
			field = pqErr.Constraint
		}
		return Wrap(err, ErrConflict.Code, ErrConflict.Status, fmt.Sprintf("%s already exists", field))
	case pqForeignKeyViolation:
		return Wrap(err, ErrInvalidReference.Code, ErrInvalidReference.Status, ErrInvalidReference.Message)
	case pqNotNullViolation, pqCheckViolation:
		return Wrap(err, ErrValidation.Code, ErrValidation.Status, pqErr.Message)
	}
	return err
}

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
