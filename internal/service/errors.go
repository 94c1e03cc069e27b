package service

import (
	"database/sql"
	"errors"

	appErrors "github.com/noah-isme/course-registry/pkg/errors"
)

// repoError maps repository failures onto the typed taxonomy: typed errors pass
// through, missing rows become not-found, anything else is internal.
func repoError(err error, notFound, internal string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
