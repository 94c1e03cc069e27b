package main

import (
	"context"
	"time"

	"github.com/noah-isme/course-registry/internal/models"
	"github.com/noah-isme/course-registry/pkg/export"
)

var registrationHeaders = []string{"id", "mat_no", "email", "course_code", "course_title", "date_enrolled"}

// exportRegistrations writes the registrations matching the optional student email
// and course code as CSV.
func (cli *commandLine) exportRegistrations(ctx context.Context, email, code string) error {
	filter := models.RegistrationFilter{PageSize: 100}
	if email != "" {
		usr, err := cli.accounts.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		filter.StudentID = usr.ID
	}
	if code != "" {
		course, err := cli.courses.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		filter.CourseID = course.ID
	}

	table := export.Table{Headers: registrationHeaders}
	for page := 1; ; page++ {
		filter.Page = page
		items, pagination, err := cli.registrations.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, item := range items {
			table.Rows = append(table.Rows, map[string]string{
				"id":            item.ID,
				"mat_no":        item.StudentMatNo,
				"email":         item.StudentEmail,
				"course_code":   item.CourseCode,
				"course_title":  item.CourseTitle,
				"date_enrolled": item.DateEnrolled.Format(time.RFC3339),
			})
		}
		if len(items) == 0 || page*pagination.PageSize >= pagination.TotalCount {
			break
		}
	}
	return export.WriteCSV(cli.out, table)
}
