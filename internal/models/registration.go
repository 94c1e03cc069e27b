package models

import (
	"fmt"
	"time"
)

// Registration records a student's enrollment in a course (the register_courses table).
type Registration struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	DateEnrolled time.Time `db:"date_enrolled" json:"date_enrolled"`
}

// RegistrationDetail enriches Registration with student and course info.
type RegistrationDetail struct {
	Registration
	StudentMatNo string `db:"student_mat_no" json:"student_mat_no"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseCode   string `db:"course_code" json:"course_code"`
	CourseTitle  string `db:"course_title" json:"course_title"`
}

func (d RegistrationDetail) String() string {
	return fmt.Sprintf("%s registered course %s", d.StudentMatNo, d.CourseCode)
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	StudentID string
	CourseID  string
	Page      int
	PageSize  int
	SortOrder string
}
