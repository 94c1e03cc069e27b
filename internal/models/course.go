package models

import (
	"fmt"
	"time"
)

// Default values applied to new courses.
const (
	DefaultCourseCredits = 3
	DefaultCourseLevel   = "100"
)

// Course represents an offerable unit of study.
type Course struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Title      string    `db:"title" json:"title"`
	Credits    int       `db:"credits" json:"credits"`
	Level      string    `db:"level" json:"level"`
	LecturerID *string   `db:"lecturer_id" json:"lecturer_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

func (c Course) String() string {
	return fmt.Sprintf("%s - %s", c.Code, c.Title)
}

// CourseFilter captures supported filters for listing courses.
type CourseFilter struct {
	Level      string
	LecturerID string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
