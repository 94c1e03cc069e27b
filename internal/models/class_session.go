package models

import "time"

// ClassSession is a scheduled teaching session with a roster of students.
type ClassSession struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	StartTime    time.Time `db:"start_time" json:"start_time"`
	ReminderSent bool      `db:"reminder_sent" json:"reminder_sent"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (s ClassSession) String() string {
	return s.Title
}

// ClassSessionFilter defines filter criteria for listing sessions.
type ClassSessionFilter struct {
	From         *time.Time
	To           *time.Time
	ReminderSent *bool
	StudentID    string
	Page         int
	PageSize     int
	SortOrder    string
}
